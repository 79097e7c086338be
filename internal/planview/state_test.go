package planview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planner"
)

type fakeFetcher struct {
	mu       sync.Mutex
	plans    []*planner.WeeklyPlan
	monthly  *planner.MonthlyPlan
	weekErr  error
	monthErr error
	gates    []chan struct{}
	calls    int
}

func (f *fakeFetcher) CurrentWeeklyPlan(ctx context.Context) (*planner.WeeklyPlan, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	var gate chan struct{}
	if i < len(f.gates) {
		gate = f.gates[i]
	}
	var plan *planner.WeeklyPlan
	if i < len(f.plans) {
		plan = f.plans[i]
	} else if len(f.plans) > 0 {
		plan = f.plans[len(f.plans)-1]
	}
	err := f.weekErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return plan, err
}

func (f *fakeFetcher) CurrentMonthlyPlan(ctx context.Context) (*planner.MonthlyPlan, error) {
	return f.monthly, f.monthErr
}

func planWith(id planner.ID, monthlyID planner.ID, days ...planner.Weekday) *planner.WeeklyPlan {
	plans := make(map[planner.Weekday]planner.DayPlan, len(days))
	for _, d := range days {
		plans[d] = planner.DayPlan{
			DayName:   string(d),
			Exercises: []planner.ExercisePlan{{ExerciseID: "walking", Name: "Walk", Duration: 30, CaloriesTarget: 120}},
		}
	}
	return &planner.WeeklyPlan{ID: id, MonthlyPlanID: monthlyID, DailyPlans: plans}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func TestRefresh(t *testing.T) {
	wed := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		f := &fakeFetcher{
			plans:   []*planner.WeeklyPlan{planWith("w1", "m1", planner.Monday, planner.Wednesday)},
			monthly: &planner.MonthlyPlan{ID: "m1"},
		}
		s := New(f, WithClock(func() time.Time { return wed }), WithLocation(time.UTC))

		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		snap := s.Snapshot()
		if snap.Loading || snap.Err != nil {
			t.Errorf("Expected settled snapshot, got loading=%v err=%v", snap.Loading, snap.Err)
		}
		if snap.TodayKey() != 12 || snap.Today() != planner.Wednesday {
			t.Errorf("Expected today 12/wednesday, got %d/%s", snap.TodayKey(), snap.Today())
		}
		if _, ok := snap.DayExercise(12); !ok {
			t.Error("Expected exercise view for the 12th")
		}
		if _, ok := snap.DayExercise(11); ok {
			t.Error("Expected no view for Tuesday the 11th")
		}
		if _, ok := snap.DayNutrition(10); !ok {
			t.Error("Expected nutrition view for Monday the 10th")
		}
		if day, ok := snap.DayPlan(planner.Monday); !ok || day.DayName != "monday" {
			t.Errorf("Expected Monday plan, got %+v", day)
		}
		if snap.IsOutdated() {
			t.Error("Expected plan to be current")
		}
	})

	t.Run("NotFoundIsEmptyNotError", func(t *testing.T) {
		f := &fakeFetcher{weekErr: planapi.ErrNotFound, monthErr: &planapi.APIError{StatusCode: 404}}
		s := New(f, WithClock(func() time.Time { return wed }))

		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		snap := s.Snapshot()
		if snap.Plan != nil || snap.Monthly != nil || snap.Err != nil {
			t.Errorf("Expected empty snapshot, got %+v", snap)
		}
		if len(snap.Week.Exercise) != 0 {
			t.Errorf("Expected no projected days, got %d", len(snap.Week.Exercise))
		}
	})

	t.Run("FetchFailure", func(t *testing.T) {
		f := &fakeFetcher{
			plans:   []*planner.WeeklyPlan{planWith("w1", "m1", planner.Monday)},
			monthly: &planner.MonthlyPlan{ID: "m1"},
		}
		s := New(f, WithClock(func() time.Time { return wed }))
		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		f.weekErr = errors.New("gateway timeout")
		if err := s.Refresh(context.Background()); err == nil {
			t.Fatal("Expected an error, got nil")
		}
		snap := s.Snapshot()
		if snap.Err == nil || snap.Plan != nil || snap.Loading {
			t.Errorf("Expected error state with no data, got %+v", snap)
		}
	})

	t.Run("MonthlyFailureKeepsWeek", func(t *testing.T) {
		f := &fakeFetcher{
			plans:    []*planner.WeeklyPlan{planWith("w1", "m1", planner.Monday, planner.Wednesday)},
			monthErr: errors.New("monthly service 500"),
		}
		s := New(f, WithClock(func() time.Time { return wed }), WithLocation(time.UTC))

		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		snap := s.Snapshot()
		if snap.Err != nil || snap.Plan == nil || snap.Plan.ID != "w1" {
			t.Fatalf("Expected the weekly plan without error, got %+v", snap)
		}
		if snap.Monthly != nil {
			t.Errorf("Expected no monthly plan, got %+v", snap.Monthly)
		}
		if _, ok := snap.DayExercise(12); !ok {
			t.Error("Expected exercise view for the 12th")
		}
		if snap.IsOutdated() {
			t.Error("Expected a plan without a monthly plan not to be outdated")
		}
	})

	t.Run("Outdated", func(t *testing.T) {
		f := &fakeFetcher{
			plans:   []*planner.WeeklyPlan{planWith("w1", "m1", planner.Monday)},
			monthly: &planner.MonthlyPlan{ID: "m2"},
		}
		s := New(f, WithClock(func() time.Time { return wed }))
		_ = s.Refresh(context.Background())
		if !s.Snapshot().IsOutdated() {
			t.Error("Expected plan from another month to be outdated")
		}
	})
}

func TestLastFetchWins(t *testing.T) {
	slow := make(chan struct{})
	f := &fakeFetcher{
		plans: []*planner.WeeklyPlan{
			planWith("old", "m1", planner.Monday),
			planWith("new", "m1", planner.Monday),
		},
		gates: []chan struct{}{slow, nil},
	}
	s := New(f)

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()

	// Wait until the first fetch has been issued.
	for {
		f.mu.Lock()
		n := f.calls
		f.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	close(slow)
	if err := <-done; err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Plan == nil || snap.Plan.ID != "new" {
		t.Errorf("Expected newest plan to win, got %+v", snap.Plan)
	}
	if snap.Loading {
		t.Error("Expected loading to be cleared")
	}
}

func TestClose(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{
		plans: []*planner.WeeklyPlan{planWith("w1", "m1", planner.Monday)},
		gates: []chan struct{}{gate},
	}
	s := New(f)

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	for {
		f.mu.Lock()
		n := f.calls
		f.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	s.Close()
	close(gate)
	<-done

	if s.Snapshot().Plan != nil {
		t.Error("Expected result after Close to be discarded")
	}
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMidnightReprojection(t *testing.T) {
	c := &clock{t: time.Date(2024, 6, 30, 23, 59, 0, 0, time.UTC)} // Sunday
	f := &fakeFetcher{plans: []*planner.WeeklyPlan{planWith("w1", "m1", planner.Monday, planner.Sunday)}}
	s := New(f, WithClock(c.now), WithLocation(time.UTC))
	_ = s.Refresh(context.Background())

	snap := s.Snapshot()
	if _, ok := snap.DayExercise(24); !ok {
		t.Fatal("Expected Monday the 24th before midnight")
	}
	if snap.TodayKey() != 30 {
		t.Errorf("Expected today key 30, got %d", snap.TodayKey())
	}

	c.set(time.Date(2024, 7, 1, 0, 1, 0, 0, time.UTC))
	snap = s.Snapshot()
	if snap.TodayKey() != 1 {
		t.Errorf("Expected today key 1, got %d", snap.TodayKey())
	}
	if _, ok := snap.DayExercise(1); !ok {
		t.Error("Expected Monday the 1st after midnight")
	}
	if _, ok := snap.DayExercise(7); !ok {
		t.Error("Expected Sunday the 7th after midnight")
	}
	if f.calls != 1 {
		t.Errorf("Expected re-projection without refetch, got %d fetches", f.calls)
	}
}
