package planview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planner"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("planview: state closed")

// Fetcher is the part of planapi.Client the view state reads from.
type Fetcher interface {
	CurrentWeeklyPlan(ctx context.Context) (*planner.WeeklyPlan, error)
	CurrentMonthlyPlan(ctx context.Context) (*planner.MonthlyPlan, error)
}

// Snapshot is an immutable view of the current plan and its projection.
// A new Snapshot replaces the old one on every change; none is modified in
// place.
type Snapshot struct {
	Loading bool
	Err     error

	Plan    *planner.WeeklyPlan
	Monthly *planner.MonthlyPlan

	Week        planner.Week
	ProjectedAt time.Time
	FetchedAt   time.Time
}

// DayPlan returns the raw plan for a weekday.
func (s Snapshot) DayPlan(day planner.Weekday) (planner.DayPlan, bool) {
	return s.Plan.Day(day)
}

// DayExercise returns the projected exercise view for a day-of-month key.
func (s Snapshot) DayExercise(dateKey int) (planner.DayExerciseView, bool) {
	v, ok := s.Week.Exercise[dateKey]
	return v, ok
}

// DayNutrition returns the projected nutrition view for a day-of-month key.
func (s Snapshot) DayNutrition(dateKey int) (planner.DayNutritionView, bool) {
	v, ok := s.Week.Nutrition[dateKey]
	return v, ok
}

// TodayKey is the day-of-month key of the day the snapshot was projected on.
func (s Snapshot) TodayKey() int {
	return s.ProjectedAt.Day()
}

// Today returns today's weekday.
func (s Snapshot) Today() planner.Weekday {
	return planner.WeekdayOf(s.ProjectedAt)
}

// IsOutdated reports whether the weekly plan belongs to a monthly plan other
// than the current one.
func (s Snapshot) IsOutdated() bool {
	if s.Plan == nil || s.Monthly == nil {
		return false
	}
	return s.Plan.MonthlyPlanID != s.Monthly.ID
}

// State holds the latest fetched plan and its projection onto the current
// calendar week.
type State struct {
	fetcher   Fetcher
	projector *planner.Projector
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location

	mu      sync.RWMutex
	snap    Snapshot
	issued  uint64
	applied uint64
	closed  bool
}

// Option configures a State.
type Option func(*State)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithLocation sets the timezone "today" is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *State) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProjector replaces the default projector.
func WithProjector(p *planner.Projector) Option {
	return func(s *State) {
		if p != nil {
			s.projector = p
		}
	}
}

// New creates an empty State. Call Refresh to load it.
func New(fetcher Fetcher, opts ...Option) *State {
	s := &State{
		fetcher: fetcher,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.projector == nil {
		s.projector = planner.NewProjector(s.logger)
	}
	s.snap.ProjectedAt = s.now().In(s.loc)
	return s
}

// Refresh fetches the current weekly and monthly plans and re-projects them.
// If a newer refresh has already been applied, the result is discarded. The
// returned error is the fetch error, also recorded on the snapshot.
func (s *State) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.issued++
	seq := s.issued
	next := s.snap
	next.Loading = true
	s.snap = next
	s.mu.Unlock()

	plan, monthly, err := s.fetch(ctx)
	ref := s.now().In(s.loc)

	next = Snapshot{ProjectedAt: ref, FetchedAt: ref}
	if err != nil {
		next.Err = err
		next.Week = s.projector.Project(nil, ref)
	} else {
		next.Plan = plan
		next.Monthly = monthly
		next.Week = s.projector.Project(plan, ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Debug("discarding refresh result after close", "seq", seq)
		return err
	}
	if seq < s.applied {
		s.logger.Debug("discarding stale refresh result", "seq", seq, "applied", s.applied)
		return err
	}
	next.Loading = seq < s.issued
	s.applied = seq
	s.snap = next
	if err != nil {
		s.logger.Warn("plan refresh failed", "error", err)
	}
	return err
}

func (s *State) fetch(ctx context.Context) (*planner.WeeklyPlan, *planner.MonthlyPlan, error) {
	var (
		plan    *planner.WeeklyPlan
		monthly *planner.MonthlyPlan
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.fetcher.CurrentWeeklyPlan(gctx)
		if errors.Is(err, planapi.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to fetch weekly plan: %w", err)
		}
		plan = p
		return nil
	})
	g.Go(func() error {
		// The monthly plan only feeds IsOutdated, so a failure leaves it
		// absent instead of failing the refresh.
		m, err := s.fetcher.CurrentMonthlyPlan(gctx)
		if err != nil {
			if !errors.Is(err, planapi.ErrNotFound) {
				s.logger.Warn("monthly plan unavailable", "error", err)
			}
			return nil
		}
		monthly = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return plan, monthly, nil
}

// Snapshot returns the current snapshot, re-projecting first if the clock
// has crossed midnight since the last projection.
func (s *State) Snapshot() Snapshot {
	now := s.now().In(s.loc)

	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if sameDay(snap.ProjectedAt, now) {
		return snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !sameDay(s.snap.ProjectedAt, now) {
		next := s.snap
		next.Week = s.projector.Project(next.Plan, now)
		next.ProjectedAt = now
		s.snap = next
		s.logger.Debug("re-projected plan for new day", "date", now.Format("2006-01-02"))
	}
	return s.snap
}

// Close stops the state from applying any further refresh results.
func (s *State) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
