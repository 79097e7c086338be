package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"weekly-health-plan/internal/adjust"
	"weekly-health-plan/internal/metrics"
	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planner"
	"weekly-health-plan/internal/planview"
)

// ErrNoPlan is returned by commands that need a current weekly plan.
var ErrNoPlan = errors.New("no weekly plan for the current week")

// App holds the application's dependencies.
type App struct {
	client       planapi.Client
	view         *planview.State
	coordinator  *adjust.Coordinator
	metricsStore *metrics.Store
	out          io.Writer
}

// NewApp creates and initializes a new App instance.
func NewApp(
	client planapi.Client,
	view *planview.State,
	coordinator *adjust.Coordinator,
	metricsStore *metrics.Store,
) *App {
	return &App{
		client:       client,
		view:         view,
		coordinator:  coordinator,
		metricsStore: metricsStore,
		out:          os.Stdout,
	}
}

// SetOutput redirects command output.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// currentPlan refreshes the view and returns a snapshot holding a plan.
func (a *App) currentPlan(ctx context.Context) (planview.Snapshot, error) {
	if err := a.view.Refresh(ctx); err != nil {
		return planview.Snapshot{}, fmt.Errorf("failed to load plan: %w", err)
	}
	snap := a.view.Snapshot()
	if snap.Plan == nil {
		return snap, ErrNoPlan
	}
	return snap, nil
}

// ShowWeek prints the current week projected onto this calendar week.
func (a *App) ShowWeek(ctx context.Context) error {
	snap, err := a.currentPlan(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "=== WEEK %d: %s ===\n", snap.Plan.WeekNumber, snap.Plan.Theme)
	if snap.IsOutdated() {
		fmt.Fprintln(a.out, "(this plan belongs to an earlier monthly plan; consider regenerating)")
	}
	for i := range planner.WeekdayOrder {
		key := snap.Week.Start.AddDate(0, 0, i).Day()
		ex, hasEx := snap.DayExercise(key)
		nut, hasNut := snap.DayNutrition(key)
		if !hasEx && !hasNut {
			fmt.Fprintf(a.out, "\n%-10s (%02d): no plan\n", planner.WeekdayOrder[i], key)
			continue
		}
		marker := ""
		if key == snap.TodayKey() {
			marker = " <- today"
		}
		fmt.Fprintf(a.out, "\n%-10s (%02d)%s\n", planner.WeekdayOrder[i], key, marker)
		writeExercise(a.out, ex)
		writeNutrition(a.out, nut)
	}
	if snap.Plan.AIWeeklySummary != "" {
		fmt.Fprintf(a.out, "\nSummary: %s\n", snap.Plan.AIWeeklySummary)
	}
	return nil
}

// ShowToday prints today's plan and completion record.
func (a *App) ShowToday(ctx context.Context) error {
	today, err := a.client.TodayPlan(ctx)
	if errors.Is(err, planapi.ErrNotFound) {
		return ErrNoPlan
	}
	if err != nil {
		return fmt.Errorf("failed to fetch today's plan: %w", err)
	}

	name := today.DayName
	if name == "" {
		name = "today"
	}
	fmt.Fprintf(a.out, "=== %s ===\n", strings.ToUpper(name))

	ex := planner.NormalizeExercises(today.DayPlan)
	writeExercise(a.out, planner.DayExerciseView{
		IsRestDay:     today.IsRestDay,
		Exercises:     ex.Exercises,
		TotalDuration: ex.TotalDuration,
		TotalCalories: ex.TotalCalories,
		Tips:          today.Tips,
	})
	writeNutrition(a.out, planner.AggregateNutrition(today.Diet))

	done := "no"
	if today.Completion.ExerciseCompleted {
		done = "yes"
	}
	fmt.Fprintf(a.out, "Exercise done: %s\n", done)
	if today.Completion.DietAdherence != nil {
		fmt.Fprintf(a.out, "Diet adherence: %d%%\n", *today.Completion.DietAdherence)
	}
	return nil
}

// Regenerate asks the backend to regenerate the current week. A weekNumber of
// zero keeps the current plan's week number.
func (a *App) Regenerate(ctx context.Context, weekNumber int) error {
	if err := a.view.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	snap := a.view.Snapshot()
	if snap.Monthly == nil {
		return errors.New("no monthly plan to generate from")
	}
	if weekNumber <= 0 {
		weekNumber = 1
		if snap.Plan != nil && snap.Plan.WeekNumber > 0 {
			weekNumber = snap.Plan.WeekNumber
		}
	}

	fmt.Fprintf(a.out, "Regenerating week %d of %s...\n", weekNumber, snap.Monthly.Title)
	start := snap.Week.Start
	if _, err := a.coordinator.RegenerateWeek(ctx, snap.Monthly.ID, weekNumber, &start); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Week regenerated.")
	return a.printRefreshError()
}

// AdjustDay applies a skip/reduce/change adjustment to a weekday.
func (a *App) AdjustDay(ctx context.Context, dayName string, adjustment planapi.AdjustmentType) error {
	day, ok := planner.ParseWeekday(dayName)
	if !ok {
		return fmt.Errorf("unknown weekday %q", dayName)
	}
	snap, err := a.currentPlan(ctx)
	if err != nil {
		return err
	}
	if err := a.coordinator.AdjustDay(ctx, snap.Plan.ID, day, adjustment, nil); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Applied %s to %s.\n", adjustment, day)
	return a.printRefreshError()
}

// MarkDone marks a day's exercise as completed. A negative adherence leaves
// the diet adherence unchanged.
func (a *App) MarkDone(ctx context.Context, dayName string, adherence int) error {
	day, ok := planner.ParseWeekday(dayName)
	if !ok {
		return fmt.Errorf("unknown weekday %q", dayName)
	}
	snap, err := a.currentPlan(ctx)
	if err != nil {
		return err
	}

	done := true
	patch := planapi.CompletionPatch{ExerciseCompleted: &done}
	if adherence >= 0 {
		if adherence > 100 {
			adherence = 100
		}
		patch.DietAdherence = &adherence
	}
	if err := a.coordinator.MarkDayCompletion(ctx, snap.Plan.ID, day, patch); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Marked %s as done.\n", day)
	return a.printRefreshError()
}

// Adjust sends a natural-language change request for the whole week. An empty
// domain targets the week; any other value targets that diet domain.
func (a *App) Adjust(ctx context.Context, request, domain string) error {
	snap, err := a.currentPlan(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Adjusting plan: \"%s\"...\n", request)
	var res *planapi.AIAdjustResult
	if domain == "" {
		res, err = a.coordinator.AIAdjustWeeklyPlan(ctx, snap.Plan.ID, request)
	} else {
		res, err = a.coordinator.AIAdjustDietPlan(ctx, snap.Plan.ID, request, domain)
	}
	if err != nil {
		return err
	}

	if !res.Succeeded() {
		fmt.Fprintf(a.out, "The plan was not changed: %s\n", res.UserMessage())
		return nil
	}
	if msg := res.UserMessage(); msg != "" {
		fmt.Fprintln(a.out, msg)
	}
	for _, c := range res.Changes {
		fmt.Fprintf(a.out, "- %s\n", c)
	}
	return a.printRefreshError()
}

// PrintUsage prints daily call statistics for the plan API.
func (a *App) PrintUsage(days int) {
	usage := a.metricsStore.GetDailyUsage(days)
	if len(usage) == 0 {
		fmt.Fprintln(a.out, "No API calls recorded.")
		return
	}
	for _, u := range usage {
		fmt.Fprintf(a.out, "%s: %d calls, %d failed, avg %dms, slowest %dms (%s)\n",
			u.Date, u.TotalCalls, u.TotalFailures, u.AvgLatencyMS, u.SlowestCallMS, u.SlowestEndpoint)
	}
}

// printRefreshError reports a refresh that failed after a successful change.
func (a *App) printRefreshError() error {
	if err := a.view.Snapshot().Err; err != nil {
		log.Printf("Warning: plan changed but could not be reloaded: %v", err)
	}
	return nil
}
