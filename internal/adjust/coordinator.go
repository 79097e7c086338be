package adjust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planner"
)

var (
	// ErrBusy is returned when a mutation is attempted while another is in flight.
	ErrBusy = errors.New("adjust: another plan change is in progress")
	// ErrEmptyRequest is returned for a blank natural-language request.
	ErrEmptyRequest = errors.New("adjust: adjustment request is empty")
	// ErrInvalidAdjustment is returned for an unknown adjustment type or weekday.
	ErrInvalidAdjustment = errors.New("adjust: invalid adjustment")
)

// State is the coordinator's mutation state.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateAdjusting
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateAdjusting:
		return "adjusting"
	default:
		return "idle"
	}
}

// Refresher re-fetches and re-projects the plan view.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Coordinator issues plan mutations against the backend, one at a time, and
// refreshes the view after every one that succeeds. It never patches local
// state.
type Coordinator struct {
	client    planapi.Client
	refresher Refresher
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// NewCoordinator creates a coordinator. logger may be nil.
func NewCoordinator(client planapi.Client, refresher Refresher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		client:    client,
		refresher: refresher,
		logger:    logger,
	}
}

// State returns the current mutation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// begin moves idle → s, or fails with ErrBusy.
func (c *Coordinator) begin(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	c.state = s
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// refresh runs after a successful mutation. A failed refresh is left to the
// view state to report; the mutation itself already happened.
func (c *Coordinator) refresh(ctx context.Context, op string) {
	if c.refresher == nil {
		return
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after mutation failed", "op", op, "error", err)
	}
}

// RegenerateWeek asks the backend to regenerate one week of a monthly plan.
// The returned plan is informational; the view is refreshed from the server.
func (c *Coordinator) RegenerateWeek(ctx context.Context, monthlyPlanID planner.ID, weekNumber int, weekStartDate *time.Time) (*planner.WeeklyPlan, error) {
	if err := c.begin(StateGenerating); err != nil {
		return nil, err
	}
	defer c.end()

	plan, err := c.client.GenerateWeeklyPlan(ctx, planapi.GenerateRequest{
		MonthlyPlanID: monthlyPlanID,
		WeekNumber:    weekNumber,
		WeekStartDate: weekStartDate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to regenerate week %d: %w", weekNumber, err)
	}
	c.logger.Info("week regenerated", "monthly_plan_id", monthlyPlanID, "week_number", weekNumber)
	c.refresh(ctx, "regenerate")
	return plan, nil
}

// MarkDayCompletion partially updates a day's completion record.
func (c *Coordinator) MarkDayCompletion(ctx context.Context, planID planner.ID, day planner.Weekday, patch planapi.CompletionPatch) error {
	if day.Index() < 0 || patch.Empty() {
		return ErrInvalidAdjustment
	}
	if err := c.begin(StateAdjusting); err != nil {
		return err
	}
	defer c.end()

	if err := c.client.UpdateDayCompletion(ctx, planID, day, patch); err != nil {
		return fmt.Errorf("failed to update %s completion: %w", day, err)
	}
	c.refresh(ctx, "completion")
	return nil
}

// AdjustDay applies a structural adjustment to one day.
func (c *Coordinator) AdjustDay(ctx context.Context, planID planner.ID, day planner.Weekday, adjustment planapi.AdjustmentType, options map[string]any) error {
	if day.Index() < 0 || !adjustment.Valid() {
		return ErrInvalidAdjustment
	}
	if err := c.begin(StateAdjusting); err != nil {
		return err
	}
	defer c.end()

	if err := c.client.AdjustWeeklyPlan(ctx, planID, day, adjustment, options); err != nil {
		return fmt.Errorf("failed to %s on %s: %w", adjustment, day, err)
	}
	c.refresh(ctx, string(adjustment))
	return nil
}

// AIAdjustWeeklyPlan sends a free-text change request for the whole week. A
// rejected request is a normal result, not an error, and triggers no refresh.
func (c *Coordinator) AIAdjustWeeklyPlan(ctx context.Context, planID planner.ID, request string) (*planapi.AIAdjustResult, error) {
	return c.aiAdjust(ctx, "ai_adjust_week", request, func(req string) (*planapi.AIAdjustResult, error) {
		return c.client.AIAdjustWeeklyPlan(ctx, planID, req)
	})
}

// AIAdjustDietPlan is AIAdjustWeeklyPlan scoped to a diet domain.
func (c *Coordinator) AIAdjustDietPlan(ctx context.Context, planID planner.ID, request, domain string) (*planapi.AIAdjustResult, error) {
	return c.aiAdjust(ctx, "ai_adjust_diet", request, func(req string) (*planapi.AIAdjustResult, error) {
		return c.client.AIAdjustDietPlan(ctx, planID, req, domain)
	})
}

func (c *Coordinator) aiAdjust(ctx context.Context, op, request string, call func(string) (*planapi.AIAdjustResult, error)) (*planapi.AIAdjustResult, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, ErrEmptyRequest
	}
	if err := c.begin(StateAdjusting); err != nil {
		return nil, err
	}
	defer c.end()

	res, err := call(request)
	if err != nil {
		return nil, fmt.Errorf("ai adjustment failed: %w", err)
	}
	if !res.Succeeded() {
		c.logger.Info("ai adjustment rejected", "op", op, "message", res.UserMessage())
		return res, nil
	}
	c.logger.Info("ai adjustment applied", "op", op, "changes", len(res.Changes))
	c.refresh(ctx, op)
	return res, nil
}
