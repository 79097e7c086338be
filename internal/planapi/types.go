package planapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"weekly-health-plan/internal/planner"
)

// ErrNotFound is matched by errors.Is when the backend has no such resource,
// e.g. no weekly plan has been generated for the current week yet.
var ErrNotFound = errors.New("planapi: not found")

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("planapi: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("planapi: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// AdjustmentType is a structural, non-AI change to one day.
type AdjustmentType string

const (
	SkipExercise   AdjustmentType = "skip_exercise"
	ReduceExercise AdjustmentType = "reduce_exercise"
	ChangeExercise AdjustmentType = "change_exercise"
)

// Valid reports whether t is one of the supported adjustment types.
func (t AdjustmentType) Valid() bool {
	switch t {
	case SkipExercise, ReduceExercise, ChangeExercise:
		return true
	}
	return false
}

// GenerateRequest asks the backend to (re)generate one week of a monthly plan.
type GenerateRequest struct {
	MonthlyPlanID planner.ID
	WeekNumber    int
	WeekStartDate *time.Time
}

type generateBody struct {
	MonthlyPlanID string `json:"monthly_plan_id"`
	WeekNumber    int    `json:"week_number"`
	WeekStartDate string `json:"week_start_date,omitempty"`
}

// CompletionPatch is a partial update of a day's completion record. Nil
// fields are left unchanged on the server.
type CompletionPatch struct {
	ExerciseCompleted *bool `json:"exercise_completed,omitempty"`
	DietAdherence     *int  `json:"diet_adherence,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p CompletionPatch) Empty() bool {
	return p.ExerciseCompleted == nil && p.DietAdherence == nil
}

type adjustBody struct {
	Day            planner.Weekday `json:"day"`
	AdjustmentType AdjustmentType  `json:"adjustment_type"`
	Options        map[string]any  `json:"options,omitempty"`
}

type aiAdjustBody struct {
	Request string `json:"request"`
	Domain  string `json:"domain,omitempty"`
}

// AIStatus is the outcome reported by the AI adjuster.
type AIStatus string

const (
	StatusSuccess AIStatus = "success"
	StatusFailure AIStatus = "failure"
)

// AIAdjustResult is the AI adjuster's answer. A failure is a well-formed
// rejection, not a transport error. UpdatedPlan is kept raw: the refetched
// plan is authoritative, so it is never merged.
type AIAdjustResult struct {
	Status      AIStatus
	Message     string
	Explanation string
	Changes     []string
	UpdatedPlan json.RawMessage
}

// Succeeded reports whether the backend applied the adjustment.
func (r *AIAdjustResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// UserMessage is the text to show the user verbatim.
func (r *AIAdjustResult) UserMessage() string {
	if r == nil {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Explanation
}

type aiAdjustPayload struct {
	Status      string          `json:"status"`
	Success     *bool           `json:"success,omitempty"`
	Message     string          `json:"message"`
	Explanation string          `json:"explanation"`
	Changes     []string        `json:"changes"`
	UpdatedPlan json.RawMessage `json:"updated_plan,omitempty"`
}

// toResult narrows the payload. Only an explicit success counts as success.
func (p aiAdjustPayload) toResult() *AIAdjustResult {
	status := StatusFailure
	switch {
	case p.Status == string(StatusSuccess):
		status = StatusSuccess
	case p.Status == "" && p.Success != nil && *p.Success:
		status = StatusSuccess
	}
	changes := p.Changes
	if changes == nil {
		changes = []string{}
	}
	return &AIAdjustResult{
		Status:      status,
		Message:     p.Message,
		Explanation: p.Explanation,
		Changes:     changes,
		UpdatedPlan: p.UpdatedPlan,
	}
}
