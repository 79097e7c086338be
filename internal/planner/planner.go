package planner

import (
	"log/slog"
	"time"
)

// WeekStart returns midnight of the Monday on or before ref, in ref's location.
// Sunday counts as day 7 so it belongs to the week that started six days earlier.
func WeekStart(ref time.Time) time.Time {
	weekday := int(ref.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := ref.AddDate(0, 0, 1-weekday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, ref.Location())
}

// WeekdayOf returns the plan weekday for a calendar date.
func WeekdayOf(t time.Time) Weekday {
	i := int(t.Weekday()) - 1
	if i < 0 {
		i = 6
	}
	return WeekdayOrder[i]
}

// DayExerciseView is the projected exercise of one calendar day.
type DayExerciseView struct {
	DateKey       int            `json:"date_key"`
	Date          time.Time      `json:"date"`
	Weekday       Weekday        `json:"weekday"`
	TotalDuration float64        `json:"total_duration"`
	TotalCalories float64        `json:"total_calories"`
	Exercises     []ExerciseView `json:"exercises"`
	GoalDuration  float64        `json:"goal_duration"`
	GoalCalories  float64        `json:"goal_calories"`
	IsRestDay     bool           `json:"is_rest_day"`
	Tips          []string       `json:"tips"`
}

// Week is a plan laid onto one calendar week. Both maps are keyed by
// day-of-month and have the same keys.
type Week struct {
	Start     time.Time
	Exercise  map[int]DayExerciseView
	Nutrition map[int]DayNutritionView
}

// Projector lays weekday-keyed plans onto the calendar week of a reference
// date. It keeps no state between calls.
type Projector struct {
	Aggregator *Aggregator
	Logger     *slog.Logger
}

// NewProjector creates a Projector with default macro ratios and logging off.
func NewProjector(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Projector{
		Aggregator: NewAggregator(),
		Logger:     logger,
	}
}

func (p *Projector) logger() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func (p *Projector) aggregator() *Aggregator {
	if p == nil || p.Aggregator == nil {
		return NewAggregator()
	}
	return p.Aggregator
}

// eachDay calls fn for every weekday of the current week that has a plan.
// The weekday at index i lands on weekStart+i regardless of the dates the
// plan was generated for.
func (p *Projector) eachDay(plan *WeeklyPlan, ref time.Time, fn func(date time.Time, wd Weekday, day DayPlan)) {
	start := WeekStart(ref)
	for i, wd := range WeekdayOrder {
		day, ok := plan.Day(wd)
		if !ok {
			p.logger().Debug("no plan for weekday", "weekday", wd)
			continue
		}
		fn(start.AddDate(0, 0, i), wd, day)
	}
}

// ProjectExercise returns the exercise view of each planned day keyed by
// day-of-month.
func (p *Projector) ProjectExercise(plan *WeeklyPlan, ref time.Time) map[int]DayExerciseView {
	out := make(map[int]DayExerciseView, 7)
	p.eachDay(plan, ref, func(date time.Time, wd Weekday, day DayPlan) {
		norm := NormalizeExercises(day)
		tips := day.Tips
		if tips == nil {
			tips = []string{}
		}
		out[date.Day()] = DayExerciseView{
			DateKey:       date.Day(),
			Date:          date,
			Weekday:       wd,
			TotalDuration: norm.TotalDuration,
			TotalCalories: norm.TotalCalories,
			Exercises:     norm.Exercises,
			GoalDuration:  norm.TotalDuration,
			GoalCalories:  norm.TotalCalories,
			IsRestDay:     day.IsRestDay,
			Tips:          tips,
		}
	})
	return out
}

// ProjectNutrition returns the nutrition view of each planned day keyed by
// day-of-month.
func (p *Projector) ProjectNutrition(plan *WeeklyPlan, ref time.Time) map[int]DayNutritionView {
	agg := p.aggregator()
	out := make(map[int]DayNutritionView, 7)
	p.eachDay(plan, ref, func(date time.Time, wd Weekday, day DayPlan) {
		view := agg.Aggregate(day.Diet)
		view.DateKey = date.Day()
		view.DayName = day.DayName
		if view.DayName == "" {
			view.DayName = string(wd)
		}
		out[date.Day()] = view
	})
	return out
}

// Project runs both projections for the same reference date.
func (p *Projector) Project(plan *WeeklyPlan, ref time.Time) Week {
	w := Week{
		Start:     WeekStart(ref),
		Exercise:  p.ProjectExercise(plan, ref),
		Nutrition: p.ProjectNutrition(plan, ref),
	}
	p.logger().Debug("projected weekly plan",
		"week_start", w.Start.Format("2006-01-02"),
		"days", len(w.Exercise),
	)
	return w
}
