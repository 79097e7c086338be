package planner

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Weekday is the lowercase English weekday name used as a daily_plans key.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// WeekdayOrder is the Monday-first order used to lay a plan onto the calendar.
var WeekdayOrder = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseWeekday normalises user input such as "Wed" or " FRIDAY ".
func ParseWeekday(s string) (Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return "", false
	}
	for _, d := range WeekdayOrder {
		if strings.HasPrefix(string(d), s) {
			return d, true
		}
	}
	return "", false
}

// Index returns the Monday-first position of d, or -1 for an unknown name.
func (d Weekday) Index() int {
	for i, w := range WeekdayOrder {
		if w == d {
			return i
		}
	}
	return -1
}

// Intensity is the prescribed effort level of an exercise.
type Intensity string

const (
	IntensityLight    Intensity = "light"
	IntensityModerate Intensity = "moderate"
	IntensityHigh     Intensity = "high"
)

// ID is a backend identifier. The plan service emits both numeric and string
// ids depending on the table, so both are accepted and kept as text. Any other
// JSON value decodes as an empty ID.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	*id = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if json.Unmarshal(b, &n) == nil {
		*id = ID(n.String())
	}
	return nil
}

func (id ID) String() string { return string(id) }

// MonthlyPlan is the parent of a run of weekly plans.
type MonthlyPlan struct {
	ID    ID     `json:"id"`
	Month string `json:"month"`
	Title string `json:"title"`
}

// WeeklyPlan is a server-generated 7-day prescription keyed by weekday.
// WeekStartDate and WeekEndDate are what the generator used and may not match
// the calendar week being viewed.
type WeeklyPlan struct {
	ID               ID                  `json:"id"`
	UserID           ID                  `json:"user_id"`
	MonthlyPlanID    ID                  `json:"monthly_plan_id"`
	WeekNumber       int                 `json:"week_number"`
	WeekStartDate    string              `json:"week_start_date"`
	WeekEndDate      string              `json:"week_end_date"`
	Theme            string              `json:"theme"`
	DailyPlans       map[Weekday]DayPlan `json:"daily_plans"`
	AIWeeklySummary  string              `json:"ai_weekly_summary,omitempty"`
	CompletionStatus json.RawMessage     `json:"completion_status,omitempty"`
}

// Day returns the plan for d and whether one exists.
func (p *WeeklyPlan) Day(d Weekday) (DayPlan, bool) {
	if p == nil || p.DailyPlans == nil {
		return DayPlan{}, false
	}
	day, ok := p.DailyPlans[d]
	return day, ok
}

// DayPlan is one weekday of a weekly plan. When IsRestDay is set the exercise
// fields are ignored.
type DayPlan struct {
	Date      string         `json:"date"`
	DayName   string         `json:"day_name"`
	IsRestDay bool           `json:"is_rest_day"`
	Exercise  *ExercisePlan  `json:"exercise,omitempty"`
	Exercises []ExercisePlan `json:"exercises,omitempty"`
	Diet      DietPlan       `json:"diet"`
	Tips      []string       `json:"tips,omitempty"`
}

// ExercisePlan is a single prescribed exercise.
type ExercisePlan struct {
	ExerciseID     string    `json:"exercise_id"`
	Name           string    `json:"name"`
	Duration       float64   `json:"duration"` // minutes
	Intensity      Intensity `json:"intensity"`
	CaloriesTarget float64   `json:"calories_target"`
	TimeSlot       string    `json:"time_slot"`
	ExecutionGuide string    `json:"execution_guide,omitempty"`
	Alternatives   []string  `json:"alternatives,omitempty"`
}

// NutritionTargets are daily macro goals in grams.
type NutritionTargets struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Fiber   float64 `json:"fiber"`
}

// NutritionTotals is the server's precomputed aggregate. It is decoded for
// completeness but never used for display totals.
type NutritionTotals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// ExerciseDietLink ties the day's diet to its training load.
type ExerciseDietLink struct {
	ExerciseCaloriesBurned float64  `json:"exercise_calories_burned"`
	CalorieCompensation    float64  `json:"calorie_compensation"`
	IsStrengthDay          bool     `json:"is_strength_day"`
	IsHighIntensityDay     bool     `json:"is_high_intensity_day"`
	PrimaryTimeSlot        string   `json:"primary_time_slot,omitempty"`
	PostExerciseTips       []string `json:"post_exercise_tips,omitempty"`
}

// DietPlan is the diet prescription for one day.
type DietPlan struct {
	CaloriesTarget      *float64          `json:"calories_target,omitempty"`
	NutritionTargets    *NutritionTargets `json:"nutrition_targets,omitempty"`
	Breakfast           MealPlan          `json:"breakfast"`
	Lunch               MealPlan          `json:"lunch"`
	Dinner              MealPlan          `json:"dinner"`
	Snacks              MealPlan          `json:"snacks"`
	HydrationGoal       string            `json:"hydration_goal,omitempty"`
	DailyTotals         *NutritionTotals  `json:"daily_totals,omitempty"`
	DietaryRestrictions []string          `json:"dietary_restrictions,omitempty"`
	HealthAdvice        []string          `json:"health_advice,omitempty"`
	ExerciseDietLink    *ExerciseDietLink `json:"exercise_diet_link,omitempty"`
}

// MealPlan is an ordered list of foods plus an optional calorie figure.
type MealPlan struct {
	Foods    []Food   `json:"foods"`
	Calories *float64 `json:"calories,omitempty"`
}

// Food is a single food entry. Nutrient values are optional.
type Food struct {
	FoodID   string   `json:"food_id"`
	Name     string   `json:"name"`
	Portion  string   `json:"portion"`
	Calories *float64 `json:"calories,omitempty"`
	Protein  *float64 `json:"protein,omitempty"`
	Carbs    *float64 `json:"carbs,omitempty"`
	Fat      *float64 `json:"fat,omitempty"`
	Fiber    *float64 `json:"fiber,omitempty"`
}

// Completion records what the user reported for a day.
type Completion struct {
	ExerciseCompleted bool `json:"exercise_completed"`
	DietAdherence     *int `json:"diet_adherence,omitempty"` // percent
}

// TodayPlan is the current day's plan plus its completion record.
type TodayPlan struct {
	DayPlan
	PlanID     ID         `json:"plan_id,omitempty"`
	Completion Completion `json:"completion"`
}
