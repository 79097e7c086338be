package planner

import "strings"

// SourceKind says which of the two historical exercise shapes a day uses.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceSingle
	SourceMulti
)

func (k SourceKind) String() string {
	switch k {
	case SourceSingle:
		return "single"
	case SourceMulti:
		return "multi"
	default:
		return "none"
	}
}

// ExerciseSource is the resolved exercise shape of a day. Items holds one
// entry for SourceSingle, one or more for SourceMulti, none for SourceNone.
type ExerciseSource struct {
	Kind  SourceKind
	Items []ExercisePlan
}

// ResolveExerciseSource picks the authoritative exercise field of a day.
// Rest days always resolve to SourceNone.
func ResolveExerciseSource(day DayPlan) ExerciseSource {
	switch {
	case day.IsRestDay:
		return ExerciseSource{Kind: SourceNone}
	case len(day.Exercises) > 0:
		return ExerciseSource{Kind: SourceMulti, Items: day.Exercises}
	case day.Exercise != nil:
		return ExerciseSource{Kind: SourceSingle, Items: []ExercisePlan{*day.Exercise}}
	default:
		return ExerciseSource{Kind: SourceNone}
	}
}

// TimePeriod is the coarse part of the day a time slot falls into.
type TimePeriod string

const (
	PeriodUnspecified TimePeriod = ""
	PeriodMorning     TimePeriod = "morning"
	PeriodAfternoon   TimePeriod = "afternoon"
	PeriodEvening     TimePeriod = "evening"
)

var periodMarkers = []struct {
	period  TimePeriod
	markers []string
}{
	{PeriodMorning, []string{"morning", "早", "上午", "晨"}},
	{PeriodAfternoon, []string{"afternoon", "noon", "下午", "中午", "午"}},
	{PeriodEvening, []string{"evening", "night", "晚", "夜"}},
}

// ClassifyTimeSlot maps a free-text slot like "早上 7:00" or "Evening run"
// onto a TimePeriod by substring match.
func ClassifyTimeSlot(slot string) TimePeriod {
	s := strings.ToLower(slot)
	for _, pm := range periodMarkers {
		for _, m := range pm.markers {
			if strings.Contains(s, m) {
				return pm.period
			}
		}
	}
	return PeriodUnspecified
}

const (
	CategoryLight    = "轻度运动"
	CategoryModerate = "中度运动"
	CategoryHigh     = "高强度运动"
)

// CategoryFor returns the display category for an intensity. Anything that
// is not light or moderate counts as high.
func CategoryFor(i Intensity) string {
	switch i {
	case IntensityLight:
		return CategoryLight
	case IntensityModerate:
		return CategoryModerate
	default:
		return CategoryHigh
	}
}

// DefaultExerciseIcon is used for exercise ids missing from exerciseIcons.
const DefaultExerciseIcon = "activity"

var exerciseIcons = map[string]string{
	"walking":           "walk",
	"brisk_walking":     "walk",
	"running":           "run",
	"jogging":           "run",
	"cycling":           "bike",
	"swimming":          "swim",
	"yoga":              "yoga",
	"pilates":           "yoga",
	"stretching":        "stretch",
	"strength_training": "dumbbell",
	"weight_training":   "dumbbell",
	"bodyweight":        "dumbbell",
	"hiit":              "flame",
	"jump_rope":         "jump-rope",
	"dancing":           "music",
	"hiking":            "mountain",
	"basketball":        "ball",
	"badminton":         "ball",
	"tai_chi":           "leaf",
}

// IconFor looks up the icon key for an exercise id.
func IconFor(exerciseID string) string {
	if icon, ok := exerciseIcons[strings.ToLower(exerciseID)]; ok {
		return icon
	}
	return DefaultExerciseIcon
}

// ExerciseView is a normalised exercise ready for display.
type ExerciseView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Duration float64    `json:"duration"`
	Calories float64    `json:"calories"`
	Category string     `json:"category"`
	Icon     string     `json:"icon"`
	TimeSlot string     `json:"time_slot"`
	Period   TimePeriod `json:"period"`
}

// NormalizedExercises is the uniform exercise list of a day with its totals.
type NormalizedExercises struct {
	Exercises     []ExerciseView
	TotalDuration float64
	TotalCalories float64
}

func toExerciseView(e ExercisePlan) ExerciseView {
	return ExerciseView{
		ID:       e.ExerciseID,
		Name:     e.Name,
		Duration: e.Duration,
		Calories: e.CaloriesTarget,
		Category: CategoryFor(e.Intensity),
		Icon:     IconFor(e.ExerciseID),
		TimeSlot: e.TimeSlot,
		Period:   ClassifyTimeSlot(e.TimeSlot),
	}
}

// NormalizeExercises reconciles the legacy single-exercise shape with the
// multi-exercise shape and sums the result.
func NormalizeExercises(day DayPlan) NormalizedExercises {
	src := ResolveExerciseSource(day)

	out := NormalizedExercises{Exercises: make([]ExerciseView, 0, len(src.Items))}
	for _, item := range src.Items {
		v := toExerciseView(item)
		out.Exercises = append(out.Exercises, v)
		out.TotalDuration += v.Duration
		out.TotalCalories += v.Calories
	}
	return out
}
