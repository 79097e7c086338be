package app

import (
	"fmt"
	"io"
	"strings"

	"weekly-health-plan/internal/planner"
)

var mealNames = []string{"Breakfast", "Lunch", "Dinner", "Snacks"}

func writeExercise(w io.Writer, v planner.DayExerciseView) {
	if v.IsRestDay {
		fmt.Fprintln(w, "  Rest day")
	} else if len(v.Exercises) == 0 {
		fmt.Fprintln(w, "  No exercise planned")
	}
	for _, ex := range v.Exercises {
		slot := ""
		if ex.TimeSlot != "" {
			slot = " @ " + ex.TimeSlot
		}
		fmt.Fprintf(w, "  - %s (%s): %.0f min, %.0f kcal%s\n", ex.Name, ex.Category, ex.Duration, ex.Calories, slot)
	}
	if len(v.Exercises) > 1 {
		fmt.Fprintf(w, "  Total: %.0f min, %.0f kcal\n", v.TotalDuration, v.TotalCalories)
	}
	for _, tip := range v.Tips {
		fmt.Fprintf(w, "  Tip: %s\n", tip)
	}
}

func writeNutrition(w io.Writer, v planner.DayNutritionView) {
	for i, meal := range v.Meals() {
		if len(meal.Foods) == 0 {
			continue
		}
		names := make([]string, 0, len(meal.Foods))
		for _, f := range meal.Foods {
			if f.Portion != "" {
				names = append(names, fmt.Sprintf("%s (%s)", f.Name, f.Portion))
			} else {
				names = append(names, f.Name)
			}
		}
		fmt.Fprintf(w, "  %s: %s [%.0f kcal]\n", mealNames[i], strings.Join(names, ", "), meal.Calories)
	}
	t := v.DailyTotals
	fmt.Fprintf(w, "  Intake: %d/%.0f kcal | P %dg C %dg F %dg\n", t.Calories, v.TargetCalories, t.Protein, t.Carbs, t.Fat)
	fmt.Fprintf(w, "  Targets: P %.0fg C %.0fg F %.0fg Fiber %.0fg | Water %s\n",
		v.Targets.Protein, v.Targets.Carbs, v.Targets.Fat, v.Targets.Fiber, v.HydrationGoal)
	if len(v.DietaryRestrictions) > 0 {
		fmt.Fprintf(w, "  Avoid: %s\n", strings.Join(v.DietaryRestrictions, ", "))
	}
}
