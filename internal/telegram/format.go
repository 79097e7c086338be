package telegram

import (
	"fmt"
	"strings"

	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planner"
	"weekly-health-plan/internal/planview"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape protects server-provided text in legacy Markdown messages.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var periodIcons = map[planner.TimePeriod]string{
	planner.PeriodMorning:   "🌅",
	planner.PeriodAfternoon: "☀️",
	planner.PeriodEvening:   "🌙",
}

func formatWeekMarkdown(snap planview.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 *Week %d*", snap.Plan.WeekNumber))
	if snap.Plan.Theme != "" {
		sb.WriteString(": " + escape(snap.Plan.Theme))
	}
	sb.WriteString("\n")
	if snap.IsOutdated() {
		sb.WriteString("_This plan belongs to an earlier monthly plan._\n")
	}
	sb.WriteString("\n")

	for i, wd := range planner.WeekdayOrder {
		key := snap.Week.Start.AddDate(0, 0, i).Day()
		marker := ""
		if key == snap.TodayKey() {
			marker = " 👈"
		}
		ex, hasEx := snap.DayExercise(key)
		nut, hasNut := snap.DayNutrition(key)

		sb.WriteString(fmt.Sprintf("*%s %d*%s: ", titleCase(string(wd))[:3], key, marker))
		switch {
		case !hasEx && !hasNut:
			sb.WriteString("_no plan_")
		case ex.IsRestDay:
			sb.WriteString("😴 rest")
		case len(ex.Exercises) == 0:
			sb.WriteString("no exercise")
		default:
			names := make([]string, 0, len(ex.Exercises))
			for _, e := range ex.Exercises {
				names = append(names, escape(e.Name))
			}
			sb.WriteString(fmt.Sprintf("%s (%.0f min)", strings.Join(names, " + "), ex.TotalDuration))
		}
		if hasNut {
			sb.WriteString(fmt.Sprintf(" · 🍽 %d/%.0f kcal", nut.DailyTotals.Calories, nut.TargetCalories))
		}
		sb.WriteString("\n")
	}

	if snap.Plan.AIWeeklySummary != "" {
		sb.WriteString("\n_" + escape(snap.Plan.AIWeeklySummary) + "_\n")
	}
	return sb.String()
}

func formatDayMarkdown(title string, ex planner.DayExerciseView, nut planner.DayNutritionView) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🗓 *%s*\n\n", escape(title)))

	sb.WriteString("🏃 *Exercise*\n")
	switch {
	case ex.IsRestDay:
		sb.WriteString("😴 Rest day\n")
	case len(ex.Exercises) == 0:
		sb.WriteString("_Nothing planned_\n")
	default:
		for _, e := range ex.Exercises {
			icon := periodIcons[e.Period]
			if icon == "" {
				icon = "•"
			}
			sb.WriteString(fmt.Sprintf("%s %s: %.0f min, %.0f kcal (%s)\n", icon, escape(e.Name), e.Duration, e.Calories, e.Category))
		}
		if len(ex.Exercises) > 1 {
			sb.WriteString(fmt.Sprintf("Total: %.0f min, %.0f kcal\n", ex.TotalDuration, ex.TotalCalories))
		}
	}

	sb.WriteString("\n🍽 *Meals*\n")
	labels := []string{"Breakfast", "Lunch", "Dinner", "Snacks"}
	for i, meal := range nut.Meals() {
		if len(meal.Foods) == 0 {
			continue
		}
		foods := make([]string, 0, len(meal.Foods))
		for _, f := range meal.Foods {
			foods = append(foods, escape(f.Name))
		}
		sb.WriteString(fmt.Sprintf("• *%s* (%.0f kcal): %s\n", labels[i], meal.Calories, strings.Join(foods, ", ")))
	}
	t := nut.DailyTotals
	sb.WriteString(fmt.Sprintf("\n📊 %d/%.0f kcal · P %d/%.0fg · C %d/%.0fg · F %d/%.0fg\n",
		t.Calories, nut.TargetCalories,
		t.Protein, nut.Targets.Protein,
		t.Carbs, nut.Targets.Carbs,
		t.Fat, nut.Targets.Fat))
	sb.WriteString(fmt.Sprintf("💧 %s\n", escape(nut.HydrationGoal)))

	if link := nut.ExerciseDietLink; link != nil && len(link.PostExerciseTips) > 0 {
		sb.WriteString("\n")
		for _, tip := range link.PostExerciseTips {
			sb.WriteString("💡 " + escape(tip) + "\n")
		}
	}
	for _, tip := range ex.Tips {
		sb.WriteString("💡 " + escape(tip) + "\n")
	}
	return sb.String()
}

func formatCompletion(c planner.Completion) string {
	var sb strings.Builder
	sb.WriteString("\n")
	if c.ExerciseCompleted {
		sb.WriteString("✅ Exercise done")
	} else {
		sb.WriteString("⬜ Exercise not done yet")
	}
	if c.DietAdherence != nil {
		sb.WriteString(fmt.Sprintf(" · diet %d%%", *c.DietAdherence))
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatAIResultMarkdown(res *planapi.AIAdjustResult) string {
	var sb strings.Builder
	if !res.Succeeded() {
		sb.WriteString("🙅 *Plan not changed*\n")
		if msg := res.UserMessage(); msg != "" {
			sb.WriteString("\n" + escape(msg) + "\n")
		}
		return sb.String()
	}

	sb.WriteString("✅ *Plan updated*\n")
	if msg := res.UserMessage(); msg != "" {
		sb.WriteString("\n" + escape(msg) + "\n")
	}
	if len(res.Changes) > 0 {
		sb.WriteString("\n")
		for _, c := range res.Changes {
			sb.WriteString("• " + escape(c) + "\n")
		}
	}
	sb.WriteString("\nUse /week to see the new plan.")
	return sb.String()
}
