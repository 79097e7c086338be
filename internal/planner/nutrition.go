package planner

import "math"

const (
	// DefaultCaloriesTarget applies when a diet plan carries no calorie target.
	DefaultCaloriesTarget = 2000
	// DefaultHydrationGoal applies when a diet plan carries no hydration goal.
	DefaultHydrationGoal = "2000ml"
)

// MacroRatios split a calorie target into macro gram targets. The energy
// shares are fractions of the calorie target; fiber is a fixed gram amount.
type MacroRatios struct {
	ProteinShare float64
	CarbsShare   float64
	FatShare     float64
	FiberGrams   float64
}

// DefaultMacroRatios is the business rule used when the server sends no
// explicit nutrition targets.
var DefaultMacroRatios = MacroRatios{
	ProteinShare: 0.18,
	CarbsShare:   0.55,
	FatShare:     0.27,
	FiberGrams:   25,
}

// kcal per gram
const (
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

// DeriveTargets computes rounded macro targets from a calorie target.
func DeriveTargets(calories float64, r MacroRatios) NutritionTargets {
	return NutritionTargets{
		Protein: math.Round(calories * r.ProteinShare / kcalPerGramProtein),
		Carbs:   math.Round(calories * r.CarbsShare / kcalPerGramCarbs),
		Fat:     math.Round(calories * r.FatShare / kcalPerGramFat),
		Fiber:   r.FiberGrams,
	}
}

// FoodView is a food with every nutrient defaulted to zero.
type FoodView struct {
	FoodID   string  `json:"food_id"`
	Name     string  `json:"name"`
	Portion  string  `json:"portion"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// MealView is a normalised meal. Calories is the meal's own figure when the
// server sent one, otherwise the sum of its foods.
type MealView struct {
	Foods    []FoodView `json:"foods"`
	Calories float64    `json:"calories"`
	Protein  float64    `json:"protein"`
	Carbs    float64    `json:"carbs"`
	Fat      float64    `json:"fat"`
}

// MacroTotals are aggregated-from-food actuals, rounded for display.
type MacroTotals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
	Fiber    int `json:"fiber"`
}

// DayNutritionView is the projected diet of one calendar day.
type DayNutritionView struct {
	DateKey             int               `json:"date_key"`
	DayName             string            `json:"day_name"`
	Breakfast           MealView          `json:"breakfast"`
	Lunch               MealView          `json:"lunch"`
	Dinner              MealView          `json:"dinner"`
	Snacks              MealView          `json:"snacks"`
	DailyTotals         MacroTotals       `json:"daily_totals"`
	TargetCalories      float64           `json:"target_calories"`
	Targets             NutritionTargets  `json:"targets"`
	HydrationGoal       string            `json:"hydration_goal"`
	DietaryRestrictions []string          `json:"dietary_restrictions"`
	HealthAdvice        []string          `json:"health_advice"`
	ExerciseDietLink    *ExerciseDietLink `json:"exercise_diet_link"`
}

// Meals returns the four meals in display order.
func (v DayNutritionView) Meals() []MealView {
	return []MealView{v.Breakfast, v.Lunch, v.Dinner, v.Snacks}
}

// Aggregator turns diet plans into nutrition views.
type Aggregator struct {
	Ratios MacroRatios
}

// NewAggregator returns an Aggregator using DefaultMacroRatios.
func NewAggregator() *Aggregator {
	return &Aggregator{Ratios: DefaultMacroRatios}
}

// AggregateNutrition aggregates with the default ratios.
func AggregateNutrition(diet DietPlan) DayNutritionView {
	return NewAggregator().Aggregate(diet)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func toFoodView(f Food) FoodView {
	return FoodView{
		FoodID:   f.FoodID,
		Name:     f.Name,
		Portion:  f.Portion,
		Calories: deref(f.Calories),
		Protein:  deref(f.Protein),
		Carbs:    deref(f.Carbs),
		Fat:      deref(f.Fat),
		Fiber:    deref(f.Fiber),
	}
}

type rawTotals struct {
	calories, protein, carbs, fat, fiber float64
}

func (t *rawTotals) add(f FoodView) {
	t.calories += f.Calories
	t.protein += f.Protein
	t.carbs += f.Carbs
	t.fat += f.Fat
	t.fiber += f.Fiber
}

func normalizeMeal(m MealPlan, day *rawTotals) MealView {
	view := MealView{Foods: make([]FoodView, 0, len(m.Foods))}
	var meal rawTotals
	for _, f := range m.Foods {
		fv := toFoodView(f)
		view.Foods = append(view.Foods, fv)
		meal.add(fv)
		day.add(fv)
	}
	view.Calories = meal.calories
	if m.Calories != nil {
		view.Calories = *m.Calories
	}
	view.Protein = meal.protein
	view.Carbs = meal.carbs
	view.Fat = meal.fat
	return view
}

func round(f float64) int {
	return int(math.Round(f))
}

// Aggregate builds the nutrition view of a single day. Daily totals always
// come from the foods; meal-level and plan-level aggregates are ignored.
func (a *Aggregator) Aggregate(diet DietPlan) DayNutritionView {
	ratios := a.Ratios
	if ratios == (MacroRatios{}) {
		ratios = DefaultMacroRatios
	}

	var day rawTotals
	view := DayNutritionView{
		Breakfast: normalizeMeal(diet.Breakfast, &day),
		Lunch:     normalizeMeal(diet.Lunch, &day),
		Dinner:    normalizeMeal(diet.Dinner, &day),
		Snacks:    normalizeMeal(diet.Snacks, &day),
	}
	view.DailyTotals = MacroTotals{
		Calories: round(day.calories),
		Protein:  round(day.protein),
		Carbs:    round(day.carbs),
		Fat:      round(day.fat),
		Fiber:    round(day.fiber),
	}

	view.TargetCalories = DefaultCaloriesTarget
	if diet.CaloriesTarget != nil {
		view.TargetCalories = *diet.CaloriesTarget
	}
	if diet.NutritionTargets != nil {
		view.Targets = *diet.NutritionTargets
	} else {
		view.Targets = DeriveTargets(view.TargetCalories, ratios)
	}

	view.HydrationGoal = diet.HydrationGoal
	if view.HydrationGoal == "" {
		view.HydrationGoal = DefaultHydrationGoal
	}

	view.DietaryRestrictions = diet.DietaryRestrictions
	if view.DietaryRestrictions == nil {
		view.DietaryRestrictions = []string{}
	}
	view.HealthAdvice = diet.HealthAdvice
	if view.HealthAdvice == nil {
		view.HealthAdvice = []string{}
	}
	view.ExerciseDietLink = diet.ExerciseDietLink
	return view
}
