package mealmemory

// DailyTargets are the protocol's per-day macro goals.
type DailyTargets struct {
	Calories float64 `json:"calories" env:"TARGET_CALORIES,default=2000"`
	Protein  float64 `json:"protein" env:"TARGET_PROTEIN,default=150"`
	Carbs    float64 `json:"carbs" env:"TARGET_CARBS,default=200"`
	Fat      float64 `json:"fat" env:"TARGET_FAT,default=65"`
}

// Macros returns the targets as a Macros value.
func (t DailyTargets) Macros() Macros {
	return Macros{Calories: t.Calories, Protein: t.Protein, Carbs: t.Carbs, Fat: t.Fat}
}

// DaySummary is the consumed/remaining view over a day's meals.
type DaySummary struct {
	Meals     int    `json:"meals"`
	Consumed  Macros `json:"consumed"`
	Remaining Macros `json:"remaining"`
	Targets   Macros `json:"targets"`
}

// Summarize totals the meals' stored macros and subtracts them from targets.
// Remaining values go negative once a target is exceeded.
func Summarize(meals []Meal, targets DailyTargets) DaySummary {
	var consumed Macros
	for _, m := range meals {
		consumed = consumed.Add(Aggregate(m.Items))
	}
	return DaySummary{
		Meals:     len(meals),
		Consumed:  consumed,
		Remaining: targets.Macros().Sub(consumed),
		Targets:   targets.Macros(),
	}
}

// RemainingCalories is a convenience for building an AnalysisRequest.
func (s DaySummary) RemainingCalories() *float64 {
	v := s.Remaining.Calories
	return &v
}
