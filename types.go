package mealmemory

import (
	"context"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// Analyzer turns a free-text meal description into structured nutrition data.
// Implementations return ErrAnalysisUnavailable (possibly wrapped) or any other
// error when no usable result exists; the engine treats every error the same way.
type Analyzer interface {
	AnalyzeMeal(ctx context.Context, req AnalysisRequest) (Analysis, error)
}

// Reconciler is implemented by the plain and instrumented engines.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (Meal, error)
}

// Tier grades a meal against the user's goal. The empty Tier means "not graded".
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// ParseTier returns the Tier for s, or the empty Tier when s is not one of S/A/B/C/D.
func ParseTier(s string) Tier {
	switch t := Tier(s); t {
	case TierS, TierA, TierB, TierC, TierD:
		return t
	}
	return ""
}

// Goal is the dietary direction of the active protocol.
type Goal string

const (
	GoalLose     Goal = "LOSE"
	GoalGain     Goal = "GAIN"
	GoalMaintain Goal = "MAINTAIN"
)

// Source records how a Meal was produced.
type Source string

const (
	SourcePhraseCache Source = "phrase_cache"
	SourceAnalysis    Source = "analysis"
	SourceManual      Source = "manual"
)

// Macros holds the four tracked macro channels. Calories are kcal, the rest grams.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// FoodItem is one ingredient line within a meal.
type FoodItem struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity,omitempty"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Macros returns the item's macro channels.
func (f FoodItem) Macros() Macros {
	return Macros{Calories: f.Calories, Protein: f.Protein, Carbs: f.Carbs, Fat: f.Fat}
}

// FoodDensity is a per-gram nutrient profile learned for a normalized food name.
type FoodDensity struct {
	Name            string  `json:"name"`
	CaloriesPerGram float64 `json:"calories_per_gram"`
	ProteinPerGram  float64 `json:"protein_per_gram"`
	CarbsPerGram    float64 `json:"carbs_per_gram"`
	FatPerGram      float64 `json:"fat_per_gram"`
	LastQuantity    string  `json:"last_quantity,omitempty"`
}

// MealCacheEntry is a previously computed meal, reusable for an identical description.
type MealCacheEntry struct {
	Description string     `json:"description"`
	Name        string     `json:"name"`
	Items       []FoodItem `json:"items"`
	Macros      Macros     `json:"macros"`
	Insight     string     `json:"insight,omitempty"`
	Tier        Tier       `json:"tier,omitempty"`
	Swaps       []string   `json:"swaps,omitempty"`
}

// Meal is a logged meal instance.
type Meal struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Description string     `json:"description"`
	Name        string     `json:"name"`
	Items       []FoodItem `json:"items"`
	Macros      Macros     `json:"macros"`
	Insight     string     `json:"insight,omitempty"`
	Tier        Tier       `json:"tier,omitempty"`
	Swaps       []string   `json:"swaps,omitempty"`
	Source      Source     `json:"source"`
}

// ReconcileRequest asks the engine to turn a description into a Meal.
type ReconcileRequest struct {
	Description       string
	CustomName        string
	WantInsight       bool
	Goal              Goal
	RemainingCalories *float64
}

// AnalysisRequest is what an Analyzer receives.
type AnalysisRequest struct {
	Description       string   `json:"description"`
	Goal              Goal     `json:"goal,omitempty"`
	RemainingCalories *float64 `json:"remaining_calories,omitempty"`
}

// AnalyzedItem is one item of an Analysis, with numbers already coerced.
type AnalyzedItem struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Analysis is the successful result of an Analyzer call.
type Analysis struct {
	Name    string         `json:"name,omitempty"`
	Items   []AnalyzedItem `json:"items"`
	Total   Macros         `json:"total"`
	Tier    Tier           `json:"tier,omitempty"`
	Swaps   []string       `json:"swaps,omitempty"`
	Insight string         `json:"insight"`
}
