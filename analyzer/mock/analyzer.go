package mock

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"mealmemory"
	"mealmemory/memory"
)

// Per-100g reference values used when no scripted response matches.
var reference = map[string]mealmemory.Macros{
	"grilled chicken": {Calories: 165, Protein: 31, Carbs: 0, Fat: 3.6},
	"chicken breast":  {Calories: 165, Protein: 31, Carbs: 0, Fat: 3.6},
	"rice":            {Calories: 130, Protein: 2.7, Carbs: 28, Fat: 0.3},
	"white rice":      {Calories: 130, Protein: 2.7, Carbs: 28, Fat: 0.3},
	"oats":            {Calories: 389, Protein: 16.9, Carbs: 66.3, Fat: 6.9},
	"milk":            {Calories: 42, Protein: 3.4, Carbs: 5, Fat: 1},
	"banana":          {Calories: 89, Protein: 1.1, Carbs: 22.8, Fat: 0.3},
	"egg":             {Calories: 155, Protein: 13, Carbs: 1.1, Fat: 11},
	"bread":           {Calories: 265, Protein: 9, Carbs: 49, Fat: 3.2},
}

var (
	splitter   = regexp.MustCompile(`\s*(?:,|\+|\band\b)\s*`)
	leadingQty = regexp.MustCompile(`^\s*\d+(?:[.,]\d+)?\s*(?:milliliters?|millilitres?|mililitros?|gramas?|grams?|grs?|mls?|g)?\b\s*`)
)

// Analyzer is a deterministic, offline mealmemory.Analyzer. Scripted responses are matched by
// normalized description; anything else is split into parts and priced from a small reference table.
type Analyzer struct {
	mu        sync.RWMutex
	responses map[string]mealmemory.Analysis
	err       error
	calls     atomic.Int64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{responses: make(map[string]mealmemory.Analysis)}
}

// Script makes AnalyzeMeal return a for description.
func (a *Analyzer) Script(description string, analysis mealmemory.Analysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[memory.NormalizePhrase(description)] = analysis
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (a *Analyzer) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Calls reports how many times AnalyzeMeal has been invoked.
func (a *Analyzer) Calls() int {
	return int(a.calls.Load())
}

func (a *Analyzer) AnalyzeMeal(ctx context.Context, req mealmemory.AnalysisRequest) (mealmemory.Analysis, error) {
	a.calls.Add(1)
	slog.Info("ANALYZER: Mock invoked", "description", req.Description)

	if err := ctx.Err(); err != nil {
		return mealmemory.Analysis{}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.err != nil {
		return mealmemory.Analysis{}, a.err
	}
	if scripted, ok := a.responses[memory.NormalizePhrase(req.Description)]; ok {
		return scripted, nil
	}
	return estimate(req), nil
}

func estimate(req mealmemory.AnalysisRequest) mealmemory.Analysis {
	var out mealmemory.Analysis
	for _, part := range splitter.Split(req.Description, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		grams := memory.ExtractGrams(part)
		name := strings.TrimSpace(leadingQty.ReplaceAllString(strings.ToLower(part), ""))
		if name == "" {
			continue
		}

		per100, ok := reference[memory.NormalizeFoodName(name)]
		if !ok {
			per100 = mealmemory.Macros{Calories: 100, Protein: 5, Carbs: 10, Fat: 4}
		}
		f := grams / 100
		out.Items = append(out.Items, mealmemory.AnalyzedItem{
			Name:     name,
			Quantity: fmt.Sprintf("%gg", grams),
			Calories: mealmemory.Round1(per100.Calories * f),
			Protein:  mealmemory.Round1(per100.Protein * f),
			Carbs:    mealmemory.Round1(per100.Carbs * f),
			Fat:      mealmemory.Round1(per100.Fat * f),
		})
	}
	if len(out.Items) == 0 {
		return out
	}

	out.Name = strings.ToUpper(out.Items[0].Name[:1]) + out.Items[0].Name[1:]
	out.Total = totalOf(out.Items)
	out.Tier = tierFor(out.Total, req.Goal)
	out.Swaps = []string{"Add a portion of vegetables"}
	out.Insight = fmt.Sprintf("About %.0f kcal with %.0fg protein.", out.Total.Calories, out.Total.Protein)
	return out
}

func totalOf(items []mealmemory.AnalyzedItem) mealmemory.Macros {
	var m mealmemory.Macros
	for _, it := range items {
		m = m.Add(mealmemory.Macros{Calories: it.Calories, Protein: it.Protein, Carbs: it.Carbs, Fat: it.Fat})
	}
	return m
}

// tierFor grades by protein share of calories, nudged by goal.
func tierFor(m mealmemory.Macros, goal mealmemory.Goal) mealmemory.Tier {
	if m.Calories <= 0 {
		return mealmemory.TierC
	}
	share := m.Protein * 4 / m.Calories
	if goal == mealmemory.GoalLose && m.Calories > 800 {
		share -= 0.1
	}
	switch {
	case share >= 0.35:
		return mealmemory.TierS
	case share >= 0.25:
		return mealmemory.TierA
	case share >= 0.15:
		return mealmemory.TierB
	case share >= 0.05:
		return mealmemory.TierC
	default:
		return mealmemory.TierD
	}
}
