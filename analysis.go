package mealmemory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAnalysisUnavailable means the analyzer produced no usable result: it failed,
	// was cancelled, timed out, or returned nothing to reconcile.
	ErrAnalysisUnavailable = errors.New("analysis unavailable, try again")

	// ErrEmptyDescription is returned when a reconcile is requested for a blank description.
	ErrEmptyDescription = errors.New("meal description is empty")
)

type wireItem struct {
	Name     any `json:"name"`
	Quantity any `json:"quantity"`
	Calories any `json:"calories"`
	Protein  any `json:"protein"`
	Carbs    any `json:"carbs"`
	Fat      any `json:"fat"`
}

type wireMacros struct {
	Calories any `json:"calories"`
	Protein  any `json:"protein"`
	Carbs    any `json:"carbs"`
	Fat      any `json:"fat"`
}

type wireAnalysis struct {
	Name    any        `json:"name"`
	Items   []wireItem `json:"items"`
	Total   wireMacros `json:"total"`
	Tier    any        `json:"tier"`
	Swaps   []any      `json:"swaps"`
	Insight any        `json:"insight"`
}

// DecodeAnalysis parses an analyzer's JSON payload. It is the only place where loosely
// typed model output becomes an Analysis: numbers are coerced with ParseNumber, unknown
// tiers are dropped, and markdown code fences around the object are tolerated.
// A payload without items is reported as ErrAnalysisUnavailable.
func DecodeAnalysis(data []byte) (Analysis, error) {
	raw := stripCodeFence(string(data))
	if raw == "" {
		return Analysis{}, fmt.Errorf("%w: empty analysis payload", ErrAnalysisUnavailable)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var w wireAnalysis
	if err := dec.Decode(&w); err != nil {
		return Analysis{}, fmt.Errorf("%w: failed to decode analysis: %v", ErrAnalysisUnavailable, err)
	}
	if len(w.Items) == 0 {
		return Analysis{}, fmt.Errorf("%w: analysis returned no items", ErrAnalysisUnavailable)
	}

	a := Analysis{
		Name:    toString(w.Name),
		Tier:    ParseTier(strings.ToUpper(strings.TrimSpace(toString(w.Tier)))),
		Insight: toString(w.Insight),
		Total: Macros{
			Calories: ParseNumber(w.Total.Calories),
			Protein:  ParseNumber(w.Total.Protein),
			Carbs:    ParseNumber(w.Total.Carbs),
			Fat:      ParseNumber(w.Total.Fat),
		},
		Items: make([]AnalyzedItem, 0, len(w.Items)),
	}

	for _, it := range w.Items {
		a.Items = append(a.Items, AnalyzedItem{
			Name:     strings.TrimSpace(toString(it.Name)),
			Quantity: strings.TrimSpace(toString(it.Quantity)),
			Calories: ParseNumber(it.Calories),
			Protein:  ParseNumber(it.Protein),
			Carbs:    ParseNumber(it.Carbs),
			Fat:      ParseNumber(it.Fat),
		})
	}

	for _, s := range w.Swaps {
		if swap := strings.TrimSpace(toString(s)); swap != "" {
			a.Swaps = append(a.Swaps, swap)
		}
	}

	return a, nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// stripCodeFence removes a surrounding ```json ... ``` block, which some models emit
// even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
