package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealmemory"
	"mealmemory/analyzer/mock"
	"mealmemory/engine"
	"mealmemory/session"
	"mealmemory/storage"
)

var today = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *mock.Analyzer) {
	t.Helper()
	a := mock.NewAnalyzer()
	eng := engine.New(a, engine.WithClock(func() time.Time { return today }))
	s, err := session.Open(context.Background(), eng, session.Stores{
		Densities: storage.NewTestState(nil),
		Phrases:   storage.NewTestState(nil),
		Meals:     storage.NewTestState(nil),
	},
		session.WithClock(func() time.Time { return today }),
		session.WithTargets(mealmemory.DailyTargets{Calories: 2000, Protein: 150, Carbs: 200, Fat: 65}),
	)
	require.NoError(t, err)

	r, err := NewRegistry(s)
	require.NoError(t, err)
	return r, a
}

func run(t *testing.T, r *Registry, name string, input map[string]any) map[string]any {
	t.Helper()
	tool, err := r.GetTool(name)
	require.NoError(t, err)
	out, err := tool.Run(context.Background(), input)
	require.NoError(t, err)
	return out
}

func TestRegistry(t *testing.T) {
	r, _ := newTestRegistry(t)

	var names []string
	for _, tool := range r.GetTools() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Title())
		assert.NotEmpty(t, tool.Description())
		require.NotNil(t, tool.InputSchema())
		require.NotNil(t, tool.OutputSchema())
		assert.Equal(t, "object", tool.InputSchema().Type)
	}
	assert.Equal(t, []string{
		"day_summary",
		"density_list",
		"density_remove",
		"density_upsert",
		"meal_edit",
		"meal_log",
		"meal_total",
		"phrase_list",
		"phrase_remove",
		"phrase_upsert",
	}, names)

	_, err := r.GetTool("unknown_tool")
	assert.Error(t, err)

	_, err = NewRegistry(nil)
	assert.Error(t, err)
}

func TestMealLog_Run(t *testing.T) {
	r, a := newTestRegistry(t)

	out := run(t, r, "meal_log", map[string]any{
		"description":  "200g grilled chicken, 100g rice",
		"custom_name":  "Lunch",
		"want_insight": true,
	})

	meal := out["meal"].(map[string]any)
	assert.Equal(t, "Lunch", meal["name"])
	assert.Equal(t, "analysis", meal["source"])
	assert.Equal(t, 460.0, meal["macros"].(map[string]any)["calories"])
	assert.NotEmpty(t, meal["insight"])
	assert.Len(t, meal["items"], 2)

	out = run(t, r, "meal_log", map[string]any{"description": "200G Grilled Chicken, 100g Rice "})
	meal = out["meal"].(map[string]any)
	assert.Equal(t, "phrase_cache", meal["source"])
	assert.Equal(t, "Grilled chicken", meal["name"])
	assert.Nil(t, meal["insight"])
	assert.Equal(t, 1, a.Calls())
}

func TestMealLog_Errors(t *testing.T) {
	r, a := newTestRegistry(t)
	tool, err := r.GetTool("meal_log")
	require.NoError(t, err)

	_, err = tool.Run(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, "description")

	a.FailWith(assert.AnError)
	_, err = tool.Run(context.Background(), map[string]any{"description": "mystery stew"})
	assert.ErrorIs(t, err, mealmemory.ErrAnalysisUnavailable)
}

func TestMealEdit_Run(t *testing.T) {
	r, _ := newTestRegistry(t)

	logged := run(t, r, "meal_log", map[string]any{"description": "200g grilled chicken"})
	id := logged["meal"].(map[string]any)["id"].(string)

	out := run(t, r, "meal_edit", map[string]any{
		"id": id,
		"items": []any{
			map[string]any{"name": "grilled chicken", "quantity": "150g", "calories": "247.5", "protein": 46.5, "carbs": 0, "fat": "5.4"},
			map[string]any{"name": "salad", "calories": 40, "protein": "abc"},
		},
	})

	meal := out["meal"].(map[string]any)
	assert.Equal(t, "manual", meal["source"])
	macros := meal["macros"].(map[string]any)
	assert.Equal(t, 287.5, macros["calories"])
	assert.Equal(t, 46.5, macros["protein"])

	tool, _ := r.GetTool("meal_edit")
	_, err := tool.Run(context.Background(), map[string]any{"id": "nope", "items": []any{}})
	assert.ErrorIs(t, err, session.ErrMealNotFound)

	_, err = tool.Run(context.Background(), map[string]any{"id": id, "items": "not a list"})
	assert.Error(t, err)
}

func TestMealTotal_Run(t *testing.T) {
	tests := []struct {
		name     string
		items    []any
		expected map[string]any
	}{
		{
			name: "mixed numbers and strings",
			items: []any{
				map[string]any{"name": "a", "calories": "100.5", "protein": 10.04, "carbs": "5", "fat": 1},
				map[string]any{"name": "b", "calories": 50, "protein": "x", "carbs": nil, "fat": "2,5"},
			},
			expected: map[string]any{
				"total":   map[string]any{"calories": 150.5, "protein": 10.04, "carbs": 5.0, "fat": 3.5},
				"rounded": map[string]any{"calories": 151.0, "protein": 10.0, "carbs": 5.0, "fat": 3.5},
			},
		},
		{
			name:  "no items",
			items: []any{},
			expected: map[string]any{
				"total":   map[string]any{"calories": 0.0, "protein": 0.0, "carbs": 0.0, "fat": 0.0},
				"rounded": map[string]any{"calories": 0.0, "protein": 0.0, "carbs": 0.0, "fat": 0.0},
			},
		},
	}

	tool := NewMealTotal()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tool.Run(context.Background(), map[string]any{"items": tt.items})
			require.NoError(t, err)

			expectedJSON, _ := json.Marshal(tt.expected)
			actualJSON, _ := json.Marshal(out)
			assert.JSONEq(t, string(expectedJSON), string(actualJSON))
		})
	}
}

func TestDaySummary_Run(t *testing.T) {
	r, _ := newTestRegistry(t)
	run(t, r, "meal_log", map[string]any{"description": "200g grilled chicken, 100g rice"})

	out := run(t, r, "day_summary", map[string]any{})
	assert.Equal(t, "2026-03-01", out["date"])
	assert.Len(t, out["meals"], 1)
	assert.Equal(t, 460.0, out["consumed"].(map[string]any)["calories"])
	assert.Equal(t, 1540.0, out["remaining"].(map[string]any)["calories"])
	assert.Equal(t, 2000.0, out["targets"].(map[string]any)["calories"])

	out = run(t, r, "day_summary", map[string]any{"date": "2026-02-28"})
	assert.Equal(t, []any{}, out["meals"])
	assert.Equal(t, 2000.0, out["remaining"].(map[string]any)["calories"])

	tool, _ := r.GetTool("day_summary")
	_, err := tool.Run(context.Background(), map[string]any{"date": "yesterday"})
	assert.Error(t, err)
}

func TestDensityTools(t *testing.T) {
	r, a := newTestRegistry(t)

	out := run(t, r, "density_list", nil)
	assert.Equal(t, []any{}, out["densities"])

	run(t, r, "meal_log", map[string]any{"description": "100g rice"})
	out = run(t, r, "density_list", nil)
	require.Len(t, out["densities"], 1)
	assert.Equal(t, "rice", out["densities"].([]any)[0].(map[string]any)["name"])

	out = run(t, r, "density_upsert", map[string]any{"name": "Rice", "calories_per_gram": "3.6", "carbs_per_gram": 0.8})
	d := out["density"].(map[string]any)
	assert.Equal(t, "rice", d["name"])
	assert.Equal(t, 3.6, d["calories_per_gram"])

	// A new phrase containing rice is priced from the corrected density.
	meal := run(t, r, "meal_log", map[string]any{"description": "200g rice"})["meal"].(map[string]any)
	assert.Equal(t, 720.0, meal["macros"].(map[string]any)["calories"])
	assert.Equal(t, 2, a.Calls())

	out = run(t, r, "density_remove", map[string]any{"name": "rice"})
	assert.Equal(t, true, out["removed"])
	out = run(t, r, "density_remove", map[string]any{"name": "rice"})
	assert.Equal(t, false, out["removed"])

	tool, _ := r.GetTool("density_upsert")
	_, err := tool.Run(context.Background(), map[string]any{"calories_per_gram": 1})
	assert.Error(t, err)
}

func TestPhraseTools(t *testing.T) {
	r, a := newTestRegistry(t)

	run(t, r, "meal_log", map[string]any{"description": "Two eggs on toast"})
	out := run(t, r, "phrase_list", nil)
	require.Len(t, out["phrases"], 1)
	assert.Equal(t, "Two eggs on toast", out["phrases"].([]any)[0].(map[string]any)["description"])

	out = run(t, r, "phrase_remove", map[string]any{"description": "  TWO EGGS ON TOAST "})
	assert.Equal(t, true, out["removed"])
	assert.Equal(t, []any{}, run(t, r, "phrase_list", nil)["phrases"])

	run(t, r, "meal_log", map[string]any{"description": "two eggs on toast"})
	assert.Equal(t, 2, a.Calls())
}

func TestPhraseUpsert_Run(t *testing.T) {
	r, a := newTestRegistry(t)

	out := run(t, r, "phrase_upsert", map[string]any{
		"description": "  My Usual Breakfast ",
		"name":        "Usual",
		"tier":        "a",
		"swaps":       []any{"skip the sugar", ""},
		"items": []any{
			map[string]any{"name": "oats", "quantity": "80g", "calories": "311", "protein": 10.5},
			map[string]any{"name": "milk", "quantity": "250ml", "calories": 125, "protein": "8,5"},
		},
	})

	phrase := out["phrase"].(map[string]any)
	assert.Equal(t, "Usual", phrase["name"])
	assert.Equal(t, "A", phrase["tier"])
	assert.Equal(t, []any{"skip the sugar"}, phrase["swaps"])
	assert.Equal(t, 436.0, phrase["macros"].(map[string]any)["calories"])
	assert.Equal(t, 19.0, phrase["macros"].(map[string]any)["protein"])

	meal := run(t, r, "meal_log", map[string]any{"description": "my usual breakfast"})["meal"].(map[string]any)
	assert.Equal(t, "phrase_cache", meal["source"])
	assert.Equal(t, "Usual", meal["name"])
	assert.Equal(t, 436.0, meal["macros"].(map[string]any)["calories"])
	assert.Zero(t, a.Calls())

	tool, _ := r.GetTool("phrase_upsert")
	_, err := tool.Run(context.Background(), map[string]any{"description": "x"})
	assert.Error(t, err)
}
