package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealmemory"
	"mealmemory/session"
)

type Tool interface {
	Name() string
	Title() string
	Description() string
	InputSchema() *jsonschema.Schema
	OutputSchema() *jsonschema.Schema
	Run(ctx context.Context, input map[string]any) (output map[string]any, err error)
}

type Call struct {
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

// Diary is the session surface the tools operate on.
type Diary interface {
	LogMeal(ctx context.Context, req session.LogRequest) (mealmemory.Meal, error)
	EditMeal(ctx context.Context, id string, items []mealmemory.FoodItem) (mealmemory.Meal, error)
	Meals(day time.Time) []mealmemory.Meal
	Summary(day time.Time) mealmemory.DaySummary
	Today() time.Time
	Densities() []mealmemory.FoodDensity
	UpsertDensity(ctx context.Context, name string, d mealmemory.FoodDensity) (mealmemory.FoodDensity, error)
	RemoveDensity(ctx context.Context, name string) (bool, error)
	Phrases() []mealmemory.MealCacheEntry
	UpsertPhrase(ctx context.Context, description string, entry mealmemory.MealCacheEntry) (mealmemory.MealCacheEntry, error)
	RemovePhrase(ctx context.Context, description string) (bool, error)
}

// toMap marshals v and decodes it back so every tool output has the same shape.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool output: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool output: %w", err)
	}
	return m, nil
}

func stringArg(input map[string]any, key string) string {
	switch v := input[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func requiredString(input map[string]any, key string) (string, error) {
	s := stringArg(input, key)
	if s == "" {
		return "", fmt.Errorf("%q is required", key)
	}
	return s, nil
}

func boolArg(input map[string]any, key string) bool {
	switch v := input[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// dayArg reads an optional YYYY-MM-DD date, defaulting to today.
func dayArg(input map[string]any, key string, today time.Time) (time.Time, error) {
	s := stringArg(input, key)
	if s == "" {
		return today, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, s, today.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%q must be YYYY-MM-DD: %w", key, err)
	}
	return day, nil
}

// itemsArg reads a list of food items whose macro fields may be numbers or numeric strings.
func itemsArg(input map[string]any, key string) ([]mealmemory.FoodItem, error) {
	raw, ok := input[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%q must be an array of items", key)
	}

	items := make([]mealmemory.FoodItem, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", key, i)
		}
		items = append(items, mealmemory.FoodItem{
			Name:     stringArg(m, "name"),
			Quantity: stringArg(m, "quantity"),
			Calories: mealmemory.ParseNumber(m["calories"]),
			Protein:  mealmemory.ParseNumber(m["protein"]),
			Carbs:    mealmemory.ParseNumber(m["carbs"]),
			Fat:      mealmemory.ParseNumber(m["fat"]),
		})
	}
	return items, nil
}

func itemSchema() *jsonschema.Schema {
	numberOrString := func() *jsonschema.Schema {
		return &jsonschema.Schema{Types: []string{"number", "string"}}
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":     {Type: "string"},
			"quantity": {Type: "string"},
			"calories": numberOrString(),
			"protein":  numberOrString(),
			"carbs":    numberOrString(),
			"fat":      numberOrString(),
		},
		Required: []string{"name"},
	}
}

func macrosSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"calories": {Type: "number"},
			"protein":  {Type: "number"},
			"carbs":    {Type: "number"},
			"fat":      {Type: "number"},
		},
		Required: []string{"calories", "protein", "carbs", "fat"},
	}
}

func mealSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":          {Type: "string"},
			"timestamp":   {Type: "string"},
			"description": {Type: "string"},
			"name":        {Type: "string"},
			"items":       {Type: "array", Items: itemSchema()},
			"macros":      macrosSchema(),
			"insight":     {Type: "string"},
			"tier":        {Type: "string"},
			"swaps":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"source":      {Type: "string"},
		},
		Required: []string{"id", "name", "items", "macros", "source"},
	}
}
