package mealmemory

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// AnalysisSystemPrompt instructs a model to answer with a single analysis object.
const AnalysisSystemPrompt string = `You are a nutrition analyst.

GOAL
Break a free-text meal description into individual food items with estimated macros, then grade the meal.

OUTPUT CONTRACT
- Respond with ONE valid JSON object only (no extra text, no markdown, no code fences).
- Shape:
{
  "name": string,                    // short title for the meal
  "items": [                         // at least one element
    { "name": string, "quantity": string, "calories": number, "protein": number, "carbs": number, "fat": number }
  ],
  "total": { "calories": number, "protein": number, "carbs": number, "fat": number },
  "tier": "S" | "A" | "B" | "C" | "D",
  "swaps": [string],                 // 1 or 2 healthier or less caloric alternatives
  "insight": string                  // one or two sentences
}

ITEM RULES
- Use the plainest common name for each food ("grilled chicken", "white rice"), without quantities in the name.
- Always give quantity in grams or millilitres when you can estimate it ("150g", "200ml").
- Macros are for the stated quantity, protein/carbs/fat in grams.

TIERS
- S: perfect for the goal, nutrient dense.
- A: very good.
- B: average.
- C: poor macro ratio or highly processed.
- D: significant setback for the goal.`

// AnalysisPrompt renders the user turn for req.
func AnalysisPrompt(req AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following meal description: %q.\n", strings.TrimSpace(req.Description))

	goal := req.Goal
	if goal == "" {
		goal = GoalMaintain
	}
	fmt.Fprintf(&b, "User context: goal is %s", goal)
	if req.RemainingCalories != nil {
		fmt.Fprintf(&b, ", remaining calories for today is %.0fkcal", *req.RemainingCalories)
	}
	b.WriteString(".")
	return b.String()
}

// AnalysisSchema describes the analysis object as JSON Schema, for models that accept
// structured-output or tool-input schemas.
func AnalysisSchema() *jsonschema.Schema {
	number := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "number"} }
	macros := func() map[string]*jsonschema.Schema {
		return map[string]*jsonschema.Schema{
			"calories": number(),
			"protein":  number(),
			"carbs":    number(),
			"fat":      number(),
		}
	}

	itemProps := macros()
	itemProps["name"] = &jsonschema.Schema{Type: "string"}
	itemProps["quantity"] = &jsonschema.Schema{Type: "string"}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": {Type: "string"},
			"items": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:       "object",
					Properties: itemProps,
					Required:   []string{"name", "quantity", "calories", "protein", "carbs", "fat"},
				},
			},
			"total": {
				Type:       "object",
				Properties: macros(),
			},
			"tier":    {Type: "string", Enum: []any{"S", "A", "B", "C", "D"}},
			"swaps":   {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"insight": {Type: "string"},
		},
		Required: []string{"items", "total", "tier", "insight"},
	}
}
