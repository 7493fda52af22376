package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealmemory"
	"mealmemory/session"
)

type MealLog struct{ diary Diary }

func NewMealLog(d Diary) *MealLog { return &MealLog{diary: d} }

func (t *MealLog) Name() string  { return "meal_log" }
func (t *MealLog) Title() string { return "Log a Meal" }
func (t *MealLog) Description() string {
	return "Turns a free-text meal description into a logged meal, reusing remembered meals and food densities before asking for a fresh analysis."
}

func (t *MealLog) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"description":  {Type: "string", Description: "What was eaten, e.g. \"200g grilled chicken, 100g rice\""},
			"custom_name":  {Type: "string"},
			"want_insight": {Type: "boolean"},
		},
		Required: []string{"description"},
	}
}

func (t *MealLog) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"meal": mealSchema()},
		Required:   []string{"meal"},
	}
}

func (t *MealLog) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	desc, err := requiredString(input, "description")
	if err != nil {
		return nil, err
	}

	meal, err := t.diary.LogMeal(ctx, session.LogRequest{
		Description: desc,
		CustomName:  stringArg(input, "custom_name"),
		WantInsight: boolArg(input, "want_insight"),
	})
	if err != nil {
		return nil, err
	}
	return toMap(struct {
		Meal mealmemory.Meal `json:"meal"`
	}{meal})
}

type MealEdit struct{ diary Diary }

func NewMealEdit(d Diary) *MealEdit { return &MealEdit{diary: d} }

func (t *MealEdit) Name() string  { return "meal_edit" }
func (t *MealEdit) Title() string { return "Edit Meal Items" }
func (t *MealEdit) Description() string {
	return "Replaces the items of a logged meal and recomputes its totals. Macro fields accept numbers or numeric strings."
}

func (t *MealEdit) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":    {Type: "string"},
			"items": {Type: "array", Items: itemSchema()},
		},
		Required: []string{"id", "items"},
	}
}

func (t *MealEdit) OutputSchema() *jsonschema.Schema {
	return (&MealLog{}).OutputSchema()
}

func (t *MealEdit) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	id, err := requiredString(input, "id")
	if err != nil {
		return nil, err
	}
	items, err := itemsArg(input, "items")
	if err != nil {
		return nil, err
	}

	meal, err := t.diary.EditMeal(ctx, id, items)
	if err != nil {
		return nil, err
	}
	return toMap(struct {
		Meal mealmemory.Meal `json:"meal"`
	}{meal})
}

// MealTotal is stateless: it sums whatever items it is given.
type MealTotal struct{}

func NewMealTotal() *MealTotal { return &MealTotal{} }

func (t *MealTotal) Name() string  { return "meal_total" }
func (t *MealTotal) Title() string { return "Total Items" }
func (t *MealTotal) Description() string {
	return "Sums the macros of a list of items. Non-numeric values count as zero."
}

func (t *MealTotal) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"items": {Type: "array", Items: itemSchema()}},
		Required:   []string{"items"},
	}
}

func (t *MealTotal) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"total":   macrosSchema(),
			"rounded": macrosSchema(),
		},
		Required: []string{"total", "rounded"},
	}
}

func (t *MealTotal) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	items, err := itemsArg(input, "items")
	if err != nil {
		return nil, err
	}
	total := mealmemory.Aggregate(items)
	return toMap(struct {
		Total   mealmemory.Macros `json:"total"`
		Rounded mealmemory.Macros `json:"rounded"`
	}{total, total.Rounded()})
}

type DaySummary struct{ diary Diary }

func NewDaySummary(d Diary) *DaySummary { return &DaySummary{diary: d} }

func (t *DaySummary) Name() string  { return "day_summary" }
func (t *DaySummary) Title() string { return "Daily Summary" }
func (t *DaySummary) Description() string {
	return "Returns the meals logged on a date with consumed and remaining macros against the daily targets."
}

func (t *DaySummary) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"date": {Type: "string", Description: "YYYY-MM-DD; defaults to today"},
		},
	}
}

func (t *DaySummary) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"date":      {Type: "string"},
			"meals":     {Type: "array", Items: mealSchema()},
			"consumed":  macrosSchema(),
			"remaining": macrosSchema(),
			"targets":   macrosSchema(),
		},
		Required: []string{"date", "meals", "consumed", "remaining", "targets"},
	}
}

func (t *DaySummary) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	day, err := dayArg(input, "date", t.diary.Today())
	if err != nil {
		return nil, err
	}

	meals := t.diary.Meals(day)
	if meals == nil {
		meals = make([]mealmemory.Meal, 0)
	}
	summary := t.diary.Summary(day)

	return toMap(struct {
		Date      string            `json:"date"`
		Meals     []mealmemory.Meal `json:"meals"`
		Consumed  mealmemory.Macros `json:"consumed"`
		Remaining mealmemory.Macros `json:"remaining"`
		Targets   mealmemory.Macros `json:"targets"`
	}{
		Date:      day.Format(time.DateOnly),
		Meals:     meals,
		Consumed:  summary.Consumed.Rounded(),
		Remaining: summary.Remaining.Rounded(),
		Targets:   summary.Targets,
	})
}
