package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealmemory"
)

func densitySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":              {Type: "string"},
			"calories_per_gram": {Type: "number"},
			"protein_per_gram":  {Type: "number"},
			"carbs_per_gram":    {Type: "number"},
			"fat_per_gram":      {Type: "number"},
			"last_quantity":     {Type: "string"},
		},
		Required: []string{"name", "calories_per_gram", "protein_per_gram", "carbs_per_gram", "fat_per_gram"},
	}
}

func removedSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"removed": {Type: "boolean"}},
		Required:   []string{"removed"},
	}
}

type DensityList struct{ diary Diary }

func NewDensityList(d Diary) *DensityList { return &DensityList{diary: d} }

func (t *DensityList) Name() string  { return "density_list" }
func (t *DensityList) Title() string { return "List Food Densities" }
func (t *DensityList) Description() string {
	return "Returns every learned per-gram food density, sorted by name."
}

func (t *DensityList) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func (t *DensityList) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"densities": {Type: "array", Items: densitySchema()}},
		Required:   []string{"densities"},
	}
}

func (t *DensityList) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	densities := t.diary.Densities()
	if densities == nil {
		densities = make([]mealmemory.FoodDensity, 0)
	}
	return toMap(struct {
		Densities []mealmemory.FoodDensity `json:"densities"`
	}{densities})
}

type DensityUpsert struct{ diary Diary }

func NewDensityUpsert(d Diary) *DensityUpsert { return &DensityUpsert{diary: d} }

func (t *DensityUpsert) Name() string  { return "density_upsert" }
func (t *DensityUpsert) Title() string { return "Correct a Food Density" }
func (t *DensityUpsert) Description() string {
	return "Replaces the per-gram density stored for a food. Future meals containing it use these rates."
}

func (t *DensityUpsert) InputSchema() *jsonschema.Schema {
	s := densitySchema()
	s.Required = []string{"name", "calories_per_gram"}
	return s
}

func (t *DensityUpsert) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"density": densitySchema()},
		Required:   []string{"density"},
	}
}

func (t *DensityUpsert) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	name, err := requiredString(input, "name")
	if err != nil {
		return nil, err
	}

	stored, err := t.diary.UpsertDensity(ctx, name, mealmemory.FoodDensity{
		CaloriesPerGram: mealmemory.ParseNumber(input["calories_per_gram"]),
		ProteinPerGram:  mealmemory.ParseNumber(input["protein_per_gram"]),
		CarbsPerGram:    mealmemory.ParseNumber(input["carbs_per_gram"]),
		FatPerGram:      mealmemory.ParseNumber(input["fat_per_gram"]),
		LastQuantity:    stringArg(input, "last_quantity"),
	})
	if err != nil {
		return nil, err
	}
	return toMap(struct {
		Density mealmemory.FoodDensity `json:"density"`
	}{stored})
}

type DensityRemove struct{ diary Diary }

func NewDensityRemove(d Diary) *DensityRemove { return &DensityRemove{diary: d} }

func (t *DensityRemove) Name() string  { return "density_remove" }
func (t *DensityRemove) Title() string { return "Forget a Food Density" }
func (t *DensityRemove) Description() string {
	return "Removes a food's density; the next analysis containing the food learns it again."
}

func (t *DensityRemove) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"name": {Type: "string"}},
		Required:   []string{"name"},
	}
}

func (t *DensityRemove) OutputSchema() *jsonschema.Schema { return removedSchema() }

func (t *DensityRemove) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	name, err := requiredString(input, "name")
	if err != nil {
		return nil, err
	}
	removed, err := t.diary.RemoveDensity(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

type PhraseList struct{ diary Diary }

func NewPhraseList(d Diary) *PhraseList { return &PhraseList{diary: d} }

func (t *PhraseList) Name() string  { return "phrase_list" }
func (t *PhraseList) Title() string { return "List Remembered Meals" }
func (t *PhraseList) Description() string {
	return "Returns every remembered meal description with its stored items and totals."
}

func (t *PhraseList) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func phraseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"description": {Type: "string"},
			"name":        {Type: "string"},
			"items":       {Type: "array", Items: itemSchema()},
			"macros":      macrosSchema(),
			"insight":     {Type: "string"},
			"tier":        {Type: "string", Enum: []any{"S", "A", "B", "C", "D"}},
			"swaps":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"description", "name", "items", "macros"},
	}
}

func (t *PhraseList) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"phrases": {Type: "array", Items: phraseSchema()}},
		Required:   []string{"phrases"},
	}
}

func (t *PhraseList) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	phrases := t.diary.Phrases()
	if phrases == nil {
		phrases = make([]mealmemory.MealCacheEntry, 0)
	}
	return toMap(struct {
		Phrases []mealmemory.MealCacheEntry `json:"phrases"`
	}{phrases})
}

type PhraseUpsert struct{ diary Diary }

func NewPhraseUpsert(d Diary) *PhraseUpsert { return &PhraseUpsert{diary: d} }

func (t *PhraseUpsert) Name() string  { return "phrase_upsert" }
func (t *PhraseUpsert) Title() string { return "Correct a Remembered Meal" }
func (t *PhraseUpsert) Description() string {
	return "Stores the items to use whenever this exact description is logged again. Totals are recomputed from the items."
}

func (t *PhraseUpsert) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"description": {Type: "string"},
			"name":        {Type: "string"},
			"items":       {Type: "array", Items: itemSchema()},
			"insight":     {Type: "string"},
			"tier":        {Type: "string"},
			"swaps":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"description", "items"},
	}
}

func (t *PhraseUpsert) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"phrase": phraseSchema()},
		Required:   []string{"phrase"},
	}
}

func (t *PhraseUpsert) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	desc, err := requiredString(input, "description")
	if err != nil {
		return nil, err
	}
	items, err := itemsArg(input, "items")
	if err != nil {
		return nil, err
	}

	entry := mealmemory.MealCacheEntry{
		Name:    stringArg(input, "name"),
		Items:   items,
		Insight: stringArg(input, "insight"),
		Tier:    mealmemory.ParseTier(strings.ToUpper(stringArg(input, "tier"))),
	}
	if entry.Name == "" {
		entry.Name = "Meal"
	}
	if swaps, ok := input["swaps"].([]any); ok {
		for _, sw := range swaps {
			if s, ok := sw.(string); ok && strings.TrimSpace(s) != "" {
				entry.Swaps = append(entry.Swaps, strings.TrimSpace(s))
			}
		}
	}

	stored, err := t.diary.UpsertPhrase(ctx, desc, entry)
	if err != nil {
		return nil, err
	}
	return toMap(struct {
		Phrase mealmemory.MealCacheEntry `json:"phrase"`
	}{stored})
}

type PhraseRemove struct{ diary Diary }

func NewPhraseRemove(d Diary) *PhraseRemove { return &PhraseRemove{diary: d} }

func (t *PhraseRemove) Name() string  { return "phrase_remove" }
func (t *PhraseRemove) Title() string { return "Forget a Remembered Meal" }
func (t *PhraseRemove) Description() string {
	return "Removes a remembered description so the next identical entry is analyzed afresh. Matching ignores case and surrounding whitespace."
}

func (t *PhraseRemove) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"description": {Type: "string"}},
		Required:   []string{"description"},
	}
}

func (t *PhraseRemove) OutputSchema() *jsonschema.Schema { return removedSchema() }

func (t *PhraseRemove) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	desc, err := requiredString(input, "description")
	if err != nil {
		return nil, err
	}
	removed, err := t.diary.RemovePhrase(ctx, desc)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}
