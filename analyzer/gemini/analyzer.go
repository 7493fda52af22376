package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"mealmemory"
)

const defaultModelID = "gemini-2.5-flash"

// generator is the part of *genai.Models the analyzer uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Analyzer asks Gemini for a meal analysis with a response schema, so the reply is
// always a JSON object of the expected shape.
type Analyzer struct {
	models      generator
	model       string
	temperature float32
}

type Options struct {
	APIKey      string
	ModelID     string
	Temperature float32
}

// NewAnalyzer creates a Gemini API client and wraps it.
func NewAnalyzer(ctx context.Context, opts Options) (*Analyzer, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newAnalyzer(client.Models, opts), nil
}

func newAnalyzer(models generator, opts Options) *Analyzer {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	return &Analyzer{models: models, model: opts.ModelID, temperature: opts.Temperature}
}

func (a *Analyzer) AnalyzeMeal(ctx context.Context, req mealmemory.AnalysisRequest) (mealmemory.Analysis, error) {
	slog.Info("ANALYZER: Gemini invoked", "model", a.model, "description", req.Description)

	contents := []*genai.Content{
		genai.NewContentFromText(mealmemory.AnalysisPrompt(req), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(mealmemory.AnalysisSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(a.temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	}

	resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		slog.Error("ANALYZER: Gemini generate failed", "error", err)
		return mealmemory.Analysis{}, fmt.Errorf("failed to generate gemini content: %w", err)
	}
	if resp == nil {
		return mealmemory.Analysis{}, fmt.Errorf("%w: empty gemini response", mealmemory.ErrAnalysisUnavailable)
	}

	text := resp.Text()
	if resp.UsageMetadata != nil {
		slog.Info("ANALYZER: Gemini generate succeeded",
			"text_len", len(text),
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
		)
	}

	return mealmemory.DecodeAnalysis([]byte(text))
}

func responseSchema() *genai.Schema {
	macros := func() map[string]*genai.Schema {
		return map[string]*genai.Schema{
			"calories": {Type: genai.TypeNumber},
			"protein":  {Type: genai.TypeNumber},
			"carbs":    {Type: genai.TypeNumber},
			"fat":      {Type: genai.TypeNumber},
		}
	}

	item := macros()
	item["name"] = &genai.Schema{Type: genai.TypeString}
	item["quantity"] = &genai.Schema{Type: genai.TypeString}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {Type: genai.TypeString},
			"items": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeObject, Properties: item},
			},
			"total":   {Type: genai.TypeObject, Properties: macros()},
			"tier":    {Type: genai.TypeString, Enum: []string{"S", "A", "B", "C", "D"}},
			"swaps":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"insight": {Type: genai.TypeString},
		},
		Required: []string{"items", "total", "tier", "insight"},
	}
}
