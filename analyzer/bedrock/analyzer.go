package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealmemory"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// An analysis with a dozen items fits comfortably in 1k tokens.
	defaultMaxTokens = 1024

	defaultTemperature = 0.2
	defaultTopP        = 0.9

	// toolName is the single tool the model is forced to call with its analysis.
	toolName = "record_meal_analysis"
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Options struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// Analyzer asks a Bedrock model for a meal analysis through the Converse API. The model
// is forced to answer by calling a tool whose input schema is the analysis object.
type Analyzer struct {
	brc  bedrockRuntimeClient
	opts Options
	tool types.ToolSpecification
}

func NewAnalyzer(brc bedrockRuntimeClient, opts Options) (*Analyzer, error) {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}

	spec, err := buildToolSpec(toolName, "Record the structured nutrition analysis of the described meal.", mealmemory.AnalysisSchema())
	if err != nil {
		return nil, err
	}

	return &Analyzer{brc: brc, opts: opts, tool: spec}, nil
}

func (a *Analyzer) AnalyzeMeal(ctx context.Context, req mealmemory.AnalysisRequest) (mealmemory.Analysis, error) {
	slog.Info("ANALYZER: Bedrock invoked", "model", a.opts.ModelID, "description", req.Description)

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(a.opts.ModelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: mealmemory.AnalysisSystemPrompt},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: mealmemory.AnalysisPrompt(req)},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(a.opts.MaxTokens),
			Temperature: aws.Float32(a.opts.Temperature),
			TopP:        aws.Float32(a.opts.TopP),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: a.tool}},
			ToolChoice: &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(toolName)},
			},
		},
	}

	out, err := a.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("ANALYZER: Bedrock converse failed", "error", err)
		return mealmemory.Analysis{}, fmt.Errorf("failed to converse with bedrock: %w", err)
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Usage != nil {
		attrs = append(attrs,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	slog.Info("ANALYZER: Bedrock converse succeeded", attrs...)

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		return mealmemory.Analysis{}, fmt.Errorf("%w: model hit MaxTokens limit", mealmemory.ErrAnalysisUnavailable)
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return mealmemory.Analysis{}, fmt.Errorf("%w: model response blocked by Bedrock safety filters", mealmemory.ErrAnalysisUnavailable)
	}

	payload, err := toolInputFromOutput(out, toolName)
	if err != nil {
		return mealmemory.Analysis{}, err
	}
	if payload == nil {
		// Some models answer in text despite the forced tool choice.
		text := textFromOutput(out)
		slog.Warn("ANALYZER: Bedrock returned no tool use; falling back to text", "text_len", len(text))
		payload = []byte(text)
	}

	return mealmemory.DecodeAnalysis(payload)
}

// buildToolSpec constructs a ToolSpecification from a jsonschema.Schema. The schema is
// round-tripped through JSON so the document carries the schema's own MarshalJSON output.
func buildToolSpec(name, description string, schema *jsonschema.Schema) (types.ToolSpecification, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to marshal tool schema for %s: %w", name, err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to unmarshal tool schema for %s: %w", name, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(name),
		Description: aws.String(description),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schemaMap),
		},
	}, nil
}

// toolInputFromOutput returns the JSON input of the first tool use named name, or nil
// when the model did not call it.
func toolInputFromOutput(out *bedrockruntime.ConverseOutput, name string) ([]byte, error) {
	if out == nil || out.Output == nil {
		return nil, nil
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, nil
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != name || tu.Value.Input == nil {
			continue
		}
		b, err := tu.Value.Input.MarshalSmithyDocument()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read tool input: %v", mealmemory.ErrAnalysisUnavailable, err)
		}
		return b, nil
	}
	return nil, nil
}

// textFromOutput returns the last text block that looks like a JSON object, else all
// text blocks joined with newlines.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	var texts []string
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}
