package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mealmemory"
)

const defaultModelID = "llama3.2"

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

// Message is a single Ollama chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	Format   json.RawMessage `json:"format,omitempty"`
	Stream   bool            `json:"stream"`
	Options  options         `json:"options,omitempty"`
}

type wireResponse struct {
	Message Message `json:"message"`
	// other metadata omitted but available
}

// Analyzer asks a local Ollama model for a meal analysis using structured output.
type Analyzer struct {
	endpoint     string
	model        string
	systemPrompt string
	format       json.RawMessage
	httpClient   mealmemory.HTTPClient
	options      options
}

type AnalyzerOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   mealmemory.HTTPClient
	Temperature  float64
	TopP         float64
}

func NewAnalyzer(opts AnalyzerOpts) (*Analyzer, error) {
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, fmt.Errorf("ollama base endpoint is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.TopP == 0 {
		opts.TopP = 0.9
	}

	format, err := json.Marshal(mealmemory.AnalysisSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis schema: %w", err)
	}

	return &Analyzer{
		model:        opts.ModelID,
		systemPrompt: mealmemory.AnalysisSystemPrompt,
		format:       format,
		httpClient:   opts.HTTPClient,
		endpoint:     strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options: options{
			Temperature:   opts.Temperature,
			TopP:          opts.TopP,
			RepeatPenalty: 1.05,
			NumCtx:        8192,
		},
	}, nil
}

// AnalyzeMeal sends the description to Ollama and decodes the model's JSON reply.
func (a *Analyzer) AnalyzeMeal(ctx context.Context, req mealmemory.AnalysisRequest) (mealmemory.Analysis, error) {
	slog.Info("ANALYZER: Ollama invoked", "model", a.model, "description", req.Description)

	reqBody := wireRequest{
		Model: a.model,
		Messages: []Message{
			{Role: "system", Content: a.systemPrompt},
			{Role: "user", Content: mealmemory.AnalysisPrompt(req)},
		},
		Format:  a.format,
		Stream:  false,
		Options: a.options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return mealmemory.Analysis{}, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return mealmemory.Analysis{}, fmt.Errorf("failed to create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return mealmemory.Analysis{}, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return mealmemory.Analysis{}, fmt.Errorf("ollama returned %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		slog.Warn("ANALYZER: Ollama decode failed", "error", err, "body", string(body))
		return mealmemory.Analysis{}, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	analysis, err := mealmemory.DecodeAnalysis([]byte(wr.Message.Content))
	if err != nil {
		return mealmemory.Analysis{}, err
	}

	slog.Info("ANALYZER: Ollama analysis decoded", "items", len(analysis.Items), "tier", analysis.Tier)
	return analysis, nil
}
