package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"mealmemory"
	"mealmemory/analyzer/bedrock"
	"mealmemory/engine"
	"mealmemory/session"
	"mealmemory/storage"
	"mealmemory/tools"
)

// Params names the tool to run and its input, e.g.
// {"tool": "meal_log", "input": {"description": "2 eggs on toast"}}.
type Params struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

type Results struct {
	Output any `json:"output"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig mealmemory.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode model config: %w", err)
		}

		var memoryConfig mealmemory.MemoryConfig
		if err := envdecode.Decode(&memoryConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode memory config: %w", err)
		}

		var s3Config mealmemory.S3ArtifactsConfig
		if err := envdecode.Decode(&s3Config); err != nil {
			return Results{}, fmt.Errorf("missing S3 config: %w", err)
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)

		analyzer, err := bedrock.NewAnalyzer(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})
		if err != nil {
			slog.Error("SETUP: Failed to create analyzer", "error", err)
			return Results{}, err
		}

		tracerProvider, meterProvider, otelShutdown, err := mealmemory.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		eng := engine.NewInstrumentedEngine(
			engine.New(analyzer,
				engine.WithLogger(mealmemory.NewStdoutReconciliationLogger()),
				engine.WithAnalysisTimeout(memoryConfig.AnalysisTimeout),
			),
			tracerProvider.Tracer(mealmemory.TracerNameBedrock),
			meterProvider.Meter(mealmemory.TracerNameEngine),
		)

		sess, err := session.Open(ctx, eng, session.Stores{
			Densities: storage.NewS3State(s3Client, s3Config.Bucket, s3Config.DensitiesKey),
			Phrases:   storage.NewS3State(s3Client, s3Config.Bucket, s3Config.PhrasesKey),
			Meals:     storage.NewS3State(s3Client, s3Config.Bucket, s3Config.MealsKey),
		},
			session.WithGoal(memoryConfig.ProtocolGoal()),
			session.WithTargets(memoryConfig.Targets),
		)
		if err != nil {
			slog.Error("SETUP: Failed to load memories from S3", "error", err)
			return Results{}, err
		}
		slog.Info("SETUP: S3 memory state initialized", "bucket", s3Config.Bucket)

		registry, err := tools.NewRegistry(sess)
		if err != nil {
			slog.Error("SETUP: Failed to create tool registry", "error", err)
			return Results{}, err
		}

		tool, err := registry.GetTool(params.Tool)
		if err != nil {
			return Results{}, err
		}

		output, err := tool.Run(ctx, params.Input)
		if err != nil {
			slog.Error("RESULT: Error running tool", "tool", params.Tool, "error", err)
			return Results{}, err
		}

		return Results{Output: output}, nil
	}

	lambda.Start(fn)
}
