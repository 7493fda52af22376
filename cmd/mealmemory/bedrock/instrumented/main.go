package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mealmemory"
	"mealmemory/analyzer/bedrock"
	"mealmemory/engine"
	"mealmemory/session"
	"mealmemory/storage"
)

func main() {
	ctx := context.Background()

	var modelConfig mealmemory.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var memoryConfig mealmemory.MemoryConfig
	if err := envdecode.Decode(&memoryConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	brc, err := newBedrockRuntimeClient(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to create Bedrock client", "error", err)
		return
	}

	analyzer, err := bedrock.NewAnalyzer(brc, bedrock.Options{
		ModelID:     modelConfig.ModelID,
		MaxTokens:   modelConfig.MaxTokens,
		Temperature: modelConfig.Temperature,
		TopP:        modelConfig.TopP,
	})
	if err != nil {
		slog.Error("SETUP: Failed to create analyzer", "error", err)
		return
	}

	logger, cleanup, err := newReconciliationLogger(modelConfig.ModelID)
	if err != nil {
		slog.Error("SETUP: Failed to create reconciliation logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush reconciliation log", "error", err)
		}
	}()

	tracerProvider, meterProvider, otelShutdown, err := mealmemory.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(mealmemory.TracerNameBedrock)
	eng := engine.NewInstrumentedEngine(
		engine.New(analyzer,
			engine.WithLogger(logger),
			engine.WithAnalysisTimeout(memoryConfig.AnalysisTimeout),
		),
		tracer,
		meterProvider.Meter(mealmemory.TracerNameEngine),
	)

	sess, err := session.Open(ctx, eng, session.Stores{
		Densities: storage.NewFileState(memoryConfig.DensitiesPath),
		Phrases:   storage.NewFileState(memoryConfig.PhrasesPath),
		Meals:     storage.NewFileState(memoryConfig.MealsPath),
	},
		session.WithGoal(memoryConfig.ProtocolGoal()),
		session.WithTargets(memoryConfig.Targets),
	)
	if err != nil {
		slog.Error("SETUP: Failed to open session", "error", err)
		return
	}

	ctx, span := tracer.Start(ctx, mealmemory.TracerNameBedrock, trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Int("model.max_tokens", int(modelConfig.MaxTokens)),
		attribute.Float64("model.temperature", float64(modelConfig.Temperature)),
		attribute.Float64("model.top_p", float64(modelConfig.TopP)),
	))
	defer span.End()

	for _, description := range descriptions() {
		meal, err := sess.LogMeal(ctx, session.LogRequest{Description: description, WantInsight: true})
		if err != nil {
			slog.Error("FAILURE: Error logging meal", "description", description, "error", err)
			continue
		}
		slog.Info("RESULT: Meal logged",
			"name", meal.Name,
			"source", meal.Source,
			"calories", meal.Macros.Rounded().Calories,
			"tier", meal.Tier,
		)
		if memoryConfig.DumpMeals {
			mealmemory.Dump(meal)
		}
	}

	summary := sess.Summary(sess.Today())
	slog.Info("RESULT: Day summary",
		"meals", summary.Meals,
		"consumed_kcal", summary.Consumed.Rounded().Calories,
		"remaining_kcal", summary.Remaining.Rounded().Calories,
	)
}

// descriptions returns the meals named on the command line, or a sample day.
func descriptions() []string {
	if len(os.Args) > 1 {
		return os.Args[1:]
	}
	return []string{
		"80g oats with 250ml milk and a banana",
		"200g grilled chicken, 150g white rice, 100g steamed broccoli",
		"200g grilled chicken, 150g white rice, 100g steamed broccoli",
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func newReconciliationLogger(modelID string) (mealmemory.ReconciliationLogger, func() error, error) {
	logFilePath := mealmemory.NewReconcileLogFilePath(modelID)
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := mealmemory.NewFileReconciliationLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
