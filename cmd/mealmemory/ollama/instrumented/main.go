package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mealmemory"
	"mealmemory/analyzer/ollama"
	"mealmemory/engine"
	"mealmemory/session"
	"mealmemory/slack"
	"mealmemory/storage"
)

func main() {
	ctx := context.Background()

	var modelConfig mealmemory.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var memoryConfig mealmemory.MemoryConfig
	if err := envdecode.Decode(&memoryConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	analyzer, err := ollama.NewAnalyzer(ollama.AnalyzerOpts{
		BaseEndpoint: memoryConfig.BaseOllamaEndpoint,
		ModelID:      modelConfig.ModelID,
		HTTPClient:   http.DefaultClient,
		Temperature:  float64(modelConfig.Temperature),
		TopP:         float64(modelConfig.TopP),
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

	tracer := tracerProvider.Tracer(mealmemory.TracerNameOllama)
	meter := meterProvider.Meter(mealmemory.TracerNameEngine)

	eng := engine.NewInstrumentedEngine(
		engine.New(analyzer,
			engine.WithLogger(logger),
			engine.WithAnalysisTimeout(memoryConfig.AnalysisTimeout),
		),
		tracer,
		meter,
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

	description := argOr(1, "200g grilled chicken, 150g white rice, 100g steamed broccoli")

	ctx, span := tracer.Start(ctx, mealmemory.TracerNameOllama, trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Float64("model.temperature", float64(modelConfig.Temperature)),
		attribute.Float64("model.top_p", float64(modelConfig.TopP)),
		attribute.String("protocol.goal", string(memoryConfig.ProtocolGoal())),
	))
	defer span.End()

	meal, err := sess.LogMeal(ctx, session.LogRequest{
		Description: description,
		CustomName:  argOr(2, ""),
		WantInsight: true,
	})
	if err != nil {
		slog.Error("FAILURE: Error logging meal", "error", err)
		return
	}

	if memoryConfig.DumpMeals {
		mealmemory.Dump(meal)
	}

	webhookURL := memoryConfig.SlackWebhookURL
	if webhookURL == "" {
		testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body) // nolint: errcheck
			slog.Info("Received request",
				"method", r.Method,
				"path", r.URL.Path,
				"header", r.Header,
				"body", body.String(),
			)
			w.WriteHeader(http.StatusOK)
		}))
		defer testServer.Close()
		webhookURL = testServer.URL
	}

	slackClient := slack.NewClient(webhookURL, http.DefaultClient)
	message := slack.FormatMeal(meal, sess.Summary(sess.Today()))
	if err := slackClient.PostMessage(ctx, memoryConfig.SlackChannel, message); err != nil {
		slog.Error("Failed to post meal to Slack", "error", err)
	}
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
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
