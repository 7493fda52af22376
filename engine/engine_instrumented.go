package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mealmemory"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedEngine is an Engine that records spans and metrics for every reconcile.
type InstrumentedEngine struct {
	*Engine
	tracer trace.Tracer

	runsCounter          metric.Int64Counter
	runsFailedCounter    metric.Int64Counter
	cacheHitsCounter     metric.Int64Counter
	cacheMissesCounter   metric.Int64Counter
	learnedCounter       metric.Int64Counter
	appliedCounter       metric.Int64Counter
	analysisFailedCount  metric.Int64Counter
	analysisDurationHist metric.Float64Histogram
	reconcileDuration    metric.Float64Histogram
	densitiesGauge       metric.Int64Gauge
	phrasesGauge         metric.Int64Gauge
}

// NewInstrumentedEngine wraps e with the given tracer and meter.
func NewInstrumentedEngine(e *Engine, tracer trace.Tracer, meter metric.Meter) *InstrumentedEngine {
	ie := &InstrumentedEngine{Engine: e, tracer: tracer}

	ie.runsCounter, _ = meter.Int64Counter("reconcile_runs_total",
		metric.WithDescription("Total number of reconcile calls"))
	ie.runsFailedCounter, _ = meter.Int64Counter("reconcile_runs_failed_total",
		metric.WithDescription("Total number of reconcile calls that returned an error"))
	ie.cacheHitsCounter, _ = meter.Int64Counter("phrase_cache_hits_total",
		metric.WithDescription("Total number of descriptions served from the phrase cache"))
	ie.cacheMissesCounter, _ = meter.Int64Counter("phrase_cache_misses_total",
		metric.WithDescription("Total number of descriptions that required analysis"))
	ie.learnedCounter, _ = meter.Int64Counter("densities_learned_total",
		metric.WithDescription("Total number of food densities seeded from analysis"))
	ie.appliedCounter, _ = meter.Int64Counter("densities_applied_total",
		metric.WithDescription("Total number of items whose macros came from a stored density"))
	ie.analysisFailedCount, _ = meter.Int64Counter("analysis_failures_total",
		metric.WithDescription("Total number of analyzer calls that failed or returned nothing usable"))

	ie.analysisDurationHist, _ = meter.Float64Histogram("analysis_duration_seconds",
		metric.WithDescription("Time taken by the analyzer in seconds"))
	ie.reconcileDuration, _ = meter.Float64Histogram("reconcile_duration_seconds",
		metric.WithDescription("Total duration of a reconcile call in seconds"))

	ie.densitiesGauge, _ = meter.Int64Gauge("density_library_size",
		metric.WithDescription("Number of foods in the density library"))
	ie.phrasesGauge, _ = meter.Int64Gauge("phrase_cache_size",
		metric.WithDescription("Number of descriptions in the phrase cache"))

	return ie
}

// Reconcile runs Engine.Reconcile inside a span and records its outcome.
func (ie *InstrumentedEngine) Reconcile(ctx context.Context, req mealmemory.ReconcileRequest) (mealmemory.Meal, error) {
	ctx, span := ie.tracer.Start(ctx, "InstrumentedEngine.Reconcile")
	defer span.End()

	slog.Info("ENGINE: Starting instrumented reconcile", "description", req.Description)

	ie.runsCounter.Add(ctx, 1)
	start := time.Now()

	meal, stats, err := ie.reconcile(ctx, req)

	ie.reconcileDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("source", string(stats.source)),
	))

	switch {
	case stats.source == mealmemory.SourcePhraseCache:
		ie.cacheHitsCounter.Add(ctx, 1)
		span.AddEvent("Phrase cache hit")
	case stats.missed:
		ie.cacheMissesCounter.Add(ctx, 1)
		ie.analysisDurationHist.Record(ctx, stats.analysisElapsed.Seconds())
		span.AddEvent("Analysis completed", trace.WithAttributes(
			attribute.Float64("analysis_duration_seconds", stats.analysisElapsed.Seconds()),
		))
	}

	if stats.learned > 0 {
		ie.learnedCounter.Add(ctx, int64(stats.learned))
	}
	if stats.applied > 0 {
		ie.appliedCounter.Add(ctx, int64(stats.applied))
	}

	ie.densitiesGauge.Record(ctx, int64(ie.densities.Len()))
	ie.phrasesGauge.Record(ctx, int64(ie.phrases.Len()))

	if err != nil {
		ie.runsFailedCounter.Add(ctx, 1)
		if errors.Is(err, mealmemory.ErrAnalysisUnavailable) {
			ie.analysisFailedCount.Add(ctx, 1)
		}
		span.SetStatus(codes.Error, "Reconcile failed")
		span.RecordError(err)
		return meal, err
	}

	span.SetAttributes(
		attribute.String("meal.id", meal.ID),
		attribute.String("meal.source", string(meal.Source)),
		attribute.Int("meal.items", len(meal.Items)),
		attribute.Float64("meal.calories", meal.Macros.Calories),
		attribute.Int("densities.learned", stats.learned),
		attribute.Int("densities.applied", stats.applied),
	)

	return meal, nil
}
