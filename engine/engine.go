package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealmemory"
	"mealmemory/memory"
)

const defaultMealName = "Meal"

// Item resolutions recorded in the reconcile log.
const (
	resolutionDensity = "density"
	resolutionLearned = "learned"
	resolutionUnkeyed = "unkeyed" // blank name: analysis numbers kept, nothing learned
)

// Snapshot is the persistable state of an engine: both memories as plain maps.
type Snapshot struct {
	Densities map[string]mealmemory.FoodDensity    `json:"densities"`
	Phrases   map[string]mealmemory.MealCacheEntry `json:"phrases"`
}

// Engine reconciles meal descriptions against the density library and phrase cache,
// calling the analyzer only on a phrase-cache miss.
type Engine struct {
	analyzer  mealmemory.Analyzer
	densities *memory.DensityLibrary
	phrases   *memory.PhraseCache
	logger    mealmemory.ReconciliationLogger
	timeout   time.Duration
	now       func() time.Time
	newID     func() string

	// mu serializes the read-modify-write sequence over both stores.
	mu sync.Mutex
}

type Option func(*Engine)

// WithLogger sets the reconciliation audit logger.
func WithLogger(l mealmemory.ReconciliationLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithAnalysisTimeout bounds each analyzer call. Zero means no engine-imposed limit.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides meal ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an engine with empty memories.
func New(analyzer mealmemory.Analyzer, opts ...Option) *Engine {
	e := &Engine{
		analyzer:  analyzer,
		densities: memory.NewDensityLibrary(),
		phrases:   memory.NewPhraseCache(),
		logger:    mealmemory.NewNoOpReconciliationLogger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// reconcileStats describes what a reconcile did, for logging and instrumentation.
type reconcileStats struct {
	source          mealmemory.Source
	missed          bool
	items           []mealmemory.ItemLog
	learned         int
	applied         int
	analysisElapsed time.Duration
}

// Reconcile turns a raw meal description into a Meal.
func (e *Engine) Reconcile(ctx context.Context, req mealmemory.ReconcileRequest) (mealmemory.Meal, error) {
	meal, _, err := e.reconcile(ctx, req)
	return meal, err
}

func (e *Engine) reconcile(ctx context.Context, req mealmemory.ReconcileRequest) (mealmemory.Meal, reconcileStats, error) {
	start := time.Now()
	var stats reconcileStats

	meal, err := e.run(ctx, req, &stats)

	entry := mealmemory.ReconcileLog{
		Timestamp:   start,
		Description: req.Description,
		Source:      stats.source,
		Items:       stats.items,
		Duration:    time.Since(start),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.MealID = meal.ID
		entry.Macros = meal.Macros
	}
	if lerr := e.logger.LogReconciliation(entry); lerr != nil {
		slog.Error("ENGINE: Failed to log reconciliation", "error", lerr)
	}

	return meal, stats, err
}

func (e *Engine) run(ctx context.Context, req mealmemory.ReconcileRequest, stats *reconcileStats) (mealmemory.Meal, error) {
	if strings.TrimSpace(req.Description) == "" {
		return mealmemory.Meal{}, mealmemory.ErrEmptyDescription
	}

	if entry, ok := e.phrases.Lookup(req.Description); ok {
		stats.source = mealmemory.SourcePhraseCache
		slog.Info("ENGINE: Phrase cache hit", "description", req.Description, "items", len(entry.Items))
		return e.mealFromEntry(req, entry, stats.source), nil
	}

	stats.missed = true
	slog.Info("ENGINE: Phrase cache miss; requesting analysis", "description", req.Description)

	analysis, err := e.analyze(ctx, req, stats)
	if err != nil {
		return mealmemory.Meal{}, err
	}

	stats.source = mealmemory.SourceAnalysis

	e.mu.Lock()
	items := make([]mealmemory.FoodItem, 0, len(analysis.Items))
	for _, ai := range analysis.Items {
		item, itemLog := e.resolveItem(ai)
		switch itemLog.Resolution {
		case resolutionLearned:
			stats.learned++
		case resolutionDensity:
			stats.applied++
		}
		stats.items = append(stats.items, itemLog)
		items = append(items, item)
	}

	entry := mealmemory.MealCacheEntry{
		Description: req.Description,
		Name:        firstNonEmpty(strings.TrimSpace(analysis.Name), defaultMealName),
		Items:       items,
		Macros:      mealmemory.Aggregate(items),
		Insight:     analysis.Insight,
		Tier:        analysis.Tier,
		Swaps:       analysis.Swaps,
	}
	e.phrases.Upsert(req.Description, entry)
	e.mu.Unlock()

	slog.Info("ENGINE: Reconciled fresh analysis",
		"description", req.Description,
		"items", len(items),
		"densities_learned", stats.learned,
		"densities_applied", stats.applied,
		"calories", entry.Macros.Calories,
	)

	return e.mealFromEntry(req, entry, stats.source), nil
}

// analyze calls the analyzer, folding every failure mode into ErrAnalysisUnavailable.
func (e *Engine) analyze(ctx context.Context, req mealmemory.ReconcileRequest, stats *reconcileStats) (mealmemory.Analysis, error) {
	if e.analyzer == nil {
		return mealmemory.Analysis{}, fmt.Errorf("%w: no analyzer configured", mealmemory.ErrAnalysisUnavailable)
	}

	actx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	analysis, err := e.analyzer.AnalyzeMeal(actx, mealmemory.AnalysisRequest{
		Description:       req.Description,
		Goal:              req.Goal,
		RemainingCalories: req.RemainingCalories,
	})
	stats.analysisElapsed = time.Since(started)

	if err == nil {
		err = actx.Err()
	}
	if err == nil && len(analysis.Items) == 0 {
		err = errors.New("analysis returned no items")
	}
	if err != nil {
		slog.Warn("ENGINE: Analysis unavailable", "description", req.Description, "error", err)
		if errors.Is(err, mealmemory.ErrAnalysisUnavailable) {
			return mealmemory.Analysis{}, err
		}
		return mealmemory.Analysis{}, fmt.Errorf("%w: %w", mealmemory.ErrAnalysisUnavailable, err)
	}
	return analysis, nil
}

// resolveItem applies the trust policy: a known density overrides the analysis numbers,
// an unknown food keeps them and seeds the library. Callers hold e.mu.
func (e *Engine) resolveItem(ai mealmemory.AnalyzedItem) (mealmemory.FoodItem, mealmemory.ItemLog) {
	item := mealmemory.FoodItem{
		Name:     ai.Name,
		Quantity: ai.Quantity,
		Calories: ai.Calories,
		Protein:  ai.Protein,
		Carbs:    ai.Carbs,
		Fat:      ai.Fat,
	}
	key := memory.NormalizeFoodName(ai.Name)
	grams := memory.ExtractGrams(ai.Quantity)
	itemLog := mealmemory.ItemLog{Name: ai.Name, Key: key, Grams: grams}

	if key == "" {
		itemLog.Resolution = resolutionUnkeyed
	} else if d, ok := e.densities.Lookup(key); ok {
		m := memory.Scale(d, grams)
		item.Calories, item.Protein, item.Carbs, item.Fat = m.Calories, m.Protein, m.Carbs, m.Fat
		itemLog.Resolution = resolutionDensity
	} else {
		e.densities.Upsert(key, memory.DeriveDensity(item, grams))
		itemLog.Resolution = resolutionLearned
	}

	itemLog.Calories = item.Calories
	return item, itemLog
}

func (e *Engine) mealFromEntry(req mealmemory.ReconcileRequest, entry mealmemory.MealCacheEntry, source mealmemory.Source) mealmemory.Meal {
	meal := mealmemory.Meal{
		ID:          e.newID(),
		Timestamp:   e.now(),
		Description: req.Description,
		Name:        firstNonEmpty(strings.TrimSpace(req.CustomName), entry.Name, defaultMealName),
		Source:      source,
	}.WithItems(entry.Items)

	if req.WantInsight {
		meal.Insight = entry.Insight
		meal.Tier = entry.Tier
		meal.Swaps = append([]string(nil), entry.Swaps...)
	}
	return meal
}

// UpsertDensity replaces the density stored for name.
func (e *Engine) UpsertDensity(name string, d mealmemory.FoodDensity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.densities.Upsert(name, d)
}

// RemoveDensity forgets the density for name; the next analysis of that food re-seeds it.
func (e *Engine) RemoveDensity(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.densities.Remove(name)
}

func (e *Engine) Density(name string) (mealmemory.FoodDensity, bool) {
	return e.densities.Lookup(name)
}

func (e *Engine) Densities() []mealmemory.FoodDensity {
	return e.densities.All()
}

// UpsertPhrase stores entry for description, re-deriving its macros from its items.
func (e *Engine) UpsertPhrase(description string, entry mealmemory.MealCacheEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phrases.Upsert(description, entry)
}

func (e *Engine) RemovePhrase(description string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phrases.Remove(description)
}

func (e *Engine) Phrase(description string) (mealmemory.MealCacheEntry, bool) {
	return e.phrases.Lookup(description)
}

func (e *Engine) Phrases() []mealmemory.MealCacheEntry {
	return e.phrases.All()
}

// Aggregate exposes the macro aggregator to callers editing item lists.
func (e *Engine) Aggregate(items []mealmemory.FoodItem) mealmemory.Macros {
	return mealmemory.Aggregate(items)
}

// Load replaces both memories with the snapshot's contents.
func (e *Engine) Load(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.densities.Restore(s.Densities)
	e.phrases.Restore(s.Phrases)
}

// Export copies both memories.
func (e *Engine) Export() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Densities: e.densities.Snapshot(),
		Phrases:   e.phrases.Snapshot(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
