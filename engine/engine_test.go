package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealmemory"
	"mealmemory/analyzer/mock"
)

const chickenAndRice = "200g grilled chicken, 100g rice"

// blockingAnalyzer waits for its context to end.
type blockingAnalyzer struct{}

func (blockingAnalyzer) AnalyzeMeal(ctx context.Context, _ mealmemory.AnalysisRequest) (mealmemory.Analysis, error) {
	<-ctx.Done()
	return mealmemory.Analysis{}, ctx.Err()
}

// lateAnalyzer ignores cancellation and answers anyway.
type lateAnalyzer struct{}

func (lateAnalyzer) AnalyzeMeal(ctx context.Context, _ mealmemory.AnalysisRequest) (mealmemory.Analysis, error) {
	<-ctx.Done()
	return mealmemory.Analysis{Items: []mealmemory.AnalyzedItem{{Name: "rice", Quantity: "100g", Calories: 130}}}, nil
}

func newTestEngine(a mealmemory.Analyzer, opts ...Option) *Engine {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	opts = append([]Option{
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("meal-%d", n) }),
	}, opts...)
	return New(a, opts...)
}

func TestEngine_LearnsThenReusesPhrase(t *testing.T) {
	ctx := context.Background()
	a := mock.NewAnalyzer()
	e := newTestEngine(a)

	first, err := e.Reconcile(ctx, mealmemory.ReconcileRequest{Description: chickenAndRice, WantInsight: true})
	require.NoError(t, err)

	assert.Equal(t, mealmemory.SourceAnalysis, first.Source)
	assert.Equal(t, "meal-1", first.ID)
	assert.Equal(t, chickenAndRice, first.Description)
	assert.Equal(t, 460.0, first.Macros.Calories)
	assert.Equal(t, mealmemory.Aggregate(first.Items), first.Macros)
	assert.NotEmpty(t, first.Insight)
	assert.NotEmpty(t, first.Tier)
	assert.NotEmpty(t, first.Swaps)

	chicken, ok := e.Density("grilled chicken")
	require.True(t, ok)
	assert.InDelta(t, 1.65, chicken.CaloriesPerGram, 1e-9)
	assert.InDelta(t, 0.31, chicken.ProteinPerGram, 1e-9)
	assert.Equal(t, "200g", chicken.LastQuantity)

	rice, ok := e.Density("rice")
	require.True(t, ok)
	assert.InDelta(t, 1.3, rice.CaloriesPerGram, 1e-9)

	cached, ok := e.Phrase("  200G Grilled Chicken, 100g Rice ")
	require.True(t, ok)
	assert.Equal(t, 460.0, cached.Macros.Calories)
	assert.Equal(t, chickenAndRice, cached.Description)

	second, err := e.Reconcile(ctx, mealmemory.ReconcileRequest{Description: chickenAndRice, WantInsight: true})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Calls(), "phrase hit must not call the analyzer")
	assert.Equal(t, mealmemory.SourcePhraseCache, second.Source)
	assert.Equal(t, "meal-2", second.ID)
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Macros, second.Macros)
	assert.Equal(t, first.Insight, second.Insight)
}

func TestEngine_StoredDensityOverridesAnalysis(t *testing.T) {
	ctx := context.Background()
	a := mock.NewAnalyzer()
	e := newTestEngine(a)

	_, err := e.Reconcile(ctx, mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)

	a.Script("100g grilled chicken with broccoli", mealmemory.Analysis{
		Name: "Chicken and broccoli",
		Items: []mealmemory.AnalyzedItem{
			{Name: "Grilled Chicken", Quantity: "100g", Calories: 999, Protein: 1, Fat: 50},
			{Name: "broccoli", Quantity: "80g", Calories: 27, Protein: 2.2, Carbs: 5.6, Fat: 0.3},
		},
	})

	meal, err := e.Reconcile(ctx, mealmemory.ReconcileRequest{Description: "100g grilled chicken with broccoli"})
	require.NoError(t, err)
	require.Len(t, meal.Items, 2)

	assert.Equal(t, 165.0, meal.Items[0].Calories)
	assert.Equal(t, 31.0, meal.Items[0].Protein)
	assert.Equal(t, 3.6, meal.Items[0].Fat)
	assert.Equal(t, 27.0, meal.Items[1].Calories)
	assert.Equal(t, 192.0, meal.Macros.Calories)
	assert.Equal(t, "Chicken and broccoli", meal.Name)

	broccoli, ok := e.Density("broccoli")
	require.True(t, ok)
	assert.InDelta(t, 27.0/80, broccoli.CaloriesPerGram, 1e-9)

	chicken, _ := e.Density("grilled chicken")
	assert.InDelta(t, 1.65, chicken.CaloriesPerGram, 1e-9, "applying a density must not rewrite it")
}

func TestEngine_RemoveDensityReseeds(t *testing.T) {
	ctx := context.Background()
	a := mock.NewAnalyzer()
	e := newTestEngine(a)

	_, err := e.Reconcile(ctx, mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)

	require.True(t, e.RemoveDensity("Grilled Chicken"))
	_, ok := e.Density("grilled chicken")
	require.False(t, ok)

	a.Script("150g grilled chicken", mealmemory.Analysis{
		Items: []mealmemory.AnalyzedItem{{Name: "grilled chicken", Quantity: "150g", Calories: 300, Protein: 45}},
	})
	meal, err := e.Reconcile(ctx, mealmemory.ReconcileRequest{Description: "150g grilled chicken"})
	require.NoError(t, err)
	assert.Equal(t, 300.0, meal.Items[0].Calories)
	assert.Equal(t, "Meal", meal.Name)

	chicken, ok := e.Density("grilled chicken")
	require.True(t, ok)
	assert.InDelta(t, 2.0, chicken.CaloriesPerGram, 1e-9)
}

func TestEngine_InsightOmittedWhenNotWanted(t *testing.T) {
	e := newTestEngine(mock.NewAnalyzer())

	meal, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)
	assert.Empty(t, meal.Insight)
	assert.Empty(t, meal.Tier)
	assert.Empty(t, meal.Swaps)

	cached, _ := e.Phrase(chickenAndRice)
	assert.NotEmpty(t, cached.Insight, "cache keeps insight for later callers")

	withInsight, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: chickenAndRice, WantInsight: true})
	require.NoError(t, err)
	assert.Equal(t, cached.Insight, withInsight.Insight)
}

func TestEngine_CustomName(t *testing.T) {
	e := newTestEngine(mock.NewAnalyzer())

	meal, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: chickenAndRice, CustomName: "  Lunch  "})
	require.NoError(t, err)
	assert.Equal(t, "Lunch", meal.Name)

	cached, _ := e.Phrase(chickenAndRice)
	assert.Equal(t, "Grilled chicken", cached.Name)

	again, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)
	assert.Equal(t, "Grilled chicken", again.Name)
}

func TestEngine_AnalysisUnavailable(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		analyzer func() mealmemory.Analyzer
		ctx      context.Context
		opts     []Option
	}{
		{
			name: "analyzer error",
			analyzer: func() mealmemory.Analyzer {
				a := mock.NewAnalyzer()
				a.FailWith(errors.New("upstream 503"))
				return a
			},
			ctx: context.Background(),
		},
		{
			name: "no items",
			analyzer: func() mealmemory.Analyzer {
				a := mock.NewAnalyzer()
				a.Script(chickenAndRice, mealmemory.Analysis{Name: "Nothing"})
				return a
			},
			ctx: context.Background(),
		},
		{
			name:     "caller cancelled",
			analyzer: func() mealmemory.Analyzer { return mock.NewAnalyzer() },
			ctx:      cancelled,
		},
		{
			name:     "timeout",
			analyzer: func() mealmemory.Analyzer { return blockingAnalyzer{} },
			ctx:      context.Background(),
			opts:     []Option{WithAnalysisTimeout(10 * time.Millisecond)},
		},
		{
			name:     "answer after timeout is discarded",
			analyzer: func() mealmemory.Analyzer { return lateAnalyzer{} },
			ctx:      context.Background(),
			opts:     []Option{WithAnalysisTimeout(10 * time.Millisecond)},
		},
		{
			name:     "no analyzer",
			analyzer: func() mealmemory.Analyzer { return nil },
			ctx:      context.Background(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.analyzer(), tt.opts...)

			meal, err := e.Reconcile(tt.ctx, mealmemory.ReconcileRequest{Description: chickenAndRice})
			require.Error(t, err)
			assert.ErrorIs(t, err, mealmemory.ErrAnalysisUnavailable)
			assert.Zero(t, meal)
			assert.Empty(t, e.Phrases())
			assert.Empty(t, e.Densities())
		})
	}
}

func TestEngine_EmptyDescription(t *testing.T) {
	a := mock.NewAnalyzer()
	e := newTestEngine(a)

	_, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: " \t "})
	assert.ErrorIs(t, err, mealmemory.ErrEmptyDescription)
	assert.Zero(t, a.Calls())
}

func TestEngine_UnnamedItemIsNotLearned(t *testing.T) {
	a := mock.NewAnalyzer()
	a.Script("mystery", mealmemory.Analysis{
		Items: []mealmemory.AnalyzedItem{{Name: "  ", Quantity: "50g", Calories: 70}},
	})
	e := newTestEngine(a)

	meal, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: "mystery"})
	require.NoError(t, err)
	assert.Equal(t, 70.0, meal.Macros.Calories)
	assert.Empty(t, e.Densities())
}

func TestEngine_UpsertPhraseIsServedWithoutAnalysis(t *testing.T) {
	a := mock.NewAnalyzer()
	e := newTestEngine(a)

	ok := e.UpsertPhrase("My Usual Breakfast", mealmemory.MealCacheEntry{
		Name: "Usual",
		Items: []mealmemory.FoodItem{
			{Name: "oats", Quantity: "50g", Calories: 194.5, Protein: 8.5},
			{Name: "milk", Quantity: "200ml", Calories: 84, Protein: 6.8},
		},
	})
	require.True(t, ok)

	meal, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: "my usual breakfast"})
	require.NoError(t, err)
	assert.Zero(t, a.Calls())
	assert.Equal(t, mealmemory.SourcePhraseCache, meal.Source)
	assert.Equal(t, 278.5, meal.Macros.Calories)

	assert.True(t, e.RemovePhrase("MY USUAL BREAKFAST"))
	_, err = e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: "my usual breakfast"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls())
}

func TestEngine_ExportLoad(t *testing.T) {
	ctx := context.Background()
	src := newTestEngine(mock.NewAnalyzer())
	_, err := src.Reconcile(ctx, mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)

	snap := src.Export()
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	a := mock.NewAnalyzer()
	dst := newTestEngine(a)
	dst.Load(decoded)

	assert.Equal(t, src.Densities(), dst.Densities())
	meal, err := dst.Reconcile(ctx, mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)
	assert.Zero(t, a.Calls())
	assert.Equal(t, 460.0, meal.Macros.Calories)
}

func TestEngine_LogsReconciliations(t *testing.T) {
	var buf bytes.Buffer
	logger := mealmemory.NewFileReconciliationLogger(&buf)
	e := newTestEngine(mock.NewAnalyzer(), WithLogger(logger))

	_, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: chickenAndRice})
	require.NoError(t, err)
	_, err = e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: ""})
	require.Error(t, err)

	require.NoError(t, logger.Flush())

	var doc struct {
		Session struct {
			Entries []mealmemory.ReconcileLog `json:"entries"`
		} `json:"reconcile_session"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Session.Entries, 2)

	first := doc.Session.Entries[0]
	assert.Equal(t, "meal-1", first.MealID)
	assert.Equal(t, mealmemory.SourceAnalysis, first.Source)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "learned", first.Items[0].Resolution)
	assert.Equal(t, "grilled chicken", first.Items[0].Key)
	assert.Equal(t, 200.0, first.Items[0].Grams)

	assert.NotEmpty(t, doc.Session.Entries[1].Error)
}

func TestEngine_ConcurrentReconcile(t *testing.T) {
	a := mock.NewAnalyzer()
	e := New(a)

	descriptions := []string{
		chickenAndRice,
		"100g grilled chicken",
		"50g oats, 200ml milk",
		"1 banana",
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desc := descriptions[i%len(descriptions)]
			meal, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: desc})
			assert.NoError(t, err)
			assert.Equal(t, mealmemory.Aggregate(meal.Items), meal.Macros)
		}(i)
		if i%5 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = e.Export()
				_ = e.Densities()
			}()
		}
	}
	wg.Wait()

	assert.Len(t, e.Phrases(), len(descriptions))
	for _, desc := range descriptions {
		entry, ok := e.Phrase(desc)
		require.True(t, ok, desc)
		assert.Equal(t, mealmemory.Aggregate(entry.Items), entry.Macros)
	}
}

func TestEngine_ConcurrentReconcileKeepsEveryLogEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := mealmemory.NewFileReconciliationLogger(&buf)
	e := New(mock.NewAnalyzer(), WithLogger(logger))

	descriptions := []string{
		chickenAndRice,
		"100g grilled chicken",
		"50g oats, 200ml milk",
		"1 banana",
	}

	const calls = 200
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Reconcile(context.Background(), mealmemory.ReconcileRequest{Description: descriptions[i%len(descriptions)]})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, logger.Flush())

	var out struct {
		Session struct {
			Entries []mealmemory.ReconcileLog `json:"entries"`
		} `json:"reconcile_session"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out.Session.Entries, calls)
}
