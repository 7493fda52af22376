package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"mealmemory"
	"mealmemory/engine"
	"mealmemory/storage"
)

// ErrMealNotFound is returned when an edit targets an unknown meal ID.
var ErrMealNotFound = errors.New("meal not found")

// Memory is what a Session needs from the engine. Both *engine.Engine and
// *engine.InstrumentedEngine satisfy it.
type Memory interface {
	mealmemory.Reconciler
	UpsertDensity(name string, d mealmemory.FoodDensity)
	RemoveDensity(name string) bool
	Density(name string) (mealmemory.FoodDensity, bool)
	Densities() []mealmemory.FoodDensity
	UpsertPhrase(description string, entry mealmemory.MealCacheEntry) bool
	RemovePhrase(description string) bool
	Phrase(description string) (mealmemory.MealCacheEntry, bool)
	Phrases() []mealmemory.MealCacheEntry
	Load(s engine.Snapshot)
	Export() engine.Snapshot
}

// Stores are the persisted blobs behind a Session. Meals may be nil, in which case the
// diary lives only in memory.
type Stores struct {
	Densities storage.State
	Phrases   storage.State
	Meals     storage.State
}

// Session owns an engine's memories between process starts: it loads them once on Open
// and writes them back after every call that changes them. It also keeps the meal diary
// used for daily summaries.
type Session struct {
	memory  Memory
	stores  Stores
	goal    mealmemory.Goal
	targets mealmemory.DailyTargets
	now     func() time.Time

	mu    sync.Mutex
	meals []mealmemory.Meal
}

type Option func(*Session)

func WithGoal(g mealmemory.Goal) Option {
	return func(s *Session) { s.goal = g }
}

func WithTargets(t mealmemory.DailyTargets) Option {
	return func(s *Session) { s.targets = t }
}

// WithClock overrides "today" for summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Open loads persisted memories into mem. Missing state is treated as empty.
func Open(ctx context.Context, mem Memory, stores Stores, opts ...Option) (*Session, error) {
	if stores.Densities == nil || stores.Phrases == nil {
		return nil, fmt.Errorf("densities and phrases stores are required")
	}

	s := &Session{
		memory: mem,
		stores: stores,
		goal:   mealmemory.GoalMaintain,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var snap engine.Snapshot
	if err := loadJSON(ctx, stores.Densities, &snap.Densities); err != nil {
		return nil, fmt.Errorf("failed to load densities: %w", err)
	}
	if err := loadJSON(ctx, stores.Phrases, &snap.Phrases); err != nil {
		return nil, fmt.Errorf("failed to load phrases: %w", err)
	}
	mem.Load(snap)

	if stores.Meals != nil {
		if err := loadJSON(ctx, stores.Meals, &s.meals); err != nil {
			return nil, fmt.Errorf("failed to load meals: %w", err)
		}
	}

	slog.Info("SESSION: Memories loaded",
		"densities", len(snap.Densities),
		"phrases", len(snap.Phrases),
		"meals", len(s.meals),
	)
	return s, nil
}

func loadJSON(ctx context.Context, st storage.State, v any) error {
	data, err := st.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func saveJSON(ctx context.Context, st storage.State, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return st.Save(ctx, data)
}

// LogRequest is a user's request to log a meal.
type LogRequest struct {
	Description string `json:"description"`
	CustomName  string `json:"custom_name,omitempty"`
	WantInsight bool   `json:"want_insight"`
}

// LogMeal reconciles a description with today's remaining calories as context, adds the
// meal to the diary, and persists everything.
func (s *Session) LogMeal(ctx context.Context, req LogRequest) (mealmemory.Meal, error) {
	summary := s.Summary(s.now())

	meal, err := s.memory.Reconcile(ctx, mealmemory.ReconcileRequest{
		Description:       req.Description,
		CustomName:        req.CustomName,
		WantInsight:       req.WantInsight,
		Goal:              s.goal,
		RemainingCalories: summary.RemainingCalories(),
	})
	if err != nil {
		return mealmemory.Meal{}, err
	}

	s.mu.Lock()
	s.meals = append(s.meals, meal)
	s.mu.Unlock()

	if err := s.Persist(ctx); err != nil {
		return meal, err
	}
	return meal, nil
}

// EditMeal replaces a logged meal's items and re-derives its macros.
func (s *Session) EditMeal(ctx context.Context, id string, items []mealmemory.FoodItem) (mealmemory.Meal, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.meals {
		if s.meals[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return mealmemory.Meal{}, fmt.Errorf("%w: %s", ErrMealNotFound, id)
	}
	edited := s.meals[idx].WithItems(items)
	edited.Source = mealmemory.SourceManual
	s.meals[idx] = edited
	s.mu.Unlock()

	slog.Info("SESSION: Meal edited", "id", id, "items", len(items), "calories", edited.Macros.Calories)

	if err := s.persistMeals(ctx); err != nil {
		return edited, err
	}
	return edited, nil
}

// Meals returns the meals logged on day's calendar date, oldest first.
func (s *Session) Meals(day time.Time) []mealmemory.Meal {
	y, m, d := day.Date()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []mealmemory.Meal
	for _, meal := range s.meals {
		ty, tm, td := meal.Timestamp.In(day.Location()).Date()
		if ty == y && tm == m && td == d {
			out = append(out, meal)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Summary totals the meals logged on day against the configured targets.
func (s *Session) Summary(day time.Time) mealmemory.DaySummary {
	return mealmemory.Summarize(s.Meals(day), s.targets)
}

func (s *Session) Today() time.Time {
	return s.now()
}

func (s *Session) Densities() []mealmemory.FoodDensity {
	return s.memory.Densities()
}

func (s *Session) Phrases() []mealmemory.MealCacheEntry {
	return s.memory.Phrases()
}

// UpsertDensity stores a user-corrected density and persists it.
func (s *Session) UpsertDensity(ctx context.Context, name string, d mealmemory.FoodDensity) (mealmemory.FoodDensity, error) {
	s.memory.UpsertDensity(name, d)
	stored, _ := s.memory.Density(name)
	return stored, s.persistMemories(ctx)
}

// RemoveDensity forgets a density and persists the change. It reports whether one existed.
func (s *Session) RemoveDensity(ctx context.Context, name string) (bool, error) {
	if !s.memory.RemoveDensity(name) {
		return false, nil
	}
	return true, s.persistMemories(ctx)
}

// UpsertPhrase stores a remembered meal for description and persists it. The entry's
// macros are re-derived from its items.
func (s *Session) UpsertPhrase(ctx context.Context, description string, entry mealmemory.MealCacheEntry) (mealmemory.MealCacheEntry, error) {
	if !s.memory.UpsertPhrase(description, entry) {
		return mealmemory.MealCacheEntry{}, mealmemory.ErrEmptyDescription
	}
	stored, _ := s.memory.Phrase(description)
	return stored, s.persistMemories(ctx)
}

// RemovePhrase forgets a cached description and persists the change.
func (s *Session) RemovePhrase(ctx context.Context, description string) (bool, error) {
	if !s.memory.RemovePhrase(description) {
		return false, nil
	}
	return true, s.persistMemories(ctx)
}

// Persist writes both memories and the diary.
func (s *Session) Persist(ctx context.Context) error {
	return errors.Join(s.persistMemories(ctx), s.persistMeals(ctx))
}

func (s *Session) persistMemories(ctx context.Context) error {
	snap := s.memory.Export()
	if err := saveJSON(ctx, s.stores.Densities, snap.Densities); err != nil {
		return fmt.Errorf("failed to save densities: %w", err)
	}
	if err := saveJSON(ctx, s.stores.Phrases, snap.Phrases); err != nil {
		return fmt.Errorf("failed to save phrases: %w", err)
	}
	return nil
}

func (s *Session) persistMeals(ctx context.Context) error {
	if s.stores.Meals == nil {
		return nil
	}
	s.mu.Lock()
	meals := append([]mealmemory.Meal(nil), s.meals...)
	s.mu.Unlock()

	if err := saveJSON(ctx, s.stores.Meals, meals); err != nil {
		return fmt.Errorf("failed to save meals: %w", err)
	}
	return nil
}
