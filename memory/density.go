package memory

import (
	"math"
	"sort"
	"sync"

	"mealmemory"
)

// DensityLibrary maps normalized food names to per-gram nutrient profiles.
// Every upsert replaces the previous record for its key; observations are never averaged.
type DensityLibrary struct {
	mu      sync.RWMutex
	entries map[string]mealmemory.FoodDensity
}

func NewDensityLibrary() *DensityLibrary {
	return &DensityLibrary{entries: make(map[string]mealmemory.FoodDensity)}
}

// Lookup returns the density stored under the normalized form of name.
func (l *DensityLibrary) Lookup(name string) (mealmemory.FoodDensity, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.entries[NormalizeFoodName(name)]
	return d, ok
}

// Upsert stores d under the normalized form of name, replacing any prior record.
// Negative or non-finite rates are stored as zero.
func (l *DensityLibrary) Upsert(name string, d mealmemory.FoodDensity) {
	key := NormalizeFoodName(name)
	d.Name = key
	d.CaloriesPerGram = nonNegative(d.CaloriesPerGram)
	d.ProteinPerGram = nonNegative(d.ProteinPerGram)
	d.CarbsPerGram = nonNegative(d.CarbsPerGram)
	d.FatPerGram = nonNegative(d.FatPerGram)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = d
}

// Remove deletes the record for the normalized form of name. It reports whether one existed.
func (l *DensityLibrary) Remove(name string) bool {
	key := NormalizeFoodName(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	delete(l.entries, key)
	return ok
}

// Len returns the number of stored densities.
func (l *DensityLibrary) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// All returns every density ordered by key.
func (l *DensityLibrary) All() []mealmemory.FoodDensity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]mealmemory.FoodDensity, 0, len(l.entries))
	for _, d := range l.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot copies the library into a plain map keyed by normalized name.
func (l *DensityLibrary) Snapshot() map[string]mealmemory.FoodDensity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]mealmemory.FoodDensity, len(l.entries))
	for k, d := range l.entries {
		out[k] = d
	}
	return out
}

// Restore replaces the library's contents with entries. Keys are re-normalized so a
// snapshot written by an older build still resolves.
func (l *DensityLibrary) Restore(entries map[string]mealmemory.FoodDensity) {
	fresh := make(map[string]mealmemory.FoodDensity, len(entries))
	for k, d := range entries {
		key := NormalizeFoodName(k)
		d.Name = key
		d.CaloriesPerGram = nonNegative(d.CaloriesPerGram)
		d.ProteinPerGram = nonNegative(d.ProteinPerGram)
		d.CarbsPerGram = nonNegative(d.CarbsPerGram)
		d.FatPerGram = nonNegative(d.FatPerGram)
		fresh[key] = d
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = fresh
}

// DeriveDensity computes per-gram rates from an item's absolute macros and its weight.
// The weight is floored at 1 gram.
func DeriveDensity(item mealmemory.FoodItem, grams float64) mealmemory.FoodDensity {
	w := math.Max(grams, 1)
	return mealmemory.FoodDensity{
		Name:            NormalizeFoodName(item.Name),
		CaloriesPerGram: nonNegative(item.Calories / w),
		ProteinPerGram:  nonNegative(item.Protein / w),
		CarbsPerGram:    nonNegative(item.Carbs / w),
		FatPerGram:      nonNegative(item.Fat / w),
		LastQuantity:    item.Quantity,
	}
}

// Scale applies a density to a weight: whole calories, other channels to one decimal.
func Scale(d mealmemory.FoodDensity, grams float64) mealmemory.Macros {
	return mealmemory.Macros{
		Calories: math.Round(d.CaloriesPerGram * grams),
		Protein:  mealmemory.Round1(d.ProteinPerGram * grams),
		Carbs:    mealmemory.Round1(d.CarbsPerGram * grams),
		Fat:      mealmemory.Round1(d.FatPerGram * grams),
	}
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
