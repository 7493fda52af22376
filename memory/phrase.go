package memory

import (
	"sort"
	"sync"

	"mealmemory"
)

// PhraseCache maps normalized meal descriptions to complete meal records.
type PhraseCache struct {
	mu      sync.RWMutex
	entries map[string]mealmemory.MealCacheEntry
}

func NewPhraseCache() *PhraseCache {
	return &PhraseCache{entries: make(map[string]mealmemory.MealCacheEntry)}
}

// Lookup returns a copy of the entry cached for description.
func (c *PhraseCache) Lookup(description string) (mealmemory.MealCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[NormalizePhrase(description)]
	if !ok {
		return mealmemory.MealCacheEntry{}, false
	}
	return cloneEntry(e), true
}

// Upsert stores entry for description, replacing any prior entry. The stored macros are
// re-derived from the entry's items. Blank descriptions are ignored.
func (c *PhraseCache) Upsert(description string, entry mealmemory.MealCacheEntry) bool {
	key := NormalizePhrase(description)
	if key == "" {
		return false
	}
	entry = cloneEntry(entry)
	if entry.Description == "" {
		entry.Description = description
	}
	entry.Macros = mealmemory.Aggregate(entry.Items)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return true
}

// Remove deletes the entry for description. It reports whether one existed.
func (c *PhraseCache) Remove(description string) bool {
	key := NormalizePhrase(description)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

func (c *PhraseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// All returns every entry ordered by key.
func (c *PhraseCache) All() []mealmemory.MealCacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]mealmemory.MealCacheEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneEntry(c.entries[k]))
	}
	return out
}

func (c *PhraseCache) Snapshot() map[string]mealmemory.MealCacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]mealmemory.MealCacheEntry, len(c.entries))
	for k, e := range c.entries {
		out[k] = cloneEntry(e)
	}
	return out
}

// Restore replaces the cache contents. Keys are re-normalized and macros re-derived.
func (c *PhraseCache) Restore(entries map[string]mealmemory.MealCacheEntry) {
	fresh := make(map[string]mealmemory.MealCacheEntry, len(entries))
	for k, e := range entries {
		key := NormalizePhrase(k)
		if key == "" {
			continue
		}
		e = cloneEntry(e)
		if e.Description == "" {
			e.Description = k
		}
		e.Macros = mealmemory.Aggregate(e.Items)
		fresh[key] = e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = fresh
}

func cloneEntry(e mealmemory.MealCacheEntry) mealmemory.MealCacheEntry {
	e.Items = append([]mealmemory.FoodItem(nil), e.Items...)
	e.Swaps = append([]string(nil), e.Swaps...)
	return e
}
