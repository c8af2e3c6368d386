package crosswalk

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

type cacheEntry struct {
	mappings  []models.CrosswalkMapping // sorted, full confidence range
	fetchedAt time.Time
}

// Cache is the process-scoped crosswalk lookup cache. Reads vastly outnumber
// writes after warm-up, so entries sit behind a RWMutex-guarded map. Empty
// store results are cached too, so a code with no mappings does not hammer
// the store on every request; store errors are never cached.
type Cache struct {
	store    MappingStore
	capacity int

	mu      sync.RWMutex
	entries map[string]cacheEntry

	lookups     atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	storeErrors atomic.Int64
}

func NewCache(store MappingStore, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		store:    store,
		capacity: capacity,
		entries:  make(map[string]cacheEntry),
	}
}

// Get returns the ranked mappings for one source code at or above
// minConfidence. A store failure yields an empty result, never an error.
func (c *Cache) Get(ctx context.Context, code string, minConfidence float64) []models.CrosswalkMapping {
	results := c.GetBatch(ctx, []string{code}, minConfidence)
	return results[code]
}

// GetBatch resolves many codes with at most one durable-store query for the
// union of cache misses.
func (c *Cache) GetBatch(ctx context.Context, codes []string, minConfidence float64) map[string][]models.CrosswalkMapping {
	out := make(map[string][]models.CrosswalkMapping, len(codes))
	if len(codes) == 0 {
		return out
	}

	var missing []string
	seen := make(map[string]struct{}, len(codes))

	c.mu.RLock()
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		c.lookups.Add(1)
		if entry, ok := c.entries[code]; ok {
			c.hits.Add(1)
			out[code] = filterByConfidence(entry.mappings, minConfidence)
		} else {
			c.misses.Add(1)
			missing = append(missing, code)
		}
	}
	c.mu.RUnlock()

	if len(missing) > 0 {
		fetched, err := c.store.FetchMappings(ctx, missing)
		if err != nil {
			c.storeErrors.Add(1)
			logger.Log.WithError(err).WithField("codes", missing).Warn("crosswalk store lookup failed")
			for _, code := range missing {
				out[code] = nil
			}
		} else {
			c.mu.Lock()
			for _, code := range missing {
				ranked := rankMappings(fetched[code])
				c.entries[code] = cacheEntry{mappings: ranked, fetchedAt: time.Now()}
				out[code] = filterByConfidence(ranked, minConfidence)
			}
			c.evictLocked()
			c.mu.Unlock()
		}
	}

	if err := c.store.RecordLookups(ctx, codes); err != nil {
		logger.Log.WithError(err).Debug("failed to record crosswalk lookup counters")
	}

	return out
}

// GetBest returns the single top-ranked mapping for a code, if any.
func (c *Cache) GetBest(ctx context.Context, code string, minConfidence float64) (models.CrosswalkMapping, bool) {
	mappings := c.Get(ctx, code, minConfidence)
	if len(mappings) == 0 {
		return models.CrosswalkMapping{}, false
	}
	return mappings[0], true
}

// Warm pre-loads the topN historically most requested codes.
func (c *Cache) Warm(ctx context.Context, topN int) error {
	codes, err := c.store.TopRequested(ctx, topN)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		logger.Log.Info("no historical crosswalk lookups to warm from")
		return nil
	}
	c.GetBatch(ctx, codes, 0)
	logger.Log.WithField("codes", len(codes)).Info("crosswalk cache warmed")
	return nil
}

// Invalidate drops every cached entry. Operational use only.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	logger.Log.Info("crosswalk cache invalidated")
}

type CacheMetrics struct {
	Lookups     int64   `json:"lookups"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	StoreErrors int64   `json:"store_errors"`
	HitRate     float64 `json:"hit_rate"`
	Entries     int     `json:"entries"`
}

func (c *Cache) Metrics() CacheMetrics {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	m := CacheMetrics{
		Lookups:     c.lookups.Load(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		StoreErrors: c.storeErrors.Load(),
		Entries:     entries,
	}
	if m.Lookups > 0 {
		m.HitRate = float64(m.Hits) / float64(m.Lookups)
	}
	return m
}

// evictLocked drops the oldest entries until the map fits the capacity.
// Caller holds the write lock.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.capacity {
		oldestCode := ""
		var oldestAt time.Time
		for code, entry := range c.entries {
			if oldestCode == "" || entry.fetchedAt.Before(oldestAt) {
				oldestCode = code
				oldestAt = entry.fetchedAt
			}
		}
		delete(c.entries, oldestCode)
	}
}

// rankMappings sorts by descending confidence, breaking ties by mapping-kind
// preference: EXACT > BROADER > NARROWER > APPROXIMATE.
func rankMappings(mappings []models.CrosswalkMapping) []models.CrosswalkMapping {
	ranked := make([]models.CrosswalkMapping, len(mappings))
	copy(ranked, mappings)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return kindRank(ranked[i].Kind) < kindRank(ranked[j].Kind)
	})
	return ranked
}

func filterByConfidence(mappings []models.CrosswalkMapping, minConfidence float64) []models.CrosswalkMapping {
	if minConfidence <= 0 {
		return mappings
	}
	var out []models.CrosswalkMapping
	for _, m := range mappings {
		if m.Confidence >= minConfidence {
			out = append(out, m)
		}
	}
	return out
}
