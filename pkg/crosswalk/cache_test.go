package crosswalk

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

func init() {
	logger.Init("crosswalk-test")
}

type fakeStore struct {
	mappings   map[string][]models.CrosswalkMapping
	top        []string
	fetchCalls int
	failNext   bool
}

func (f *fakeStore) FetchMappings(ctx context.Context, codes []string) (map[string][]models.CrosswalkMapping, error) {
	f.fetchCalls++
	if f.failNext {
		f.failNext = false
		return nil, errors.New("store unavailable")
	}
	out := make(map[string][]models.CrosswalkMapping, len(codes))
	for _, code := range codes {
		out[code] = f.mappings[code]
	}
	return out, nil
}

func (f *fakeStore) TopRequested(ctx context.Context, n int) ([]string, error) {
	if n < len(f.top) {
		return f.top[:n], nil
	}
	return f.top, nil
}

func (f *fakeStore) RecordLookups(ctx context.Context, codes []string) error {
	return nil
}

func mapping(source, target string, confidence float64, kind string) models.CrosswalkMapping {
	return models.CrosswalkMapping{
		SourceCode: source,
		TargetCode: target,
		Confidence: confidence,
		Kind:       kind,
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mappings: map[string][]models.CrosswalkMapping{
			"80146002": {
				mapping("80146002", "44970", 0.88, models.KindNarrower),
				mapping("80146002", "44950", 0.97, models.KindExact),
			},
			"73761001": {
				mapping("73761001", "45378", 0.95, models.KindExact),
			},
			"TIED": {
				mapping("TIED", "B", 0.9, models.KindApproximate),
				mapping("TIED", "A", 0.9, models.KindExact),
				mapping("TIED", "C", 0.9, models.KindBroader),
			},
		},
		top: []string{"80146002", "73761001"},
	}
}

func TestCacheGetSortsByConfidence(t *testing.T) {
	cache := NewCache(newFakeStore(), 100)

	got := cache.Get(context.Background(), "80146002", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(got))
	}
	if got[0].TargetCode != "44950" {
		t.Fatalf("expected highest-confidence mapping first, got %s", got[0].TargetCode)
	}
}

func TestCacheTieBreakByMappingKind(t *testing.T) {
	cache := NewCache(newFakeStore(), 100)

	got := cache.Get(context.Background(), "TIED", 0)
	order := []string{got[0].TargetCode, got[1].TargetCode, got[2].TargetCode}
	want := []string{"A", "C", "B"} // EXACT > BROADER > APPROXIMATE
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected kind-preference order %v, got %v", want, order)
	}
}

func TestCacheHitAvoidsStore(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(store, 100)
	ctx := context.Background()

	cache.Get(ctx, "80146002", 0)
	cache.Get(ctx, "80146002", 0)

	if store.fetchCalls != 1 {
		t.Fatalf("expected a single store fetch, got %d", store.fetchCalls)
	}
	metrics := cache.Metrics()
	if metrics.Hits != 1 || metrics.Misses != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestCacheBatchEquivalenceAndSingleRoundTrip(t *testing.T) {
	ctx := context.Background()
	codes := []string{"80146002", "73761001", "UNKNOWN"}

	singleStore := newFakeStore()
	singleCache := NewCache(singleStore, 100)
	individual := make(map[string][]models.CrosswalkMapping)
	for _, code := range codes {
		individual[code] = singleCache.Get(ctx, code, 0)
	}

	batchStore := newFakeStore()
	batchCache := NewCache(batchStore, 100)
	batch := batchCache.GetBatch(ctx, codes, 0)

	for _, code := range codes {
		if !reflect.DeepEqual(individual[code], batch[code]) {
			t.Fatalf("batch result for %s differs from individual gets", code)
		}
	}
	if batchStore.fetchCalls != 1 {
		t.Fatalf("expected one store round trip for the union of misses, got %d", batchStore.fetchCalls)
	}
}

func TestCacheEmptyResultIsCached(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(store, 100)
	ctx := context.Background()

	if got := cache.Get(ctx, "UNKNOWN", 0); len(got) != 0 {
		t.Fatalf("expected no mappings for unknown code, got %d", len(got))
	}
	cache.Get(ctx, "UNKNOWN", 0)

	if store.fetchCalls != 1 {
		t.Fatalf("expected empty result cached after first miss, got %d fetches", store.fetchCalls)
	}
}

func TestCacheStoreErrorNotCached(t *testing.T) {
	store := newFakeStore()
	store.failNext = true
	cache := NewCache(store, 100)
	ctx := context.Background()

	if got := cache.Get(ctx, "80146002", 0); len(got) != 0 {
		t.Fatalf("expected empty result on store failure, got %d", len(got))
	}

	// The failed lookup must not poison the cache: the next request retries.
	if got := cache.Get(ctx, "80146002", 0); len(got) != 2 {
		t.Fatalf("expected store retried after failure, got %d mappings", len(got))
	}
	if store.fetchCalls != 2 {
		t.Fatalf("expected two fetch attempts, got %d", store.fetchCalls)
	}
}

func TestCacheMinConfidenceFilter(t *testing.T) {
	cache := NewCache(newFakeStore(), 100)

	got := cache.Get(context.Background(), "80146002", 0.9)
	if len(got) != 1 || got[0].TargetCode != "44950" {
		t.Fatalf("expected only the high-confidence mapping, got %v", got)
	}
}

func TestCacheGetBest(t *testing.T) {
	cache := NewCache(newFakeStore(), 100)
	ctx := context.Background()

	best, ok := cache.GetBest(ctx, "80146002", 0)
	if !ok || best.TargetCode != "44950" {
		t.Fatalf("expected best mapping 44950, got %v ok=%v", best, ok)
	}
	if _, ok := cache.GetBest(ctx, "UNKNOWN", 0); ok {
		t.Fatal("expected no best mapping for unknown code")
	}
}

func TestCacheWarmAndInvalidate(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(store, 100)
	ctx := context.Background()

	if err := cache.Warm(ctx, 2); err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	if store.fetchCalls != 1 {
		t.Fatalf("expected warm to fetch once, got %d", store.fetchCalls)
	}

	cache.Get(ctx, "80146002", 0)
	if store.fetchCalls != 1 {
		t.Fatal("expected warmed code served from cache")
	}

	cache.Invalidate()
	cache.Get(ctx, "80146002", 0)
	if store.fetchCalls != 2 {
		t.Fatal("expected store hit after invalidation")
	}
}

func TestCacheEviction(t *testing.T) {
	store := &fakeStore{mappings: map[string][]models.CrosswalkMapping{}}
	cache := NewCache(store, 2)
	ctx := context.Background()

	cache.Get(ctx, "A", 0)
	cache.Get(ctx, "B", 0)
	cache.Get(ctx, "C", 0)

	if m := cache.Metrics(); m.Entries > 2 {
		t.Fatalf("expected capacity enforced at 2 entries, got %d", m.Entries)
	}
}
