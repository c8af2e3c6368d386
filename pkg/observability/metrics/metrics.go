package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	cacheLookups     atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	cacheStoreErrors atomic.Int64
	cacheEntries     atomic.Int64

	queueSubmitted atomic.Int64
	queueQueued    atomic.Int64
	queueInFlight  atomic.Int64
	queueCompleted atomic.Int64
	queueFailed    atomic.Int64
	queueWorkers   atomic.Int64

	deadLettersUnresolved atomic.Int64
)

func Init() {}

func ObserveCrosswalkCache(lookups, hits, misses, storeErrors, entries int64) {
	cacheLookups.Store(lookups)
	cacheHits.Store(hits)
	cacheMisses.Store(misses)
	cacheStoreErrors.Store(storeErrors)
	cacheEntries.Store(entries)
}

func ObserveQueue(submitted, queued, inFlight, completed, failed int64, workers int) {
	queueSubmitted.Store(submitted)
	queueQueued.Store(queued)
	queueInFlight.Store(inFlight)
	queueCompleted.Store(completed)
	queueFailed.Store(failed)
	queueWorkers.Store(int64(workers))
}

func ObserveDeadLetters(unresolved int64) {
	deadLettersUnresolved.Store(unresolved)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP medcoder_crosswalk_cache_lookups_total Number of crosswalk cache lookups since start.\n")
	fmt.Fprintf(w, "# TYPE medcoder_crosswalk_cache_lookups_total gauge\n")
	fmt.Fprintf(w, "medcoder_crosswalk_cache_lookups_total %d\n", cacheLookups.Load())

	fmt.Fprintf(w, "# HELP medcoder_crosswalk_cache_hits_total Number of crosswalk cache lookups served from memory.\n")
	fmt.Fprintf(w, "# TYPE medcoder_crosswalk_cache_hits_total gauge\n")
	fmt.Fprintf(w, "medcoder_crosswalk_cache_hits_total %d\n", cacheHits.Load())

	fmt.Fprintf(w, "# HELP medcoder_crosswalk_cache_misses_total Number of crosswalk cache lookups that went to the store.\n")
	fmt.Fprintf(w, "# TYPE medcoder_crosswalk_cache_misses_total gauge\n")
	fmt.Fprintf(w, "medcoder_crosswalk_cache_misses_total %d\n", cacheMisses.Load())

	fmt.Fprintf(w, "# HELP medcoder_crosswalk_cache_store_errors_total Number of crosswalk store failures absorbed by the cache.\n")
	fmt.Fprintf(w, "# TYPE medcoder_crosswalk_cache_store_errors_total gauge\n")
	fmt.Fprintf(w, "medcoder_crosswalk_cache_store_errors_total %d\n", cacheStoreErrors.Load())

	fmt.Fprintf(w, "# HELP medcoder_crosswalk_cache_entries Number of source codes currently cached.\n")
	fmt.Fprintf(w, "# TYPE medcoder_crosswalk_cache_entries gauge\n")
	fmt.Fprintf(w, "medcoder_crosswalk_cache_entries %d\n", cacheEntries.Load())

	fmt.Fprintf(w, "# HELP medcoder_crosswalk_cache_hit_rate Fraction of lookups served from memory.\n")
	fmt.Fprintf(w, "# TYPE medcoder_crosswalk_cache_hit_rate gauge\n")
	fmt.Fprintf(w, "medcoder_crosswalk_cache_hit_rate %f\n", hitRate())

	fmt.Fprintf(w, "# HELP medcoder_queue_submitted_total Number of coding units accepted by the scheduler since start.\n")
	fmt.Fprintf(w, "# TYPE medcoder_queue_submitted_total gauge\n")
	fmt.Fprintf(w, "medcoder_queue_submitted_total %d\n", queueSubmitted.Load())

	fmt.Fprintf(w, "# HELP medcoder_queue_depth Number of coding units waiting for a worker slot.\n")
	fmt.Fprintf(w, "# TYPE medcoder_queue_depth gauge\n")
	fmt.Fprintf(w, "medcoder_queue_depth %d\n", queueQueued.Load())

	fmt.Fprintf(w, "# HELP medcoder_queue_in_flight Number of coding units currently executing.\n")
	fmt.Fprintf(w, "# TYPE medcoder_queue_in_flight gauge\n")
	fmt.Fprintf(w, "medcoder_queue_in_flight %d\n", queueInFlight.Load())

	fmt.Fprintf(w, "# HELP medcoder_queue_completed_total Number of coding units that reached COMPLETE.\n")
	fmt.Fprintf(w, "# TYPE medcoder_queue_completed_total gauge\n")
	fmt.Fprintf(w, "medcoder_queue_completed_total %d\n", queueCompleted.Load())

	fmt.Fprintf(w, "# HELP medcoder_queue_failed_total Number of coding units that exhausted their retry budget.\n")
	fmt.Fprintf(w, "# TYPE medcoder_queue_failed_total gauge\n")
	fmt.Fprintf(w, "medcoder_queue_failed_total %d\n", queueFailed.Load())

	fmt.Fprintf(w, "# HELP medcoder_queue_workers Number of worker slots in the active scheduler.\n")
	fmt.Fprintf(w, "# TYPE medcoder_queue_workers gauge\n")
	fmt.Fprintf(w, "medcoder_queue_workers %d\n", queueWorkers.Load())

	fmt.Fprintf(w, "# HELP medcoder_dead_letters_unresolved Number of dead-lettered units awaiting operator action.\n")
	fmt.Fprintf(w, "# TYPE medcoder_dead_letters_unresolved gauge\n")
	fmt.Fprintf(w, "medcoder_dead_letters_unresolved %d\n", deadLettersUnresolved.Load())
}

func hitRate() float64 {
	lookups := cacheLookups.Load()
	if lookups == 0 {
		return 0
	}
	return float64(cacheHits.Load()) / float64(lookups)
}
