package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/medcoder-ai/platform/pkg/common/config"
	"github.com/medcoder-ai/platform/pkg/common/database"
	"github.com/medcoder-ai/platform/pkg/common/kafka"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/crosswalk"
	"github.com/medcoder-ai/platform/pkg/encounter"
	"github.com/medcoder-ai/platform/pkg/extraction"
	"github.com/medcoder-ai/platform/pkg/observability/metrics"
	"github.com/medcoder-ai/platform/pkg/pipeline"
	"github.com/medcoder-ai/platform/pkg/report"
	"github.com/medcoder-ai/platform/pkg/scheduler"
	"github.com/medcoder-ai/platform/pkg/suggestion"
)

func main() {
	logger.Init("coding-service")
	cfg := config.Load()
	metrics.Init()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	encounterRepo := encounter.NewRepository(db)
	reportRepo := report.NewRepository(db)
	crosswalkRepo := crosswalk.NewRepository(db)
	deadLetterRepo := scheduler.NewDeadLetterRepository(db)
	for name, migrate := range map[string]func() error{
		"encounters":   encounterRepo.AutoMigrate,
		"reports":      reportRepo.AutoMigrate,
		"crosswalk":    crosswalkRepo.AutoMigrate,
		"dead_letters": deadLetterRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("tables", name).Fatal("failed to migrate tables")
		}
	}

	redisClient := database.GetRedis()
	statusCache := report.NewRedisStatusCache(redisClient, cfg.StatusSnapshotTTL)

	reports := report.NewService(reportRepo, statusCache)
	encounters := encounter.NewService(encounterRepo)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	catalog, err := crosswalk.LoadCatalog(cfg.CrosswalkSeedPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load crosswalk catalog")
	}
	if err := crosswalkRepo.SeedIfEmpty(bootCtx, catalog); err != nil {
		logger.Log.WithError(err).Fatal("failed to seed crosswalk mappings")
	}
	crosswalkCache := crosswalk.NewCache(crosswalkRepo, cfg.CrosswalkCacheCapacity)
	if err := crosswalkCache.Warm(bootCtx, cfg.CrosswalkWarmCount); err != nil {
		logger.Log.WithError(err).Warn("crosswalk cache warmup failed, starting cold")
	}
	bootCancel()

	extractor := extraction.NewClient(cfg.ExtractionBaseURL, cfg.ExtractionTimeout)
	suggester := suggestion.NewClient(cfg.SuggestionBaseURL, cfg.SuggestionAPIKey, cfg.SuggestionModel, cfg.SuggestionTimeout, cfg.RefinementTimeout)

	orchestrator := pipeline.NewOrchestrator(reports, encounters, extractor, suggester, crosswalkCache, pipeline.Options{
		ReferenceConfidenceFloor: cfg.ReferenceConfidenceFloor,
		ProcedureMatchThreshold:  cfg.ProcedureMatchThreshold,
		DiagnosisMatchThreshold:  cfg.DiagnosisMatchThreshold,
		CrosswalkMinConfidence:   cfg.CrosswalkMinConfidence,
	})
	coordinator := scheduler.NewCoordinator(reports, deadLetterRepo, orchestrator, cfg.MaxRetries, cfg.RetryBaseDelay)

	baseCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	var sched scheduler.Scheduler
	var local *scheduler.LocalScheduler
	var producer *kafka.Producer
	if cfg.SchedulerMode == "distributed" {
		producer = kafka.NewProducer(cfg.CodingTopic)
		sched = scheduler.NewDistributedScheduler(producer, "coding-service")
		logger.Log.WithField("topic", cfg.CodingTopic).Info("scheduler running in distributed mode")
	} else {
		local = scheduler.NewLocalScheduler(baseCtx, coordinator, cfg.WorkerConcurrency)
		sched = local
		logger.Log.WithField("workers", cfg.WorkerConcurrency).Info("scheduler running in local mode")
	}

	deadLetters := scheduler.NewDeadLetterService(deadLetterRepo, reports, sched)

	go sampleMetrics(baseCtx, cfg.MetricsSampleEvery, crosswalkCache, sched, deadLetterRepo)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	encounter.NewHTTPHandler(encounters, cfg.MaxRequestBody).Register(api)
	report.NewHTTPHandler(reports).Register(api)
	scheduler.NewHTTPHandler(deadLetters, sched).Register(api)
	crosswalk.NewHTTPHandler(crosswalkCache).Register(api)
	pipeline.NewHTTPHandler(encounters, reports, sched).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Coding service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start coding service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down coding service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Coding service forced to shutdown")
	}

	stopWork()
	if local != nil {
		local.Drain()
	}
	if producer != nil {
		producer.Close()
	}
	database.CloseRedis()
	database.ClosePostgres()
	logger.Log.Info("Coding service stopped")
}

// sampleMetrics projects cache, queue, and dead-letter state into the
// Prometheus exposition on a fixed interval.
func sampleMetrics(ctx context.Context, every time.Duration, cache *crosswalk.Cache, sched scheduler.Scheduler, deadLetters scheduler.DeadLetterStore) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm := cache.Metrics()
			metrics.ObserveCrosswalkCache(cm.Lookups, cm.Hits, cm.Misses, cm.StoreErrors, int64(cm.Entries))

			qm := sched.Metrics()
			metrics.ObserveQueue(qm.Submitted, qm.Queued, qm.InFlight, qm.Completed, qm.Failed, qm.Workers)

			stats, err := deadLetters.Statistics(ctx)
			if err != nil {
				logger.Log.WithError(err).Debug("failed to sample dead-letter statistics")
				continue
			}
			var unresolved int64
			for _, count := range stats {
				unresolved += count
			}
			metrics.ObserveDeadLetters(unresolved)
		}
	}
}
