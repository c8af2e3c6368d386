package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
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
	logger.Init("coding-worker")
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

	redisClient := database.GetRedis()
	statusCache := report.NewRedisStatusCache(redisClient, cfg.StatusSnapshotTTL)

	reports := report.NewService(reportRepo, statusCache)
	encounters := encounter.NewService(encounterRepo)

	crosswalkCache := crosswalk.NewCache(crosswalkRepo, cfg.CrosswalkCacheCapacity)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := crosswalkCache.Warm(warmCtx, cfg.CrosswalkWarmCount); err != nil {
		logger.Log.WithError(err).Warn("crosswalk cache warmup failed, starting cold")
	}
	warmCancel()

	extractor := extraction.NewClient(cfg.ExtractionBaseURL, cfg.ExtractionTimeout)
	suggester := suggestion.NewClient(cfg.SuggestionBaseURL, cfg.SuggestionAPIKey, cfg.SuggestionModel, cfg.SuggestionTimeout, cfg.RefinementTimeout)

	orchestrator := pipeline.NewOrchestrator(reports, encounters, extractor, suggester, crosswalkCache, pipeline.Options{
		ReferenceConfidenceFloor: cfg.ReferenceConfidenceFloor,
		ProcedureMatchThreshold:  cfg.ProcedureMatchThreshold,
		DiagnosisMatchThreshold:  cfg.DiagnosisMatchThreshold,
		CrosswalkMinConfidence:   cfg.CrosswalkMinConfidence,
	})
	coordinator := scheduler.NewCoordinator(reports, deadLetterRepo, orchestrator, cfg.MaxRetries, cfg.RetryBaseDelay)

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	lease := scheduler.NewRedisLease(redisClient, workerID, cfg.InFlightLeaseTTL)

	consumer := kafka.NewConsumer(cfg.CodingTopic, cfg.KafkaGroupID)
	worker := scheduler.NewWorker(consumer, coordinator, lease, cfg.WorkerConcurrency)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"worker_id": workerID,
			"topic":     cfg.CodingTopic,
			"workers":   cfg.WorkerConcurrency,
		}).Info("Coding worker consuming")
		if err := worker.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Log.WithError(err).Fatal("worker consume loop failed")
		}
	}()

	go sampleMetrics(runCtx, cfg.MetricsSampleEvery, crosswalkCache, worker, deadLetterRepo)

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

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start worker http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down coding worker...")
	stop()
	consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Coding worker forced to shutdown")
	}
	database.CloseRedis()
	database.ClosePostgres()
	logger.Log.Info("Coding worker stopped")
}

func sampleMetrics(ctx context.Context, every time.Duration, cache *crosswalk.Cache, worker *scheduler.Worker, deadLetters scheduler.DeadLetterStore) {
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

			qm := worker.Metrics()
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
