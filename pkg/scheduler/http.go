package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/report"
)

type HTTPHandler struct {
	deadLetters *DeadLetterService
	scheduler   Scheduler
}

func NewHTTPHandler(deadLetters *DeadLetterService, scheduler Scheduler) *HTTPHandler {
	return &HTTPHandler{deadLetters: deadLetters, scheduler: scheduler}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/dead-letters", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/dead-letters/statistics", h.handleStatistics).Methods(http.MethodGet)
	router.HandleFunc("/dead-letters/{id}/retry", h.handleRetry).Methods(http.MethodPost)
	router.HandleFunc("/dead-letters/retry", h.handleBulkRetry).Methods(http.MethodPost)
	router.HandleFunc("/queue/metrics", h.handleQueueMetrics).Methods(http.MethodGet)
}

func filterFromQuery(r *http.Request) DeadLetterFilter {
	filter := DeadLetterFilter{Reason: r.URL.Query().Get("reason")}
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		if resolved, err := strconv.ParseBool(raw); err == nil {
			filter.Resolved = &resolved
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	return filter
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.deadLetters.ListFailed(r.Context(), filterFromQuery(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list dead letters")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

func (h *HTTPHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deadLetters.Statistics(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to load dead letter statistics")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *HTTPHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}

	if err := h.deadLetters.Retry(r.Context(), id); err != nil {
		if errors.Is(err, ErrDeadLetterNotFound) || errors.Is(err, report.ErrNotFound) {
			http.Error(w, "dead letter not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("report_id", id).Error("failed to retry dead letter")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "resubmitted"})
}

func (h *HTTPHandler) handleBulkRetry(w http.ResponseWriter, r *http.Request) {
	retried, err := h.deadLetters.BulkRetry(r.Context(), filterFromQuery(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to bulk retry dead letters")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"retried": retried})
}

func (h *HTTPHandler) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.scheduler.Metrics())
}
