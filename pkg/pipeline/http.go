package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/encounter"
	"github.com/medcoder-ai/platform/pkg/report"
	"github.com/medcoder-ai/platform/pkg/scheduler"
)

// HTTPHandler exposes the submission entry point: create a report for an
// encounter and hand it to the scheduler.
type HTTPHandler struct {
	encounters *encounter.Service
	reports    *report.Service
	scheduler  scheduler.Scheduler
}

func NewHTTPHandler(encounters *encounter.Service, reports *report.Service, sched scheduler.Scheduler) *HTTPHandler {
	return &HTTPHandler{encounters: encounters, reports: reports, scheduler: sched}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/coding/submit", h.handleSubmit).Methods(http.MethodPost)
}

type submitRequest struct {
	EncounterID string `json:"encounter_id"`
}

type submitResponse struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"`
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	encounterID, err := uuid.Parse(req.EncounterID)
	if err != nil {
		http.Error(w, "invalid encounter id", http.StatusBadRequest)
		return
	}

	if _, err := h.encounters.Get(r.Context(), encounterID); err != nil {
		if errors.Is(err, encounter.ErrNotFound) {
			http.Error(w, "encounter not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load encounter for submission")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rep, err := h.reports.Create(r.Context(), encounterID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to create coding report")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.scheduler.Submit(r.Context(), rep.ID); err != nil {
		logger.Log.WithError(err).WithField("report_id", rep.ID).Error("failed to schedule coding report")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{ReportID: rep.ID.String(), Status: rep.Status})
}
