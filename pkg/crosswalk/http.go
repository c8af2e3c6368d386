package crosswalk

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	cache *Cache
}

func NewHTTPHandler(cache *Cache) *HTTPHandler {
	return &HTTPHandler{cache: cache}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/crosswalk/metrics", h.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/crosswalk/invalidate", h.handleInvalidate).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.cache.Metrics())
}

func (h *HTTPHandler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	h.cache.Invalidate()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "invalidated"})
}
