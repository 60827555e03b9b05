package notification

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes reminder delivery stats
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the notification routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.GetStats)

	return r
}

// GetStats returns delivery counters for the reminder service
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"stats":   stats,
		"pending": h.service.Pending(),
	})
}
