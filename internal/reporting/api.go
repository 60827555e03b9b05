package reporting

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vitalink/platform/internal/appointment"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/metrics"
)

// Clock supplies the current time for the rolling aggregation windows
type Clock func() time.Time

// Handler provides HTTP handlers for reporting dashboards
type Handler struct {
	appointments *appointment.Repository
	clock        Clock
}

// NewHandler creates a new reporting handler
func NewHandler(appointments *appointment.Repository, clock Clock) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{appointments: appointments, clock: clock}
}

// Routes registers the reporting routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/dashboard", h.GetDashboard)
	return r
}

// GetDashboard aggregates the rolling-year appointment data into the
// dashboard statistics
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	cutoff := now.AddDate(-1, 0, 0)

	records, err := h.appointments.ListCreatedSince(r.Context(), cutoff)
	if err != nil {
		writeError(w, err)
		return
	}

	dashboard := Aggregate(records, now)
	metrics.ReportGenerated()

	writeJSON(w, http.StatusOK, dashboard)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
