package appointment

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/auth"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/events"
	"github.com/vitalink/platform/internal/shared/metrics"
	"github.com/vitalink/platform/internal/shared/types"
)

// Clock supplies the current time; injected so grouped views are testable
type Clock func() time.Time

// Handler provides HTTP handlers for the appointment module
type Handler struct {
	repo  *Repository
	bus   *events.Bus
	clock Clock
}

// NewHandler creates a new appointment handler
func NewHandler(repo *Repository, bus *events.Bus, clock Clock) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{repo: repo, bus: bus, clock: clock}
}

// Routes registers the appointment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAppointments)
	r.Post("/", h.CreateAppointment)
	r.Get("/upcoming", h.UpcomingAppointments)
	r.Get("/history", h.AppointmentHistory)

	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.GetAppointment)
		r.Delete("/", h.DeleteAppointment)

		r.Post("/confirm", h.ConfirmAppointment)
		r.Post("/reschedule", h.RescheduleAppointment)
		r.Post("/cancel", h.CancelAppointment)
		r.Post("/complete", h.CompleteAppointment)

		r.Get("/timeline", h.GetTimeline)
	})

	return r
}

// ListAppointments lists appointments with filters
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	appointments, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  appointments,
		"total": total,
	})
}

// UpcomingAppointments returns appointments from today forward, grouped by
// date ascending with Today/Tomorrow labels
func (h *Handler) UpcomingAppointments(w http.ResponseWriter, r *http.Request) {
	now := h.clock()

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter.FromDate = schedule.FormatDay(now)

	appointments, _, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	groups := schedule.GroupByDay(appointments, schedule.Options{
		From:  &now,
		Order: schedule.OrderAscending,
	}, now)

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  groups,
		"total": len(appointments),
	})
}

// AppointmentHistory returns past appointments grouped by date descending
func (h *Handler) AppointmentHistory(w http.ResponseWriter, r *http.Request) {
	now := h.clock()

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter.ToDate = schedule.FormatDay(now.AddDate(0, 0, -1))

	appointments, _, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	groups := schedule.GroupByDay(appointments, schedule.Options{
		Order: schedule.OrderDescending,
	}, now)

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  groups,
		"total": len(appointments),
	})
}

// GetAppointment gets an appointment by ID
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// CreateAppointment books a new appointment
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	a, err := New(req.PatientID, req.DoctorID, req.Date, req.Time, req.PatientAge, req.Reason, req.PreviousVisit, h.clock())
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Save(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	metrics.AppointmentBooked("api")
	h.publish(r, "appointment.booked", map[string]any{
		"appointment_id": a.ID,
		"patient_id":     a.PatientID,
		"doctor_id":      a.DoctorID,
		"date":           a.VisitDate,
		"time":           a.VisitTime,
	})

	writeJSON(w, http.StatusCreated, a)
}

// ConfirmAppointment confirms a scheduled appointment
func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := a.Confirm(h.actor(r), h.clock()); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	metrics.AppointmentStatusChanged(string(StatusScheduled), string(StatusConfirmed))
	h.publish(r, "appointment.confirmed", map[string]any{"appointment_id": a.ID})

	writeJSON(w, http.StatusOK, a)
}

// RescheduleAppointment moves an appointment to a new slot
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	from := string(a.Status)
	if err := a.Reschedule(req.Date, req.Time, h.actor(r), h.clock()); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	metrics.AppointmentStatusChanged(from, string(StatusScheduled))
	h.publish(r, "appointment.rescheduled", map[string]any{
		"appointment_id": a.ID,
		"date":           a.VisitDate,
		"time":           a.VisitTime,
	})

	writeJSON(w, http.StatusOK, a)
}

// CancelAppointment cancels an appointment
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	from := string(a.Status)
	if err := a.Cancel(h.actor(r), req.Reason, h.clock()); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	metrics.AppointmentStatusChanged(from, string(StatusCancelled))
	h.publish(r, "appointment.cancelled", map[string]any{
		"appointment_id": a.ID,
		"reason":         req.Reason,
	})

	writeJSON(w, http.StatusOK, a)
}

// CompleteAppointment marks a visit completed, recording any prescription
func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	var prescription *Prescription
	if req.Symptoms != "" || req.PrimaryDiagnosis != "" {
		prescription = &Prescription{
			Symptoms:         req.Symptoms,
			PrimaryDiagnosis: req.PrimaryDiagnosis,
		}
	}

	from := string(a.Status)
	if err := a.Complete(h.actor(r), prescription, h.clock()); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	metrics.AppointmentStatusChanged(from, string(StatusCompleted))
	h.publish(r, "appointment.completed", map[string]any{"appointment_id": a.ID})

	writeJSON(w, http.StatusOK, a)
}

// DeleteAppointment deletes an appointment
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTimeline returns an appointment's timeline
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	a, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  a.Timeline,
		"total": len(a.Timeline),
	})
}

// --- Helpers ---

func (h *Handler) load(r *http.Request) (*Appointment, error) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		return nil, errors.BadRequest("invalid appointment ID")
	}
	return h.repo.FindByID(r.Context(), id)
}

func (h *Handler) actor(r *http.Request) types.ID {
	if user := auth.GetUser(r.Context()); user != nil {
		return user.ID
	}
	return ""
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "appointment", data)
	if user := auth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID, user.Role)
	} else {
		event = event.WithActor("", "system")
	}

	if err := h.bus.Publish(r.Context(), event); err != nil {
		// Event delivery is best effort; the write already committed
		log.Printf("failed to publish %s: %v", eventType, err)
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	filter := ListFilter{}
	q := r.URL.Query()

	if p := q.Get("patient_id"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			return filter, errors.BadRequest("invalid patient_id")
		}
		filter.PatientID = &id
	}
	if d := q.Get("doctor_id"); d != "" {
		id, err := types.ParseID(d)
		if err != nil {
			return filter, errors.BadRequest("invalid doctor_id")
		}
		filter.DoctorID = &id
	}
	if s := q.Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if f := q.Get("from"); f != "" {
		if _, err := schedule.ParseDay(f); err != nil {
			return filter, errors.BadRequest(err.Error())
		}
		filter.FromDate = f
	}
	if t := q.Get("to"); t != "" {
		if _, err := schedule.ParseDay(t); err != nil {
			return filter, errors.BadRequest(err.Error())
		}
		filter.ToDate = t
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	return filter, nil
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
