package booking

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vitalink/platform/internal/appointment"
	"github.com/vitalink/platform/internal/shared/auth"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/events"
	"github.com/vitalink/platform/internal/shared/metrics"
	"github.com/vitalink/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the booking wizard
type Handler struct {
	store        *Store
	appointments *appointment.Repository
	bus          *events.Bus
	clock        func() time.Time
}

// NewHandler creates a new booking handler
func NewHandler(store *Store, appointments *appointment.Repository, bus *events.Bus, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{store: store, appointments: appointments, bus: bus, clock: clock}
}

// Routes registers the booking wizard routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StartSession)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/next", h.NextStep)
		r.Post("/previous", h.PreviousStep)
		r.Post("/submit", h.Submit)
	})

	return r
}

type startSessionRequest struct {
	PatientID types.ID `json:"patient_id"`
}

// StartSession opens a new wizard session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	// Patients book for themselves; the token wins over the body
	if user := auth.GetUser(r.Context()); user != nil && !user.PatientID.IsZero() {
		req.PatientID = user.PatientID
	}

	session, err := h.store.Create(req.PatientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GetSession returns the current wizard state
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// NextStep applies the current step's fields and advances on success
func (h *Handler) NextStep(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload StepPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	session, fieldErrors, err := h.store.Advance(id, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if fieldErrors != nil {
		writeError(w, errors.Validation("step validation failed", fieldErrors))
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// PreviousStep moves back one step, keeping everything entered so far
func (h *Handler) PreviousStep(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.store.StepBack(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Submit validates the payment step and books the appointment. The store
// runs the submit atomically, so submitting again (or concurrently) returns
// the original appointment instead of creating another.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload StepPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	var a *appointment.Appointment
	session, created, fieldErrors, err := h.store.Submit(id, payload, func(s *Session) (types.ID, error) {
		appt, err := appointment.New(
			s.PatientID,
			s.Details.DoctorID,
			s.Details.Date,
			s.Details.Time,
			s.PatientAge(),
			s.Details.Reason,
			s.Medical.PreviousVisit,
			h.clock(),
		)
		if err != nil {
			metrics.WizardSubmission("invalid")
			return "", errors.BadRequest(err.Error())
		}

		if err := h.appointments.Save(r.Context(), appt); err != nil {
			metrics.WizardSubmission("failed")
			return "", err
		}

		a = appt
		return appt.ID, nil
	})
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok && appErr.Code == "CONFLICT" {
			metrics.WizardSubmission("rejected")
		}
		writeError(w, err)
		return
	}
	if fieldErrors != nil {
		metrics.WizardSubmission("invalid")
		writeError(w, errors.Validation("step validation failed", fieldErrors))
		return
	}

	if !created {
		writeJSON(w, http.StatusOK, map[string]any{
			"session":        session,
			"appointment_id": session.AppointmentID,
		})
		return
	}

	metrics.WizardSubmission("booked")
	metrics.AppointmentBooked("wizard")

	h.publish(r, "booking.completed", map[string]any{
		"session_id":     session.ID,
		"appointment_id": a.ID,
		"patient_id":     a.PatientID,
		"doctor_id":      a.DoctorID,
		"date":           a.VisitDate,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"session":        session,
		"appointment_id": a.ID,
	})
}

func sessionID(r *http.Request) (types.ID, error) {
	id, err := types.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		return "", errors.BadRequest("invalid session id")
	}
	return id, nil
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "booking", data)
	if user := auth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID, user.Role)
	} else {
		event = event.WithActor("", "system")
	}

	if err := h.bus.Publish(r.Context(), event); err != nil {
		log.Printf("failed to publish %s: %v", eventType, err)
	}
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
