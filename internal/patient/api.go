package patient

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the patient module
type Handler struct {
	repo  *Repository
	clock func() time.Time
}

// NewHandler creates a new patient handler
func NewHandler(repo *Repository, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{repo: repo, clock: clock}
}

// Routes registers the patient routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPatients)
	r.Post("/", h.RegisterPatient)

	r.Route("/{patientID}", func(r chi.Router) {
		r.Get("/", h.GetPatient)
		r.Put("/", h.UpdatePatient)
	})

	return r
}

// ListPatients lists patients, optionally filtered by a name or MRN search
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}

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

	patients, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  patients,
		"total": total,
	})
}

// RegisterPatient creates a patient record
func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	mrn, err := types.ParseMRN(req.MRN)
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	dob, err := schedule.ParseDay(req.DateOfBirth)
	if err != nil {
		writeError(w, errors.BadRequest("invalid date of birth"))
		return
	}

	p, err := New(mrn, req.FirstName, req.LastName, dob, req.Gender, req.Contact, req.Address, h.clock())
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Save(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// GetPatient returns a single patient
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.patient(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// UpdatePatient changes a patient's demographics
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.patient(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := p.UpdateDemographics(req.FirstName, req.LastName, req.Gender, req.Contact, req.Address, h.clock()); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) patient(r *http.Request) (*Patient, error) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		return nil, errors.BadRequest("invalid patient id")
	}
	return h.repo.FindByID(r.Context(), id)
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
