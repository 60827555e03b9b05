package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

// Handler provides HTTP handlers for reading the audit trail
type Handler struct {
	repo Repository
}

// NewHandler creates a new audit handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the audit routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListEntries)
	r.Get("/verify", h.VerifyChain)
	r.Get("/resource/{resourceType}/{resourceID}", h.EntriesByResource)

	return r
}

// ListEntries lists audit entries, newest first
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": total,
	})
}

// VerifyChain checks hash-chain integrity over the newest entries
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	limit := 1000
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	result, err := h.repo.VerifyChain(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// EntriesByResource returns the audit history of one resource
func (h *Handler) EntriesByResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")

	resourceID, err := types.ParseID(chi.URLParam(r, "resourceID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid resource id"))
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.repo.ByResource(r.Context(), resourceType, resourceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func parseFilter(r *http.Request) (ListFilter, error) {
	filter := ListFilter{}
	q := r.URL.Query()

	if a := q.Get("actor_id"); a != "" {
		id, err := types.ParseID(a)
		if err != nil {
			return filter, errors.BadRequest("invalid actor_id")
		}
		filter.ActorID = &id
	}
	if a := q.Get("actor_type"); a != "" {
		actorType := ActorType(a)
		filter.ActorType = &actorType
	}
	filter.Action = q.Get("action")
	filter.ResourceType = q.Get("resource_type")
	if v := q.Get("resource_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			return filter, errors.BadRequest("invalid resource_id")
		}
		filter.ResourceID = &id
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.BadRequest("invalid start time")
		}
		filter.StartTime = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.BadRequest("invalid end time")
		}
		filter.EndTime = &t
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
