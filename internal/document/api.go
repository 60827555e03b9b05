package document

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/auth"
	"github.com/vitalink/platform/internal/shared/config"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/events"
	"github.com/vitalink/platform/internal/shared/metrics"
	"github.com/vitalink/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the document module
type Handler struct {
	repo   *Repository
	bus    *events.Bus
	upload config.UploadConfig
	clock  func() time.Time
}

// NewHandler creates a new document handler
func NewHandler(repo *Repository, bus *events.Bus, upload config.UploadConfig, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{repo: repo, bus: bus, upload: upload, clock: clock}
}

// Routes registers the document routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListDocuments)
	r.Post("/", h.UploadDocument)
	r.Get("/by-day", h.DocumentsByDay)

	r.Route("/{documentID}", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Patch("/", h.UpdateDocument)
		r.Delete("/", h.DeleteDocument)

		r.Post("/versions", h.UploadVersion)
		r.Get("/download", h.Download)
	})

	return r
}

// ListDocuments lists documents matching query filters
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	documents, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  documents,
		"total": total,
	})
}

// DocumentsByDay returns documents grouped by date, newest day first,
// the shape the record browser renders directly
func (h *Handler) DocumentsByDay(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	documents, _, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	groups := schedule.GroupByDay(documents, schedule.Options{
		Order: schedule.OrderDescending,
	}, h.clock())

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  groups,
		"total": len(documents),
	})
}

// GetDocument returns a single document with its versions
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.document(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// UploadDocument creates a document record from a multipart form carrying
// the metadata fields and the file itself
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxBytes)
	if err := r.ParseMultipartForm(h.upload.MaxBytes); err != nil {
		writeError(w, errors.BadRequest("invalid multipart form or file too large"))
		return
	}

	patientID, err := types.ParseID(r.FormValue("patient_id"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient_id"))
		return
	}

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	now := h.clock()

	d, err := New(
		patientID,
		r.FormValue("title"),
		r.FormValue("date"),
		Category(r.FormValue("category")),
		r.FormValue("doctor"),
		tags,
		now,
	)
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.storeFile(r, d, now); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Save(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	metrics.DocumentUploaded(string(d.Category))
	h.publish(r, "document.uploaded", map[string]any{
		"document_id": d.ID,
		"patient_id":  d.PatientID,
		"category":    d.Category,
		"version":     d.CurrentVersion,
	})

	writeJSON(w, http.StatusCreated, d)
}

// UploadVersion appends a new file version to an existing document
func (h *Handler) UploadVersion(w http.ResponseWriter, r *http.Request) {
	d, err := h.document(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxBytes)
	if err := r.ParseMultipartForm(h.upload.MaxBytes); err != nil {
		writeError(w, errors.BadRequest("invalid multipart form or file too large"))
		return
	}

	now := h.clock()
	if err := h.storeFile(r, d, now); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Update(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	metrics.DocumentUploaded(string(d.Category))
	h.publish(r, "document.version_added", map[string]any{
		"document_id": d.ID,
		"patient_id":  d.PatientID,
		"version":     d.CurrentVersion,
	})

	writeJSON(w, http.StatusCreated, d)
}

type updateDocumentRequest struct {
	Title  string   `json:"title"`
	Doctor string   `json:"doctor"`
	Tags   []string `json:"tags"`
}

// UpdateDocument changes the descriptive fields, leaving versions alone
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.document(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := d.Retitle(req.Title, req.Doctor, req.Tags, h.clock()); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// DeleteDocument removes a document, its versions, and the stored files
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.document(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Delete(r.Context(), d.ID); err != nil {
		writeError(w, err)
		return
	}

	for _, v := range d.Versions {
		if err := os.Remove(v.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to remove stored file %s: %v", v.FilePath, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// Download streams the latest version's file
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	d, err := h.document(r)
	if err != nil {
		writeError(w, err)
		return
	}

	latest := d.Latest()
	if latest == nil {
		writeError(w, errors.NotFound("document file", d.ID.String()))
		return
	}

	w.Header().Set("Content-Type", latest.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(latest.FilePath)))
	http.ServeFile(w, r, latest.FilePath)
}

// storeFile writes the multipart "file" part to the upload directory and
// records it as a new document version
func (h *Handler) storeFile(r *http.Request, d *Document, now time.Time) error {
	file, header, err := r.FormFile("file")
	if err != nil {
		return errors.BadRequest("file is required")
	}
	defer file.Close()

	if err := os.MkdirAll(h.upload.Dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create upload directory")
	}

	name := fmt.Sprintf("%s-v%d%s", d.ID, d.CurrentVersion+1, filepath.Ext(header.Filename))
	path := filepath.Join(h.upload.Dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to store file")
	}
	defer dst.Close()

	size, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(path)
		return errors.Wrap(err, "failed to store file")
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// Re-read from the start so AddVersion hashes the full contents
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		os.Remove(path)
		return errors.Wrap(err, "failed to rewind upload")
	}
	if _, err := d.AddVersion(path, mimeType, size, file, now); err != nil {
		os.Remove(path)
		return errors.Wrap(err, "failed to record version")
	}

	return nil
}

func (h *Handler) document(r *http.Request) (*Document, error) {
	id, err := types.ParseID(chi.URLParam(r, "documentID"))
	if err != nil {
		return nil, errors.BadRequest("invalid document id")
	}
	return h.repo.FindByID(r.Context(), id)
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "document", data)
	if user := auth.GetUser(r.Context()); user != nil {
		event = event.WithActor(user.ID, user.Role)
	} else {
		event = event.WithActor("", "system")
	}

	if err := h.bus.Publish(r.Context(), event); err != nil {
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
	if c := q.Get("category"); c != "" {
		category := Category(c)
		if !ValidCategory(category) {
			return filter, errors.BadRequest("unknown category")
		}
		filter.Category = &category
	}
	filter.Doctor = q.Get("doctor")
	filter.Tag = q.Get("tag")
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
