package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/types"
)

// Category classifies a medical document
type Category string

const (
	CategoryLabResult    Category = "lab_result"
	CategoryPrescription Category = "prescription"
	CategoryImaging      Category = "imaging"
	CategoryVisitSummary Category = "visit_summary"
	CategoryReferral     Category = "referral"
	CategoryOther        Category = "other"
)

// ValidCategory reports whether c is a known category
func ValidCategory(c Category) bool {
	switch c {
	case CategoryLabResult, CategoryPrescription, CategoryImaging,
		CategoryVisitSummary, CategoryReferral, CategoryOther:
		return true
	}
	return false
}

// Document is a dated medical record belonging to a patient. The file
// contents live on disk; each upload becomes an immutable version.
type Document struct {
	ID        types.ID `json:"id"`
	PatientID types.ID `json:"patient_id"`

	Title    string   `json:"title"`
	DocDate  string   `json:"date"` // YYYY-MM-DD
	Category Category `json:"category"`
	Doctor   string   `json:"doctor,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	CurrentVersion int       `json:"current_version"`
	Versions       []Version `json:"versions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Day returns the document's date for day grouping
func (d *Document) Day() string { return d.DocDate }

// TimeOfDay is always empty; documents carry no intra-day ordering
func (d *Document) TimeOfDay() string { return "" }

// Version is one immutable upload of a document's file
type Version struct {
	ID         types.ID  `json:"id"`
	DocumentID types.ID  `json:"document_id"`
	Version    int       `json:"version"`
	FilePath   string    `json:"file_path"`
	FileHash   string    `json:"file_hash"` // hex SHA-256 of the contents
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// New creates a document record with no versions yet
func New(patientID types.ID, title, docDate string, category Category, doctor string, tags []string, now time.Time) (*Document, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if _, err := schedule.ParseDay(docDate); err != nil {
		return nil, err
	}
	if !ValidCategory(category) {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	if tags == nil {
		tags = []string{}
	}

	return &Document{
		ID:        types.NewID(),
		PatientID: patientID,
		Title:     title,
		DocDate:   docDate,
		Category:  category,
		Doctor:    doctor,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddVersion hashes the uploaded contents and appends a new version
func (d *Document) AddVersion(filePath, mimeType string, fileSize int64, content io.Reader, now time.Time) (*Version, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, content); err != nil {
		return nil, fmt.Errorf("failed to hash file contents: %w", err)
	}

	d.CurrentVersion++
	version := Version{
		ID:         types.NewID(),
		DocumentID: d.ID,
		Version:    d.CurrentVersion,
		FilePath:   filePath,
		FileHash:   hex.EncodeToString(hash.Sum(nil)),
		FileSize:   fileSize,
		MimeType:   mimeType,
		CreatedAt:  now,
	}

	d.Versions = append(d.Versions, version)
	d.UpdatedAt = now
	return &version, nil
}

// Latest returns the most recent version, or nil when none were uploaded
func (d *Document) Latest() *Version {
	for i := range d.Versions {
		if d.Versions[i].Version == d.CurrentVersion {
			return &d.Versions[i]
		}
	}
	return nil
}

// Retitle updates the descriptive fields without touching the file versions
func (d *Document) Retitle(title, doctor string, tags []string, now time.Time) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}

	d.Title = title
	d.Doctor = doctor
	if tags != nil {
		d.Tags = tags
	}
	d.UpdatedAt = now
	return nil
}

// ListFilter narrows document queries
type ListFilter struct {
	PatientID *types.ID
	Category  *Category
	Doctor    string
	Tag       string
	FromDate  string
	ToDate    string
	Limit     int
	Offset    int
}
