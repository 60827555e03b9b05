package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/vitalink/platform/internal/shared/types"
)

// canonicalJSON produces deterministic JSON with sorted map keys. Go maps
// iterate in random order, so hashing requires a canonical encoding.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// ActorType defines who performed an audited action
type ActorType string

const (
	ActorTypePatient  ActorType = "patient"
	ActorTypeDoctor   ActorType = "doctor"
	ActorTypeAdmin    ActorType = "admin"
	ActorTypeSystem   ActorType = "system"
	ActorTypeExternal ActorType = "external"
)

// Entry is an immutable audit log entry. Entries form a hash chain: each
// entry's hash covers its content and the previous entry's hash, so any
// later modification of the log is detectable.
type Entry struct {
	ID        types.ID  `json:"id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	ActorType ActorType `json:"actor_type"`
	ActorID   types.ID  `json:"actor_id"`
	ActorIP   string    `json:"actor_ip,omitempty"`

	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *types.ID `json:"resource_id,omitempty"`

	Changes map[string]any `json:"changes,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewEntry creates an audit entry linked to the previous chain hash
func NewEntry(actorType ActorType, actorID types.ID, action, resourceType string, resourceID *types.ID, changes map[string]any, prevHash string) *Entry {
	entry := &Entry{
		ID: types.NewID(),
		// Truncate to microseconds so the timestamp survives a storage
		// round trip with the hash intact
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prevHash,
		ActorType:    actorType,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}

	entry.Hash = entry.ComputeHash()
	return entry
}

// ComputeHash calculates the SHA-256 hash of the entry content
func (e *Entry) ComputeHash() string {
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_type":    e.ActorType,
		"actor_id":      e.ActorID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}

	if e.ResourceID != nil {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash checks the stored hash against the recomputed one
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.ComputeHash()
}

// WithRequest adds request-level context to the entry
func (e *Entry) WithRequest(ip, correlationID string) *Entry {
	e.ActorIP = ip
	e.CorrelationID = correlationID
	return e
}

// ListFilter narrows audit queries
type ListFilter struct {
	ActorID      *types.ID
	ActorType    *ActorType
	Action       string
	ResourceType string
	ResourceID   *types.ID
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
	Offset       int
}

// VerifyResult reports the outcome of a chain integrity check
type VerifyResult struct {
	Valid          bool     `json:"valid"`
	Checked        int      `json:"checked"`
	ContentValid   int      `json:"content_valid"`
	ContentInvalid int      `json:"content_invalid"`
	LinkageValid   int      `json:"linkage_valid"`
	LinkageInvalid int      `json:"linkage_invalid"`
	Violations     []string `json:"violations,omitempty"`
}

// Common audit actions
const (
	ActionLogin       = "auth.login"
	ActionLoginFailed = "auth.login_failed"

	ActionAppointmentBooked    = "appointment.booked"
	ActionAppointmentConfirmed = "appointment.confirmed"
	ActionAppointmentCancelled = "appointment.cancelled"
	ActionAppointmentCompleted = "appointment.completed"

	ActionDocumentUploaded   = "document.uploaded"
	ActionDocumentDownloaded = "document.downloaded"

	ActionMRNAccessed    = "sensitive.mrn_accessed"
	ActionRecordExported = "sensitive.record_exported"
)
