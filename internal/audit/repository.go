package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

const (
	// StreamName is the single stream where all audit entries live
	StreamName = "care-audit"
	// EntryEventType is the event type for audit entries
	EntryEventType = "AuditEntry"
)

// Repository defines append-only audit storage
type Repository interface {
	Initialize(ctx context.Context) error
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter ListFilter) ([]*Entry, int, error)
	ByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*Entry, error)
	VerifyChain(ctx context.Context, limit int) (*VerifyResult, error)
	LastHash() string
	Sequence() int64
}

var _ Repository = (*StreamRepository)(nil)

// StreamRepository stores audit entries in an EventStore stream. The store
// is inherently append-only, which is exactly the guarantee an audit trail
// needs.
type StreamRepository struct {
	client *esdb.Client

	mu       sync.Mutex
	lastHash string
	sequence int64
}

// NewStreamRepository creates an EventStore-backed audit repository
func NewStreamRepository(client *esdb.Client) *StreamRepository {
	return &StreamRepository{client: client}
}

// Initialize loads the chain tail (last hash and sequence) from the stream
func (r *StreamRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, err := r.client.ReadStream(ctx, StreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, 1)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			// Stream doesn't exist yet
			r.lastHash = ""
			r.sequence = 0
			return nil
		}
		return errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		r.lastHash = ""
		r.sequence = 0
		return nil
	}

	if event.Event != nil && event.Event.EventType == EntryEventType {
		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
			r.lastHash = entry.Hash
			r.sequence = entry.Sequence
		}
	}

	return nil
}

// Append links the entry into the chain and writes it to the stream
func (r *StreamRepository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	entry.Sequence = r.sequence
	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit entry")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   EntryEventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata:    []byte(fmt.Sprintf(`{"sequence":%d,"hash":"%s"}`, entry.Sequence, entry.Hash)),
	}

	_, err = r.client.AppendToStream(ctx, StreamName, esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		// Roll back the in-memory tail so the chain stays consistent
		r.sequence--
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	return nil
}

// List reads entries newest-first and applies the filter in memory
func (r *StreamRepository) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	maxEvents := uint64(1000)
	if filter.Limit > 0 {
		// Read extra to account for filtering
		maxEvents = uint64(filter.Limit + filter.Offset + 100)
	}

	stream, err := r.client.ReadStream(ctx, StreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, maxEvents)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			return []*Entry{}, 0, nil
		}
		return nil, 0, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	var entries []*Entry
	total := 0

	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event == nil || event.Event.EventType != EntryEventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
			continue
		}
		if !matches(&entry, filter) {
			continue
		}

		total++
		if filter.Offset > 0 && total <= filter.Offset {
			continue
		}
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			continue
		}

		entries = append(entries, &entry)
	}

	return entries, total, nil
}

// ByResource returns the newest entries touching one resource
func (r *StreamRepository) ByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*Entry, error) {
	entries, _, err := r.List(ctx, ListFilter{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Limit:        limit,
	})
	return entries, err
}

// VerifyChain recomputes hashes over the newest entries and checks each
// entry's prev_hash against its predecessor
func (r *StreamRepository) VerifyChain(ctx context.Context, limit int) (*VerifyResult, error) {
	if limit <= 0 {
		limit = 1000
	}

	stream, err := r.client.ReadStream(ctx, StreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, uint64(limit))
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			return &VerifyResult{Valid: true}, nil
		}
		return nil, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	var entries []*Entry
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event == nil || event.Event.EventType != EntryEventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
			entries = append(entries, &entry)
		}
	}

	return verifyEntries(entries), nil
}

// verifyEntries checks content hashes and chain linkage over entries in
// newest-first order
func verifyEntries(entries []*Entry) *VerifyResult {
	result := &VerifyResult{Valid: true, Checked: len(entries)}

	for i, entry := range entries {
		computed := entry.ComputeHash()
		if computed == entry.Hash {
			result.ContentValid++
		} else {
			result.Valid = false
			result.ContentInvalid++
			result.Violations = append(result.Violations,
				fmt.Sprintf("content tampered: entry %d hash mismatch", entry.Sequence))
		}

		// Entries are newest-first, so the predecessor is the next element
		if i < len(entries)-1 {
			prev := entries[i+1]
			if entry.PrevHash != prev.Hash {
				result.Valid = false
				result.LinkageInvalid++
				result.Violations = append(result.Violations,
					fmt.Sprintf("chain broken: entry %d prev_hash does not match entry %d", entry.Sequence, prev.Sequence))
				continue
			}
		}
		result.LinkageValid++
	}

	return result
}

// LastHash returns the tail hash of the chain
func (r *StreamRepository) LastHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHash
}

// Sequence returns the current sequence number
func (r *StreamRepository) Sequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

func matches(entry *Entry, filter ListFilter) bool {
	if filter.ActorID != nil && entry.ActorID != *filter.ActorID {
		return false
	}
	if filter.ActorType != nil && entry.ActorType != *filter.ActorType {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != nil && (entry.ResourceID == nil || *entry.ResourceID != *filter.ResourceID) {
		return false
	}
	if filter.StartTime != nil && entry.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && entry.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}
