package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitalink/platform/internal/shared/events"
	"github.com/vitalink/platform/internal/shared/types"
)

// Subscriber mirrors domain events into the audit trail
type Subscriber struct {
	repo Repository
	bus  *events.Bus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo Repository, bus *events.Bus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to every event family the platform emits
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []string{
		"appointment.*",
		"booking.*",
		"document.*",
		"patient.*",
		"auth.*",
	}

	for _, pattern := range patterns {
		if err := s.bus.Subscribe(ctx, pattern, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// eventToEntry converts a domain event to an audit entry. The repository
// assigns sequence, prev_hash, and hash on append.
func eventToEntry(event events.Event) *Entry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}
	resourceType := parts[0]

	var resourceID *types.ID
	var changes map[string]any
	if data, ok := event.Data.(map[string]any); ok {
		changes = data
		for _, field := range []string{resourceType + "_id", "id"} {
			if idVal, ok := data[field]; ok {
				switch v := idVal.(type) {
				case string:
					id := types.ID(v)
					resourceID = &id
				case types.ID:
					resourceID = &v
				}
				if resourceID != nil {
					break
				}
			}
		}
	}

	actorType := ActorTypeSystem
	switch event.ActorRole {
	case "patient":
		actorType = ActorTypePatient
	case "doctor":
		actorType = ActorTypeDoctor
	case "admin":
		actorType = ActorTypeAdmin
	case "external":
		actorType = ActorTypeExternal
	}

	return &Entry{
		ID:            types.NewID(),
		Timestamp:     event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:     actorType,
		ActorID:       event.ActorID,
		Action:        event.Type,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Changes:       changes,
		CorrelationID: event.CorrelationID,
	}
}
