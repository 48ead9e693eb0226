package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

type eventStore struct{ s *Store }

func (e *eventStore) SaveEvents(_ context.Context, streamID string, streamType string, expectedVersion int, events []entity.Event) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.s.appendEventsLocked(streamID, streamType, expectedVersion, events, e.s.clock.Now())
}

func (e *eventStore) LoadEvents(_ context.Context, streamID string) ([]entity.EventStoreRecord, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	return slices.Clone(e.s.events[streamID]), nil
}

func (s *Store) appendEventsLocked(streamID, streamType string, expectedVersion int, events []entity.Event, now time.Time) error {
	if len(events) == 0 {
		return nil
	}
	stream := s.events[streamID]
	current := 0
	if n := len(stream); n > 0 {
		current = stream[n-1].Version
	}
	if expectedVersion != repository.AnyVersion && current != expectedVersion {
		return apperror.Conflict(fmt.Sprintf("concurrency exception: expected version %d, got %d", expectedVersion, current))
	}

	records := make([]entity.EventStoreRecord, 0, len(events))
	version := current
	for _, event := range events {
		version++
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
		}
		records = append(records, entity.EventStoreRecord{
			ID:         uuid.NewString(),
			StreamID:   streamID,
			StreamType: streamType,
			Version:    version,
			EventType:  event.EventType(),
			Payload:    payload,
			CreatedAt:  now,
		})
	}
	s.events[streamID] = append(stream, records...)
	return nil
}

func protectionEvents(st *entity.SecureTransaction) []entity.Event {
	pending := st.Uncommitted()
	out := make([]entity.Event, 0, len(pending))
	for _, e := range pending {
		out = append(out, e)
	}
	return out
}
