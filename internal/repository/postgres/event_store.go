package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

type eventStore struct {
	db *sql.DB
}

// NewEventStore creates a new EventStore backed by Postgres.
func NewEventStore(db *sql.DB) repository.EventStore {
	return &eventStore{db: db}
}

func (s *eventStore) SaveEvents(ctx context.Context, streamID string, streamType string, expectedVersion int, events []entity.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendEvents(ctx, tx, streamID, streamType, expectedVersion, events, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// appendEvents writes events inside an open transaction. The (stream_id, version)
// unique key turns a lost race between two writers into a conflict.
func appendEvents(ctx context.Context, tx *sql.Tx, streamID, streamType string, expectedVersion int, events []entity.Event, now time.Time) error {
	if len(events) == 0 {
		return nil
	}

	var currentVersion int
	err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1", streamID).Scan(&currentVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get current stream version: %w", err)
	}

	if expectedVersion != repository.AnyVersion && currentVersion != expectedVersion {
		return apperror.Conflict(fmt.Sprintf("concurrency exception: expected version %d, got %d", expectedVersion, currentVersion))
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events (id, stream_id, stream_type, version, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	version := currentVersion
	for _, event := range events {
		version++

		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
		}

		if _, err := stmt.ExecContext(ctx, uuid.NewString(), streamID, streamType, version, event.EventType(), payload, now); err != nil {
			if _, ok := isUniqueViolation(err); ok {
				return apperror.Conflict(fmt.Sprintf("concurrency exception: stream %s version %d already written", streamID, version))
			}
			return fmt.Errorf("failed to insert event %s: %w", event.EventType(), err)
		}
	}
	return nil
}

func (s *eventStore) LoadEvents(ctx context.Context, streamID string) ([]entity.EventStoreRecord, error) {
	return loadEvents(ctx, s.db, streamID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadEvents(ctx context.Context, q querier, streamID string) ([]entity.EventStoreRecord, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, stream_id, stream_type, version, event_type, payload, created_at FROM events WHERE stream_id = $1 ORDER BY version ASC", streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var events []entity.EventStoreRecord
	for rows.Next() {
		var record entity.EventStoreRecord
		if err := rows.Scan(&record.ID, &record.StreamID, &record.StreamType, &record.Version, &record.EventType, &record.Payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event record: %w", err)
		}
		events = append(events, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

func protectionEvents(st *entity.SecureTransaction) []entity.Event {
	pending := st.Uncommitted()
	out := make([]entity.Event, 0, len(pending))
	for _, e := range pending {
		out = append(out, e)
	}
	return out
}
