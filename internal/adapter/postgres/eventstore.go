package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/councild/councild/internal/domain/event"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
// The (deliberation_id, seq) primary key makes replayed appends idempotent
// failures rather than silent duplicates.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts one event into the deliberation_events table.
func (s *EventStore) Append(ctx context.Context, deliberationID string, ev event.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deliberation_events (deliberation_id, seq, round, role_id, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		deliberationID, ev.Seq, ev.Round, nullIfEmpty(ev.RoleID), string(ev.Kind), ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event seq %d: %w", ev.Seq, err)
	}
	return nil
}

// Load returns all events of a deliberation ordered by sequence ascending.
func (s *EventStore) Load(ctx context.Context, deliberationID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, round, COALESCE(role_id, ''), kind, payload, created_at
		 FROM deliberation_events WHERE deliberation_id = $1 ORDER BY seq ASC`,
		deliberationID)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", deliberationID, err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		if err := rows.Scan(&ev.Seq, &ev.Round, &ev.RoleID, &ev.Kind, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
