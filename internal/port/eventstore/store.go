// Package eventstore defines the port for durable, replayable persistence
// of deliberation events.
package eventstore

import (
	"context"

	"github.com/councild/councild/internal/domain/event"
)

// Store persists the ordered event sequence of a deliberation so that its
// derived state can be reconstructed exactly by replay. The in-memory log
// remains the source of truth during a run; the store is an append-through
// collaborator.
type Store interface {
	// Append persists one event for the given deliberation.
	Append(ctx context.Context, deliberationID string, ev event.Event) error

	// Load returns all events for the given deliberation, ordered by
	// sequence number ascending.
	Load(ctx context.Context, deliberationID string) ([]event.Event, error)
}
