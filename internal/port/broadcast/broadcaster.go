// Package broadcast defines the port for broadcasting real-time deliberation
// events to connected observers.
package broadcast

import "context"

// Broadcaster sends a typed event to all connected observers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
