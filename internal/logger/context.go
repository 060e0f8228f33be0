package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// deliberationIDKey is the context key for the current deliberation ID.
var deliberationIDKey = contextKey{}

// WithDeliberationID returns a new context with the deliberation ID stored.
func WithDeliberationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliberationIDKey, id)
}

// DeliberationID extracts the deliberation ID from the context.
// Returns an empty string if none is set.
func DeliberationID(ctx context.Context) string {
	id, _ := ctx.Value(deliberationIDKey).(string)
	return id
}
