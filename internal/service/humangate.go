package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/councild/councild/internal/domain"
	"github.com/councild/councild/internal/port/humandecision"
)

// ---------------------------------------------------------------------------
// syncWaiter — generic correlation-ID-based waiter
// ---------------------------------------------------------------------------

// syncWaiter manages a set of channel-based waiters keyed by correlation ID.
type syncWaiter[T any] struct {
	mu      sync.Mutex
	waiters map[string]chan *T
	label   string // for logging
}

func newSyncWaiter[T any](label string) *syncWaiter[T] {
	return &syncWaiter[T]{
		waiters: make(map[string]chan *T),
		label:   label,
	}
}

// register creates a buffered channel for the given ID.
func (w *syncWaiter[T]) register(id string) chan *T {
	ch := make(chan *T, 1)
	w.mu.Lock()
	w.waiters[id] = ch
	w.mu.Unlock()
	return ch
}

// unregister removes the waiter for the given ID.
func (w *syncWaiter[T]) unregister(id string) {
	w.mu.Lock()
	delete(w.waiters, id)
	w.mu.Unlock()
}

// deliver sends a result to the waiting channel and removes the waiter.
// Returns false if no waiter was registered for the given ID.
func (w *syncWaiter[T]) deliver(id string, payload *T) bool {
	w.mu.Lock()
	ch, ok := w.waiters[id]
	if ok {
		delete(w.waiters, id)
	}
	w.mu.Unlock()

	if !ok {
		slog.Warn("no waiter for "+w.label, "id", id)
		return false
	}

	ch <- payload
	return true
}

// ---------------------------------------------------------------------------
// HumanGate — the human decision source
// ---------------------------------------------------------------------------

// HumanGate implements humandecision.Source by suspending one deliberation
// per waiter until an external surface (HTTP handler, NATS subscriber)
// delivers a decision. Each wait is independent, so a blocked deliberation
// never stalls the others.
type HumanGate struct {
	waiters *syncWaiter[humandecision.Response]
}

// NewHumanGate creates a HumanGate.
func NewHumanGate() *HumanGate {
	return &HumanGate{waiters: newSyncWaiter[humandecision.Response]("human decision")}
}

// Await blocks until a decision is delivered for the deliberation, the
// timeout window closes, or the context is cancelled.
func (g *HumanGate) Await(ctx context.Context, deliberationID string, timeout time.Duration) (*humandecision.Response, error) {
	ch := g.waiters.register(deliberationID)
	defer g.waiters.unregister(deliberationID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return nil, domain.ErrHumanDecisionTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers a decision to a waiting deliberation. Returns false if
// the deliberation is not awaiting a human decision.
func (g *HumanGate) Resolve(deliberationID string, resp *humandecision.Response) bool {
	if resp == nil || !resp.Decision.Valid() {
		return false
	}
	return g.waiters.deliver(deliberationID, resp)
}
