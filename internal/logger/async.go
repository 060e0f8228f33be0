package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from I/O with a buffered channel and a
// single drain goroutine. Records are dropped rather than blocking the
// deliberation loop when the buffer is full.
type AsyncHandler struct {
	inner   slog.Handler
	ch      chan func()
	done    *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a buffer of the given capacity.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan func(), capacity),
		done:    &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	h.done.Add(1)
	go func() {
		defer h.done.Done()
		for emit := range h.ch {
			emit()
		}
	}()
	return h
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the buffer is full. The inner
// handler is captured per record so derived handlers keep their attrs.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	inner := h.inner
	select {
	case h.ch <- func() { _ = inner.Handle(context.Background(), rec) }:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the same buffer with a derived inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), ch: h.ch, done: h.done, dropped: h.dropped}
}

// WithGroup returns a handler sharing the same buffer with a derived inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), ch: h.ch, done: h.done, dropped: h.dropped}
}

// DroppedCount returns the number of records dropped due to a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and waits for the buffer to drain.
func (h *AsyncHandler) Close() {
	close(h.ch)
	h.done.Wait()
}
