package event

import (
	"sync"
	"time"

	"github.com/councild/councild/internal/domain"
)

// Log is the append-only event log for one deliberation instance.
//
// Append is the only mutation primitive; every other component either
// projects state from the log or produces events for it. Sequence numbers
// start at 0 and increase by one per append; replay order equals append
// order. The log is safe for concurrent readers, but the append path is
// serialized: a deliberation has a single logical writer.
type Log struct {
	mu     sync.RWMutex
	events []Event
	closed bool
	now    func() time.Time // for testing
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append assigns the next sequence number and timestamp to ev and stores it.
// Returns domain.ErrConcludedDeliberation if a terminal event already exists;
// events produced by calls still in flight at conclusion are discarded here,
// never folded.
func (l *Log) Append(ev Event) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, domain.ErrConcludedDeliberation
	}

	ev.Seq = uint64(len(l.events))
	ev.CreatedAt = l.now()
	l.events = append(l.events, ev)

	if ev.Kind.Terminal() {
		l.closed = true
	}
	return ev.Seq, nil
}

// Read returns a copy of all events with sequence number >= from, in order.
func (l *Log) Read(from uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from >= uint64(len(l.events)) {
		return nil
	}
	out := make([]Event, len(l.events)-int(from))
	copy(out, l.events[from:])
	return out
}

// All returns a copy of the full event sequence.
func (l *Log) All() []Event {
	return l.Read(0)
}

// Len returns the number of appended events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Concluded reports whether a terminal event has been appended.
func (l *Log) Concluded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}
