// Package events provides an in-process event hub for solve lifecycle
// notifications.
package events

import (
	"sync"
	"time"
)

const defaultBuffer = 16

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster fans events out to in-process subscribers. Sends never
// block: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel. After
// Close the returned channel is already closed.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Broadcast delivers an event to every current subscriber, stamping the
// timestamp if the caller left it zero.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Channel sends happen under the read lock. They cannot block (the
	// default arm drops instead) and Unsubscribe needs the write lock,
	// so no channel closes underneath us.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broadcaster) emit(eventType string, payload map[string]any) {
	b.Broadcast(Event{Type: eventType, Payload: payload})
}

// BroadcastSolveCompleted emits a solve completion event.
func (b *Broadcaster) BroadcastSolveCompleted(
	scheduleID, name, fingerprint string,
	makespan, attempts int,
	createdAt time.Time,
) {
	b.emit("solve.completed", map[string]any{
		"schedule_id": scheduleID,
		"name":        name,
		"fingerprint": fingerprint,
		"makespan":    makespan,
		"attempts":    attempts,
		"created_at":  createdAt.UTC().Format(time.RFC3339Nano),
	})
}

// BroadcastSolveFailed emits a solve failure event.
func (b *Broadcaster) BroadcastSolveFailed(name, reason string) {
	b.emit("solve.failed", map[string]any{
		"name":   name,
		"reason": reason,
	})
}

// BroadcastScheduleDeleted emits a schedule deletion event.
func (b *Broadcaster) BroadcastScheduleDeleted(scheduleID string) {
	b.emit("schedule.deleted", map[string]any{
		"schedule_id": scheduleID,
	})
}

// Close closes every subscriber channel. Further Broadcast calls are
// no-ops and further Subscribe calls return closed channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan Event]struct{})
}
