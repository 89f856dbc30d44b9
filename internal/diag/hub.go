// Package diag carries diagnostic events from the core to at most one host subscriber.
//
// A Hub is an explicit value owned by whoever wires the application; nothing
// here is process-global. Subscribe installs the single active sink and
// replaces any earlier one. Registration and emission share one mutex, so a
// sink never receives an event after its subscription was replaced or closed.
package diag

import (
	"sync"
	"time"
)

// Event is one diagnostic record.
type Event struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Sink receives events. It runs with the hub lock held and must not block
// or call back into the hub.
type Sink func(Event)

// Hub is a single-producer, single-consumer push channel.
type Hub struct {
	mu      sync.Mutex
	current *Subscription
}

// NewHub creates a hub without a subscriber.
func NewHub() *Hub {
	return &Hub{}
}

// Subscription is a scoped registration. Close releases it deterministically.
type Subscription struct {
	hub  *Hub
	sink Sink
	done chan struct{}
	once sync.Once
}

// Subscribe installs sink as the only subscriber, ending any previous subscription.
func (h *Hub) Subscribe(sink Sink) *Subscription {
	s := &Subscription{hub: h, sink: sink, done: make(chan struct{})}

	h.mu.Lock()
	prev := h.current
	h.current = s
	h.mu.Unlock()

	if prev != nil {
		prev.finish()
	}
	return s
}

// Emit delivers e to the active subscriber, if any.
func (h *Hub) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		h.current.sink(e)
	}
}

// Active reports whether a subscriber is registered.
func (h *Hub) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Close unregisters the subscription. It is a no-op when already replaced.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	if s.hub.current == s {
		s.hub.current = nil
	}
	s.hub.mu.Unlock()
	s.finish()
}

// Done is closed once the subscription is closed or replaced.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) finish() {
	s.once.Do(func() { close(s.done) })
}
