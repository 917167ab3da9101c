package sshtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Event is something observable that happened on a test server, such
// as a connection opening or an authentication attempt.
type Event struct {
	ID        string
	Timestamp time.Time
	Attrs     map[string]string
}

// Matches checks if this event has the given ID and carries every
// key-value pair in attrs.
func (e Event) Matches(id string, attrs ...string) bool {
	if e.ID != id || len(attrs)%2 != 0 {
		return false
	}
	for i := 0; i < len(attrs); i += 2 {
		if e.Attrs[attrs[i]] != attrs[i+1] {
			return false
		}
	}
	return true
}

func (e Event) String() string {
	if len(e.Attrs) == 0 {
		return e.ID
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + e.Attrs[k]
	}
	return e.ID + "{" + strings.Join(pairs, ", ") + "}"
}

// EventBus collects and queries events.
type EventBus struct {
	mu      sync.Mutex
	events  []Event
	changed chan struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{changed: make(chan struct{})}
}

// Emit records an event. Attrs are key-value pairs.
func (eb *EventBus) Emit(id string, attrs ...string) {
	event := Event{
		ID:        id,
		Timestamp: time.Now(),
		Attrs:     make(map[string]string, len(attrs)/2),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		event.Attrs[attrs[i]] = attrs[i+1]
	}
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	// wake every waiter
	close(eb.changed)
	eb.changed = make(chan struct{})
	eb.mu.Unlock()
}

// Wait blocks until a matching event is recorded, for up to 10 seconds.
func (eb *EventBus) Wait(id string, attrs ...string) (Event, error) {
	return eb.WaitTimeout(10*time.Second, id, attrs...)
}

// WaitTimeout waits with a specific timeout.
func (eb *EventBus) WaitTimeout(timeout time.Duration, id string, attrs ...string) (Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return eb.WaitContext(ctx, id, attrs...)
}

// WaitContext waits until a matching event is recorded or ctx is done.
func (eb *EventBus) WaitContext(ctx context.Context, id string, attrs ...string) (Event, error) {
	for {
		eb.mu.Lock()
		event, found := eb.findLocked(id, attrs)
		changed := eb.changed
		eb.mu.Unlock()
		if found {
			return event, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, fmt.Errorf("timeout waiting for event %q: %w", id, ctx.Err())
		case <-changed:
		}
	}
}

// Find returns the first matching event.
func (eb *EventBus) Find(id string, attrs ...string) (Event, bool) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.findLocked(id, attrs)
}

func (eb *EventBus) findLocked(id string, attrs []string) (Event, bool) {
	for _, event := range eb.events {
		if event.Matches(id, attrs...) {
			return event, true
		}
	}
	return Event{}, false
}

// FindAll returns every matching event.
func (eb *EventBus) FindAll(id string, attrs ...string) []Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	var result []Event
	for _, event := range eb.events {
		if event.Matches(id, attrs...) {
			result = append(result, event)
		}
	}
	return result
}

// All returns all events.
func (eb *EventBus) All() []Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return append([]Event(nil), eb.events...)
}

// Count returns the number of events.
func (eb *EventBus) Count() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Has checks if a matching event exists.
func (eb *EventBus) Has(id string, attrs ...string) bool {
	_, found := eb.Find(id, attrs...)
	return found
}
