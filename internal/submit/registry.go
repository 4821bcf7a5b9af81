package submit

import (
	"fmt"
	"sync"
)

// EventRegistry routes commit events to per-transaction channels. Channels
// are buffered so a publisher never blocks on a slow or absent waiter.
type EventRegistry struct {
	mu       sync.Mutex
	channels map[string]chan CommitEvent
}

// NewEventRegistry returns an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{channels: make(map[string]chan CommitEvent)}
}

// Register reserves a delivery channel for txID. Registering an id that is
// already registered fails, which catches transaction id reuse.
func (r *EventRegistry) Register(txID string) (<-chan CommitEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[txID]; ok {
		return nil, fmt.Errorf("transaction %s already registered", txID)
	}
	ch := make(chan CommitEvent, 1)
	r.channels[txID] = ch
	return ch, nil
}

// Deregister releases the channel for txID. Calling it for an unknown or
// already released id is a no-op.
func (r *EventRegistry) Deregister(txID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, txID)
}

// Publish delivers the event to the channel registered for its transaction
// id, if any. Events for unregistered ids are dropped.
func (r *EventRegistry) Publish(ev CommitEvent) {
	r.mu.Lock()
	ch, ok := r.channels[ev.TxID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
