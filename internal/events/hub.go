// Package events provides an in-process fanout of conversation events for
// the operator monitor.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Direction of a conversation event.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Event is one observed conversation message.
type Event struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(phone, direction, content string) Event {
	return Event{
		ID:        uuid.NewString(),
		Phone:     phone,
		Direction: direction,
		Content:   content,
		At:        time.Now(),
	}
}

// Hub fans events out to subscribers. Publishing never blocks; a slow
// subscriber drops events rather than stalling the dispatch path.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish delivers an event to all current subscribers.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the subscription.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
