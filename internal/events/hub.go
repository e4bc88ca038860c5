// Package events fans inventory changes out to live subscribers.
package events

import (
	"sync"
	"time"
)

const (
	TypeItemCreated = "item.created"
	TypeItemUpdated = "item.updated"
	TypeItemDeleted = "item.deleted"
	TypeImported    = "inventory.imported"
)

// Event is one change to the ledger.
type Event struct {
	Type           string    `json:"type"`
	ItemID         uint      `json:"item_id,omitempty"`
	CodiceArticolo string    `json:"codice_articolo,omitempty"`
	Count          int       `json:"count,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	At             time.Time `json:"at"`
}

// Hub delivers published events to every subscriber. A subscriber whose
// buffer is full misses events instead of blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close unregisters the subscriber and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Publish sends ev to all subscribers without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
