// Package hub fans out published snapshots to registered subscribers in
// registration order.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"vortexflow/internal/model"
	"vortexflow/logger"
)

// Subscriber receives each published snapshot. Callbacks run synchronously
// on the publishing goroutine and must not block.
type Subscriber func(model.MetricSnapshot)

type subscription struct {
	id string
	fn Subscriber
}

// Hub is a minimal publish/subscribe registry. Publishing with no
// subscribers is a cheap no-op.
type Hub struct {
	mu   sync.RWMutex
	subs []subscription
	last *model.MetricSnapshot
	log  *logger.Log
}

func NewHub() *Hub {
	return &Hub{log: logger.GetLogger()}
}

// Subscribe registers a callback and returns a function that removes it.
// The returned function is idempotent.
func (h *Hub) Subscribe(fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}

	id := uuid.New().String()

	h.mu.Lock()
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	count := len(h.subs)
	h.mu.Unlock()

	h.log.WithComponent("hub").WithFields(logger.Fields{
		"subscriber_id": id,
		"subscribers":   count,
	}).Debug("subscriber registered")

	return func() {
		h.unsubscribe(id)
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subs {
		if sub.id == id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the snapshot to every subscriber in registration order
// and retains it as the latest value for late joiners.
func (h *Hub) Publish(snapshot model.MetricSnapshot) {
	h.mu.Lock()
	h.last = &snapshot
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot)
	}
}

// Latest returns the most recently published snapshot, if any.
func (h *Hub) Latest() (model.MetricSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.last == nil {
		return model.MetricSnapshot{}, false
	}
	return *h.last, true
}

// SubscriberCount reports the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Reset drops the retained snapshot. Subscriptions survive a reset; only
// the cached value is cleared so a market switch never serves stale data.
func (h *Hub) Reset() {
	h.mu.Lock()
	h.last = nil
	h.mu.Unlock()
}
