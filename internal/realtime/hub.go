// Package realtime fans committed notification changes out to the
// subscribers of each recipient. Delivery is lossy: clients poll to converge.
package realtime

import (
	"context"
	"sync"

	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBuffer = 32

// Subscription receives the events of one recipient until Unsubscribe.
type Subscription struct {
	ID     string
	UserID uint

	events chan models.NotificationEvent
	hub    *Hub
	once   sync.Once
}

// Events is closed after Unsubscribe.
func (s *Subscription) Events() <-chan models.NotificationEvent {
	return s.events
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub keeps the subscriptions of this instance keyed by recipient.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint]map[string]*Subscription
	buffer  int
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewHub(buffer int, m *metrics.Metrics, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:    make(map[uint]map[string]*Subscription),
		buffer:  buffer,
		metrics: m,
		log:     log,
	}
}

func (h *Hub) Subscribe(userID uint) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan models.NotificationEvent, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	byID, ok := h.subs[userID]
	if !ok {
		byID = make(map[string]*Subscription)
		h.subs[userID] = byID
	}
	byID[sub.ID] = sub
	h.mu.Unlock()

	h.metrics.ActiveSubscriptions.Inc()
	h.log.Debug("realtime subscribe", zap.Uint("user", userID), zap.String("sub", sub.ID))
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if byID, ok := h.subs[sub.UserID]; ok {
		delete(byID, sub.ID)
		if len(byID) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	// Sends happen under the read lock, so closing here cannot race them.
	close(sub.events)
	h.mu.Unlock()

	h.metrics.ActiveSubscriptions.Dec()
	h.log.Debug("realtime unsubscribe", zap.Uint("user", sub.UserID), zap.String("sub", sub.ID))
}

// Publish delivers events to local subscribers. It never blocks.
func (h *Hub) Publish(_ context.Context, events ...models.NotificationEvent) {
	for _, ev := range events {
		h.Deliver(ev)
	}
}

// Deliver hands ev to every subscriber of its recipient. A subscriber whose
// buffer is full misses the event.
func (h *Hub) Deliver(ev models.NotificationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[ev.Record.UserID] {
		select {
		case sub.events <- ev:
			h.metrics.RealtimeEvents.WithLabelValues("delivered").Inc()
		default:
			h.metrics.RealtimeEvents.WithLabelValues("dropped").Inc()
			h.log.Warn("realtime buffer full, event dropped",
				zap.Uint("user", sub.UserID), zap.String("sub", sub.ID), zap.Uint("notification", ev.Record.ID))
		}
	}
}

// Subscribers reports how many subscriptions userID currently has.
func (h *Hub) Subscribers(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
