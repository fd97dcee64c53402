package services

import (
	"context"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"go.uber.org/zap"
)

// Publisher pushes committed notification changes to realtime subscribers.
// Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, events ...models.NotificationEvent)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...models.NotificationEvent) {}

// eventBuffer collects events inside a transaction. They are only flushed
// once the transaction has committed.
type eventBuffer struct {
	events  []models.NotificationEvent
	touched []uint
}

func (b *eventBuffer) inserted(n models.Notification) {
	b.events = append(b.events, models.NotificationEvent{EventType: models.EventInsert, Record: n})
	b.touched = append(b.touched, n.UserID)
}

func (b *eventBuffer) updated(ns ...models.Notification) {
	for _, n := range ns {
		b.events = append(b.events, models.NotificationEvent{EventType: models.EventUpdate, Record: n})
		b.touched = append(b.touched, n.UserID)
	}
}

// dispatcher runs the post-commit side effects of a write: unread cache
// invalidation for every touched recipient, then realtime publication.
type dispatcher struct {
	publisher Publisher
	unread    repositories.UnreadCache
	log       *zap.Logger
}

func (d dispatcher) flush(ctx context.Context, buf *eventBuffer) {
	if len(buf.touched) > 0 {
		if err := d.unread.Invalidate(ctx, buf.touched...); err != nil {
			d.log.Warn("invalidate unread cache", zap.Uints("users", buf.touched), zap.Error(err))
		}
	}
	if len(buf.events) > 0 {
		d.publisher.Publish(ctx, buf.events...)
	}
}
