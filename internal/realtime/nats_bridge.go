package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SubjectPrefix namespaces per-recipient notification subjects.
const SubjectPrefix = "notifications."

func Subject(userID uint) string {
	return fmt.Sprintf("%s%d", SubjectPrefix, userID)
}

// NatsBridge publishes events to NATS and feeds the local hub from the
// wildcard subscription, so every instance reaches its own subscribers.
type NatsBridge struct {
	nc  *nats.Conn
	hub *Hub
	log *zap.Logger
	sub *nats.Subscription
}

func NewNatsBridge(nc *nats.Conn, hub *Hub, log *zap.Logger) *NatsBridge {
	return &NatsBridge{nc: nc, hub: hub, log: log}
}

// Start subscribes to every recipient subject.
func (b *NatsBridge) Start() error {
	sub, err := b.nc.Subscribe(SubjectPrefix+"*", b.handle)
	if err != nil {
		return errors.Wrap(err, "subscribe notifications")
	}
	b.sub = sub
	b.log.Info("realtime bridge subscribed", zap.String("subject", sub.Subject))
	return nil
}

func (b *NatsBridge) handle(msg *nats.Msg) {
	var ev models.NotificationEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.log.Warn("realtime bridge: bad event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	b.hub.Deliver(ev)
}

// Publish sends each event on its recipient subject. If NATS refuses the
// message the event is delivered to local subscribers only.
func (b *NatsBridge) Publish(_ context.Context, events ...models.NotificationEvent) {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			b.log.Error("realtime bridge: encode event", zap.Uint("notification", ev.Record.ID), zap.Error(err))
			continue
		}
		if err := b.nc.Publish(Subject(ev.Record.UserID), data); err != nil {
			b.log.Warn("realtime bridge: publish failed, delivering locally", zap.Error(err))
			b.hub.Deliver(ev)
		}
	}
}

func (b *NatsBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Drain()
}
