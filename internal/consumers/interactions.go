// Package consumers turns events from other subsystems into notifications.
package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/validators"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	SubjectLike    = "interactions.like"
	SubjectComment = "interactions.comment"
	QueueGroup     = "relations-notifier"

	handleTimeout = 5 * time.Second
)

// InteractionEvent is published by the interaction subsystem when a user
// likes or comments on a post.
type InteractionEvent struct {
	SubjectID string `json:"subject_id" validate:"required,max=64"`
	ActorID   uint   `json:"actor_id" validate:"required"`
	AuthorID  uint   `json:"author_id" validate:"required"`
}

// InteractionNotifier is implemented by services.NotificationService.
type InteractionNotifier interface {
	CreateLikeNotification(ctx context.Context, subjectID string, actorID, authorID uint) error
	CreateCommentNotification(ctx context.Context, subjectID string, actorID, authorID uint) error
}

type InteractionConsumer struct {
	nc       *nats.Conn
	notifier InteractionNotifier
	validate *validators.CustomValidator
	metrics  *metrics.Metrics
	log      *zap.Logger
	subs     []*nats.Subscription
}

func NewInteractionConsumer(nc *nats.Conn, notifier InteractionNotifier, validate *validators.CustomValidator, m *metrics.Metrics, log *zap.Logger) *InteractionConsumer {
	return &InteractionConsumer{nc: nc, notifier: notifier, validate: validate, metrics: m, log: log}
}

// Start joins the queue group on both interaction subjects, so each event is
// handled by one instance.
func (c *InteractionConsumer) Start() error {
	for _, subject := range []string{SubjectLike, SubjectComment} {
		sub, err := c.nc.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
			ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
			defer cancel()
			if err := c.Handle(ctx, msg.Subject, msg.Data); err != nil {
				c.log.Error("interaction event failed", zap.String("subject", msg.Subject), zap.Error(err))
			}
		})
		if err != nil {
			c.Close()
			return errors.Wrapf(err, "queue subscribe %s", subject)
		}
		c.subs = append(c.subs, sub)
	}
	c.log.Info("interaction consumer started", zap.String("queue", QueueGroup))
	return nil
}

// Handle decodes one event and creates the matching notification.
func (c *InteractionConsumer) Handle(ctx context.Context, subject string, data []byte) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.InteractionEvents.WithLabelValues(subject, outcome).Inc()
	}()

	var ev InteractionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return errors.Wrap(err, "decode interaction event")
	}
	if err := c.validate.Struct(&ev); err != nil {
		return errors.Wrap(err, "invalid interaction event")
	}

	switch subject {
	case SubjectLike:
		return c.notifier.CreateLikeNotification(ctx, ev.SubjectID, ev.ActorID, ev.AuthorID)
	case SubjectComment:
		return c.notifier.CreateCommentNotification(ctx, ev.SubjectID, ev.ActorID, ev.AuthorID)
	default:
		return errors.Errorf("unknown interaction subject %q", subject)
	}
}

func (c *InteractionConsumer) Close() {
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn("drain subscription", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	c.subs = nil
}
