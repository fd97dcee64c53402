package services

import (
	"context"
	"sync"
	"testing"

	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"github.com/anonto42/nano-midea/relations/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...models.NotificationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) snapshot() []models.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.NotificationEvent(nil), p.events...)
}

type memUnreadCache struct {
	mu     sync.Mutex
	counts map[uint]int64
	gens   map[uint]int64
}

func newMemUnreadCache() *memUnreadCache {
	return &memUnreadCache{counts: map[uint]int64{}, gens: map[uint]int64{}}
}

func (c *memUnreadCache) Get(_ context.Context, id uint) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[id]
	return n, ok, nil
}

func (c *memUnreadCache) Generation(_ context.Context, id uint) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id], nil
}

func (c *memUnreadCache) Set(_ context.Context, id uint, n, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] == gen {
		c.counts[id] = n
	}
	return nil
}

func (c *memUnreadCache) Invalidate(_ context.Context, ids ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.gens[id]++
		delete(c.counts, id)
	}
	return nil
}

type env struct {
	db            *gorm.DB
	store         *repositories.Store
	pub           *recordingPublisher
	unread        *memUnreadCache
	metrics       *metrics.Metrics
	friends       *FriendshipService
	relationships *RelationshipService
	notifications *NotificationService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	e := &env{
		db:      db,
		store:   repositories.NewStore(db),
		pub:     &recordingPublisher{},
		unread:  newMemUnreadCache(),
		metrics: metrics.NewNop(),
	}
	log := zap.NewNop()
	e.friends = NewFriendshipService(e.store, e.pub, e.unread, e.metrics, log)
	e.relationships = NewRelationshipService(e.store, e.metrics, log)
	e.notifications = NewNotificationService(e.store.Notifications, e.pub, e.unread, e.metrics, log)
	return e
}

func user(id uint) *models.Actor {
	return &models.Actor{ID: id, Name: "User", Username: "user"}
}

func (e *env) notificationsOf(t *testing.T, userID uint, typ models.NotificationType) []models.Notification {
	t.Helper()
	var out []models.Notification
	if err := e.db.Where("user_id = ? AND type = ?", userID, typ).Order("id").Find(&out).Error; err != nil {
		t.Fatal(err)
	}
	return out
}

func (e *env) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}
