package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func seedNotifications(t *testing.T, e *env, userID uint, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := e.store.Notifications.CreateNotification(context.Background(), &models.Notification{
			UserID: userID,
			Type:   models.NotificationMention,
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGetNotificationsPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedNotifications(t, e, 1, 12)

	tests := []struct {
		name               string
		page, limit        int
		wantPage, wantN    int
		wantLimit          int
		wantNext, wantPrev bool
	}{
		{"defaults", 0, 0, 1, 10, 10, true, false},
		{"second page", 2, 10, 2, 2, 10, false, true},
		{"capped limit", 1, 500, 1, 12, 50, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.notifications.GetNotifications(ctx, user(1), tt.page, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if p.Page != tt.wantPage || p.Limit != tt.wantLimit || len(p.Notifications) != tt.wantN {
				t.Fatalf("page=%d limit=%d len=%d", p.Page, p.Limit, len(p.Notifications))
			}
			if p.HasNext != tt.wantNext || p.HasPrev != tt.wantPrev || p.Total != 12 {
				t.Fatalf("hasNext=%v hasPrev=%v total=%d", p.HasNext, p.HasPrev, p.Total)
			}
		})
	}

	if _, err := e.notifications.GetNotifications(ctx, nil, 1, 10); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous: %v", err)
	}
}

func TestMarkNotificationAsRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedNotifications(t, e, 1, 1)
	page, _ := e.notifications.GetNotifications(ctx, user(1), 1, 10)
	id := page.Notifications[0].ID

	if err := e.notifications.MarkNotificationAsRead(ctx, user(2), id); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other owner: %v", err)
	}
	if err := e.notifications.MarkNotificationAsRead(ctx, user(1), id+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
	if err := e.notifications.MarkNotificationAsRead(ctx, user(1), id); err != nil {
		t.Fatal(err)
	}
	if err := e.notifications.MarkNotificationAsRead(ctx, user(1), id); err != nil {
		t.Fatalf("already read: %v", err)
	}

	events := e.pub.snapshot()
	if len(events) != 1 || events[0].EventType != models.EventUpdate || !events[0].Record.IsRead {
		t.Fatalf("events = %+v", events)
	}
}

func TestMarkAllNotificationsAsRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedNotifications(t, e, 1, 3)
	seedNotifications(t, e, 2, 1)

	before, err := e.notifications.GetUnreadNotificationCount(ctx, user(1))
	if err != nil || before != 3 {
		t.Fatalf("unread before = %d, %v", before, err)
	}
	if cached, ok, _ := e.unread.Get(ctx, 1); !ok || cached != 3 {
		t.Fatalf("cache = %d, %v", cached, ok)
	}

	n, err := e.notifications.MarkAllNotificationsAsRead(ctx, user(1))
	if err != nil || n != 3 {
		t.Fatalf("marked = %d, %v", n, err)
	}
	after, _ := e.notifications.GetUnreadNotificationCount(ctx, user(1))
	if after != 0 {
		t.Fatalf("unread after = %d", after)
	}

	events := e.pub.snapshot()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3", len(events))
	}
	for _, ev := range events {
		if ev.EventType != models.EventUpdate || ev.Record.UserID != 1 || !ev.Record.IsRead {
			t.Fatalf("event = %+v", ev)
		}
	}
	if n, _ := e.notifications.MarkAllNotificationsAsRead(ctx, user(1)); n != 0 || len(e.pub.snapshot()) != 3 {
		t.Fatalf("second mark all: marked %d, events %d", n, len(e.pub.snapshot()))
	}

	var rows []models.Notification
	e.db.Where("user_id = ?", 1).Find(&rows)
	for _, r := range rows {
		if !r.IsRead || r.ReadAt == nil {
			t.Fatalf("row %d: isRead=%v readAt=%v", r.ID, r.IsRead, r.ReadAt)
		}
	}
	if other, _ := e.notifications.GetUnreadNotificationCount(ctx, user(2)); other != 1 {
		t.Fatalf("other user's unread = %d", other)
	}
}

func TestInteractionNotifications(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.notifications.CreateLikeNotification(ctx, "post-1", 5, 5); err != nil {
		t.Fatal(err)
	}
	if rows := e.notificationsOf(t, 5, models.NotificationLike); len(rows) != 0 {
		t.Fatalf("self like created %d rows", len(rows))
	}

	for i := 0; i < 2; i++ {
		if err := e.notifications.CreateLikeNotification(ctx, "post-1", 6, 5); err != nil {
			t.Fatal(err)
		}
		if err := e.notifications.CreateCommentNotification(ctx, "post-1", 6, 5); err != nil {
			t.Fatal(err)
		}
	}
	likes := e.notificationsOf(t, 5, models.NotificationLike)
	comments := e.notificationsOf(t, 5, models.NotificationComment)
	if len(likes) != 1 || len(comments) != 1 {
		t.Fatalf("likes=%d comments=%d", len(likes), len(comments))
	}
	if likes[0].SubjectID != "post-1" || likes[0].FromUserID != 6 {
		t.Fatalf("like = %+v", likes[0])
	}

	if err := e.notifications.CreateLikeNotification(ctx, "post-2", 6, 5); err != nil {
		t.Fatal(err)
	}
	if rows := e.notificationsOf(t, 5, models.NotificationLike); len(rows) != 2 {
		t.Fatalf("second subject: %d likes", len(rows))
	}
	if err := e.notifications.CreateLikeNotification(ctx, "post-3", 0, 5); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("zero actor: %v", err)
	}
}

func TestUnreadCacheInvalidatedByNewNotification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if n, _ := e.notifications.GetUnreadNotificationCount(ctx, user(5)); n != 0 {
		t.Fatalf("initial unread = %d", n)
	}
	e.notifications.CreateCommentNotification(ctx, "p", 6, 5)
	if n, _ := e.notifications.GetUnreadNotificationCount(ctx, user(5)); n != 1 {
		t.Fatalf("unread after comment = %d", n)
	}
}

// interleavedInteractions holds every CreateInteraction call until all
// callers have arrived, so the inserts race.
type interleavedInteractions struct {
	repositories.NotificationRepository
	arrived sync.WaitGroup
}

func (r *interleavedInteractions) CreateInteraction(ctx context.Context, n *models.Notification) (bool, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.NotificationRepository.CreateInteraction(ctx, n)
}

func TestConcurrentIdenticalLikesCreateOneRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const callers = 2
	repo := &interleavedInteractions{NotificationRepository: e.store.Notifications}
	repo.arrived.Add(callers)
	svc := NewNotificationService(repo, e.pub, e.unread, e.metrics, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.CreateLikeNotification(ctx, "post-1", 1, 2)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if rows := e.notificationsOf(t, 2, models.NotificationLike); len(rows) != 1 {
		t.Fatalf("LIKE rows = %d, want 1", len(rows))
	}
	if events := e.pub.snapshot(); len(events) != 1 || events[0].EventType != models.EventInsert {
		t.Fatalf("events = %+v", events)
	}
	if got := testutil.ToFloat64(e.metrics.NotificationsCreated.WithLabelValues(string(models.NotificationLike))); got != 1 {
		t.Fatalf("created counter = %v", got)
	}
}

// pausedUnreadCount stops each GetUnreadCount after the database has
// answered and before the caller sees the result.
type pausedUnreadCount struct {
	repositories.NotificationRepository
	counted chan struct{}
	resume  chan struct{}
}

func (r *pausedUnreadCount) GetUnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	n, err := r.NotificationRepository.GetUnreadCount(ctx, recipientID)
	r.counted <- struct{}{}
	<-r.resume
	return n, err
}

func TestUnreadCountReadBeforeWriteIsNotCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	repo := &pausedUnreadCount{
		NotificationRepository: e.store.Notifications,
		counted:                make(chan struct{}, 1),
		resume:                 make(chan struct{}),
	}
	reader := NewNotificationService(repo, e.pub, e.unread, e.metrics, zap.NewNop())

	done := make(chan int64, 1)
	go func() {
		n, _ := reader.GetUnreadNotificationCount(ctx, user(2))
		done <- n
	}()
	<-repo.counted

	if err := e.notifications.CreateLikeNotification(ctx, "post-1", 1, 2); err != nil {
		t.Fatal(err)
	}
	close(repo.resume)
	if n := <-done; n != 0 {
		t.Fatalf("paused reader saw %d, want its pre-write count 0", n)
	}

	if cached, ok, _ := e.unread.Get(ctx, 2); ok {
		t.Fatalf("stale unread count %d cached after a newer write", cached)
	}
	if n, err := e.notifications.GetUnreadNotificationCount(ctx, user(2)); err != nil || n != 1 {
		t.Fatalf("unread = %d, %v; want 1", n, err)
	}
	if cached, ok, _ := e.unread.Get(ctx, 2); !ok || cached != 1 {
		t.Fatalf("cache = %d, %v; want 1", cached, ok)
	}
}
