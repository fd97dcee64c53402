package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSendFriendRequestStatusSymmetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	if _, err := e.friends.SendFriendRequest(ctx, a, b.ID); err != nil {
		t.Fatal(err)
	}

	got := e.relationships.GetRelationshipStatus(ctx, b, a.ID)
	if !got.RequestReceived || got.RequestSent {
		t.Fatalf("B->A status = %+v", got)
	}
	got = e.relationships.GetRelationshipStatus(ctx, a, b.ID)
	if !got.RequestSent || got.RequestReceived {
		t.Fatalf("A->B status = %+v", got)
	}

	follows := e.notificationsOf(t, b.ID, models.NotificationFollow)
	if len(follows) != 1 {
		t.Fatalf("got %d FOLLOW notifications, want 1", len(follows))
	}
	n := follows[0]
	if n.FromUserID != a.ID || n.FriendRequestID == nil || *n.Status != models.FriendRequestPending {
		t.Fatalf("unexpected notification %+v", n)
	}
	if events := e.pub.snapshot(); len(events) != 1 || events[0].EventType != models.EventInsert {
		t.Fatalf("events = %+v", events)
	}
}

func TestSendFriendRequestRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	tests := []struct {
		name   string
		actor  *models.Actor
		target uint
		want   error
	}{
		{"no actor", nil, 2, ErrUnauthenticated},
		{"zero actor", &models.Actor{}, 2, ErrUnauthenticated},
		{"self", a, a.ID, ErrSelfRequest},
		{"zero target", a, 0, ErrInvalidUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.friends.SendFriendRequest(ctx, tt.actor, tt.target); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := e.friends.SendFriendRequest(ctx, a, b.ID); err != nil {
		t.Fatal(err)
	}
	for _, pair := range [][2]*models.Actor{{a, b}, {b, a}} {
		if _, err := e.friends.SendFriendRequest(ctx, pair[0], pair[1].ID); !errors.Is(err, ErrRequestExists) {
			t.Fatalf("repeat send %d->%d: got %v", pair[0].ID, pair[1].ID, err)
		}
	}

	total := len(e.notificationsOf(t, b.ID, models.NotificationFollow)) + len(e.notificationsOf(t, a.ID, models.NotificationFollow))
	if total != 1 {
		t.Fatalf("got %d FOLLOW notifications for the pair, want 1", total)
	}
}

func TestAcceptFriendRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	if _, err := e.friends.SendFriendRequest(ctx, a, b.ID); err != nil {
		t.Fatal(err)
	}
	res, err := e.friends.AcceptFriendRequest(ctx, b, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.AlreadyHandled || res.Request.Status != models.FriendRequestAccepted {
		t.Fatalf("result = %+v", res)
	}

	for _, p := range [][2]*models.Actor{{a, b}, {b, a}} {
		got := e.relationships.GetRelationshipStatus(ctx, p[0], p[1].ID)
		if !got.IsFriend || got.RequestSent || got.RequestReceived {
			t.Fatalf("status %d->%d = %+v", p[0].ID, p[1].ID, got)
		}
	}

	follow := e.notificationsOf(t, b.ID, models.NotificationFollow)[0]
	if *follow.Status != models.FriendRequestAccepted {
		t.Fatalf("FOLLOW status = %s", *follow.Status)
	}
	accepted := e.notificationsOf(t, a.ID, models.NotificationFriendAccepted)
	if len(accepted) != 1 || accepted[0].FromUserID != b.ID {
		t.Fatalf("FRIEND_ACCEPTED = %+v", accepted)
	}

	var updates, inserts int
	for _, ev := range e.pub.snapshot() {
		switch ev.EventType {
		case models.EventUpdate:
			updates++
		case models.EventInsert:
			inserts++
		}
	}
	if updates != 1 || inserts != 2 {
		t.Fatalf("updates=%d inserts=%d", updates, inserts)
	}
}

func TestAcceptTwiceIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	e.friends.SendFriendRequest(ctx, a, b.ID)
	if _, err := e.friends.AcceptFriendRequest(ctx, b, a.ID); err != nil {
		t.Fatal(err)
	}
	res, err := e.friends.AcceptFriendRequest(ctx, b, a.ID)
	if err != nil {
		t.Fatalf("second accept surfaced %v", err)
	}
	if !res.AlreadyHandled {
		t.Fatal("second accept should report AlreadyHandled")
	}
	if n := e.count(t, &models.Friend{}); n != 2 {
		t.Fatalf("friend rows = %d, want 2", n)
	}
	if n := len(e.notificationsOf(t, a.ID, models.NotificationFriendAccepted)); n != 1 {
		t.Fatalf("FRIEND_ACCEPTED rows = %d, want 1", n)
	}
	if got := testutil.ToFloat64(e.metrics.FriendRequests.WithLabelValues("accept", "already_handled")); got != 1 {
		t.Fatalf("already_handled counter = %v", got)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	if _, err := e.friends.SendFriendRequest(ctx, a, b.ID); err != nil {
		t.Fatal(err)
	}

	const callers = 2
	var (
		wg      sync.WaitGroup
		results = make([]*TransitionResult, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.friends.AcceptFriendRequest(ctx, b, a.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].AlreadyHandled {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
	if n := e.count(t, &models.Friend{}); n != 2 {
		t.Fatalf("friend rows = %d, want 2", n)
	}
	var accepted int64
	e.db.Model(&models.FriendRequest{}).Where("status = ?", models.FriendRequestAccepted).Count(&accepted)
	if accepted != 1 {
		t.Fatalf("accepted requests = %d, want 1", accepted)
	}
}

func TestAcceptLosingConditionalUpdateIsAlreadyHandled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	if _, err := e.friends.SendFriendRequest(ctx, a, b.ID); err != nil {
		t.Fatal(err)
	}
	published := len(e.pub.snapshot())

	// A decline lands between the accept's read and its conditional update:
	// the trigger writes DECLINED and skips the accept's own row change.
	if err := e.db.Exec(`CREATE TRIGGER decline_first BEFORE UPDATE OF status ON friend_requests
		WHEN OLD.status = 'PENDING' AND NEW.status = 'ACCEPTED'
		BEGIN
			UPDATE friend_requests SET status = 'DECLINED' WHERE id = OLD.id;
			SELECT RAISE(IGNORE);
		END`).Error; err != nil {
		t.Fatal(err)
	}

	res, err := e.friends.AcceptFriendRequest(ctx, b, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlreadyHandled || res.Request.Status != models.FriendRequestDeclined {
		t.Fatalf("result = %+v, want already handled with DECLINED", res)
	}
	if n := e.count(t, &models.Friend{}); n != 0 {
		t.Fatalf("friend rows = %d", n)
	}
	if rows := e.notificationsOf(t, a.ID, models.NotificationFriendAccepted); len(rows) != 0 {
		t.Fatalf("FRIEND_ACCEPTED rows = %d", len(rows))
	}
	if len(e.pub.snapshot()) != published {
		t.Fatal("lost transition published events")
	}
	if got := testutil.ToFloat64(e.metrics.FriendRequests.WithLabelValues("accept", "already_handled")); got != 1 {
		t.Fatalf("already_handled counter = %v", got)
	}
}

func TestTransitionAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c := user(1), user(2), user(3)
	e.friends.SendFriendRequest(ctx, a, b.ID)

	if _, err := e.friends.AcceptFriendRequest(ctx, a, b.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("sender accept: %v", err)
	}
	if _, err := e.friends.DeclineFriendRequest(ctx, a, b.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("sender decline: %v", err)
	}
	if _, err := e.friends.CancelFriendRequest(ctx, b, a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("recipient cancel: %v", err)
	}
	if _, err := e.friends.AcceptFriendRequest(ctx, c, a.ID); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("stranger accept: %v", err)
	}
	if _, err := e.friends.AcceptFriendRequest(ctx, nil, a.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous accept: %v", err)
	}
	if len(e.pub.snapshot()) != 1 {
		t.Fatal("rejected calls must not publish")
	}
}

func TestCancelAndDeclineMirrorNotification(t *testing.T) {
	tests := []struct {
		name string
		run  func(e *env, a, b *models.Actor) (*TransitionResult, error)
		want models.FriendRequestStatus
	}{
		{
			name: "cancel",
			run: func(e *env, a, b *models.Actor) (*TransitionResult, error) {
				return e.friends.CancelFriendRequest(context.Background(), a, b.ID)
			},
			want: models.FriendRequestCancelled,
		},
		{
			name: "decline",
			run: func(e *env, a, b *models.Actor) (*TransitionResult, error) {
				return e.friends.DeclineFriendRequest(context.Background(), b, a.ID)
			},
			want: models.FriendRequestDeclined,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			a, b := user(1), user(2)
			if _, err := e.friends.SendFriendRequest(context.Background(), a, b.ID); err != nil {
				t.Fatal(err)
			}

			res, err := tt.run(e, a, b)
			if err != nil {
				t.Fatal(err)
			}
			if res.Request.Status != tt.want {
				t.Fatalf("request status = %s", res.Request.Status)
			}
			n := e.notificationsOf(t, b.ID, models.NotificationFollow)[0]
			if *n.Status != tt.want {
				t.Fatalf("notification status = %s, want %s", *n.Status, tt.want)
			}
			if c := e.count(t, &models.Friend{}); c != 0 {
				t.Fatalf("friend rows = %d", c)
			}
			if got := e.relationships.GetRelationshipStatus(context.Background(), b, a.ID); got != (models.RelationshipStatus{}) {
				t.Fatalf("status = %+v", got)
			}
		})
	}
}

func TestResendAfterTerminalState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)

	e.friends.SendFriendRequest(ctx, a, b.ID)
	e.friends.DeclineFriendRequest(ctx, b, a.ID)
	if _, err := e.friends.SendFriendRequest(ctx, a, b.ID); !errors.Is(err, ErrRequestExists) {
		t.Fatalf("resend after decline: %v", err)
	}

	c := user(3)
	e.friends.SendFriendRequest(ctx, a, c.ID)
	e.friends.AcceptFriendRequest(ctx, c, a.ID)
	if err := e.friends.RemoveFriend(ctx, c, a.ID); err != nil {
		t.Fatal(err)
	}
	if got := e.relationships.GetRelationshipStatus(ctx, a, c.ID); got.IsFriend {
		t.Fatal("still friends after remove")
	}
	if _, err := e.friends.SendFriendRequest(ctx, c, a.ID); err != nil {
		t.Fatalf("resend after remove: %v", err)
	}
	if err := e.friends.RemoveFriend(ctx, a, b.ID); err != nil {
		t.Fatalf("remove non-friend: %v", err)
	}
}

func TestAcceptRollsBackOnFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := user(1), user(2)
	e.friends.SendFriendRequest(ctx, a, b.ID)
	published := len(e.pub.snapshot())

	if err := e.db.Exec(`CREATE TRIGGER fail_friends BEFORE INSERT ON friends BEGIN SELECT RAISE(ABORT, 'boom'); END`).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.AcceptFriendRequest(ctx, b, a.ID); err == nil {
		t.Fatal("accept should fail")
	}

	var req models.FriendRequest
	e.db.First(&req)
	if req.Status != models.FriendRequestPending {
		t.Fatalf("request status = %s after rollback", req.Status)
	}
	n := e.notificationsOf(t, b.ID, models.NotificationFollow)[0]
	if *n.Status != models.FriendRequestPending {
		t.Fatalf("notification status = %s after rollback", *n.Status)
	}
	if len(e.pub.snapshot()) != published {
		t.Fatal("rolled back transition was published")
	}
}

func TestListFriendsAndPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c := user(1), user(2), user(3)

	e.friends.SendFriendRequest(ctx, b, a.ID)
	e.friends.SendFriendRequest(ctx, c, a.ID)
	e.friends.AcceptFriendRequest(ctx, a, c.ID)

	pending, err := e.friends.ListPendingRequests(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].FromID != b.ID {
		t.Fatalf("pending = %+v", pending)
	}
	friends, err := e.friends.ListFriends(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 1 || friends[0] != c.ID {
		t.Fatalf("friends = %v", friends)
	}
}
