// Package notifyclient keeps a client-side copy of a user's notification
// feed in sync with the relations service. A poll loop and a push stream
// feed a single goroutine that owns the list; polling is authoritative.
package notifyclient

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPageSize     = 50
	defaultRetryDelay   = 3 * time.Second
)

var (
	// ErrInFlight is returned when accept or decline is already running for the item.
	ErrInFlight = errors.New("a request for this notification is already in flight")
	// ErrClosed is returned once the cache has been closed.
	ErrClosed = errors.New("notification cache closed")
	// ErrUnknownNotification is returned for ids not in the cached list.
	ErrUnknownNotification = errors.New("notification not in cache")
	// ErrNotActionable is returned when accept or decline targets a
	// notification that is not a pending friend request.
	ErrNotActionable = errors.New("notification is not a pending friend request")
)

// API is the request/response surface the cache calls. HTTPClient implements it.
type API interface {
	ListNotifications(ctx context.Context, page, limit int) (*models.NotificationPage, error)
	AcceptFriendRequest(ctx context.Context, fromID uint) error
	DeclineFriendRequest(ctx context.Context, fromID uint) error
	MarkAsRead(ctx context.Context, id uint) error
}

// Push opens a stream of notification events. The channel is closed when the
// stream ends. WSPush implements it.
type Push interface {
	Subscribe(ctx context.Context) (<-chan models.NotificationEvent, error)
}

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Notifications []models.Notification
	UnreadCount   int
}

type Options struct {
	PollInterval time.Duration
	PageSize     int
	RetryDelay   time.Duration
	Log          *zap.Logger
	// OnChange receives a snapshot after each operation, on the owner goroutine.
	OnChange func(Snapshot)
}

type state struct {
	items    []models.Notification
	inFlight map[uint]bool
}

func (s *state) index(id uint) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{Notifications: make([]models.Notification, len(s.items))}
	copy(snap.Notifications, s.items)
	for _, n := range s.items {
		if !n.IsRead {
			snap.UnreadCount++
		}
	}
	return snap
}

// Cache is the client notification cache. Create it with New, then Start.
type Cache struct {
	api  API
	push Push
	opts Options
	log  *zap.Logger

	ops    chan func(*state)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	start  sync.Once
}

func New(api API, push Push, opts Options) *Cache {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		api:    api,
		push:   push,
		opts:   opts,
		log:    log,
		ops:    make(chan func(*state)),
		ctx:    ctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// run owns the state. Every read and write goes through c.ops.
func (c *Cache) run() {
	defer c.wg.Done()
	s := &state{inFlight: make(map[uint]bool)}
	for {
		select {
		case <-c.ctx.Done():
			return
		case op := <-c.ops:
			op(s)
			if c.opts.OnChange != nil {
				c.opts.OnChange(s.snapshot())
			}
		}
	}
}

// do runs fn on the owner goroutine and waits for it. It reports false when
// the cache is closed, in which case fn may not have run.
func (c *Cache) do(fn func(*state)) bool {
	done := make(chan struct{})
	op := func(s *state) {
		fn(s)
		close(done)
	}
	select {
	case c.ops <- op:
	case <-c.ctx.Done():
		return false
	}
	select {
	case <-done:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// Start begins polling and, when a Push is configured, the push stream.
// The first poll runs immediately.
func (c *Cache) Start() {
	c.start.Do(func() {
		c.wg.Add(1)
		go c.pollLoop()
		if c.push != nil {
			c.wg.Add(1)
			go c.pushLoop()
		}
	})
}

// Close stops polling and the push stream. Calls already sent to the server
// are not aborted; their results are dropped.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) Snapshot() (Snapshot, error) {
	var snap Snapshot
	if !c.do(func(s *state) { snap = s.snapshot() }) {
		return Snapshot{}, ErrClosed
	}
	return snap, nil
}

// Refresh fetches the first page and replaces the cached list with it.
func (c *Cache) Refresh(ctx context.Context) error {
	page, err := c.api.ListNotifications(ctx, 1, c.opts.PageSize)
	if err != nil {
		return errors.Wrap(err, "refresh notifications")
	}
	items := page.Notifications
	if !c.do(func(s *state) { s.items = items }) {
		return ErrClosed
	}
	return nil
}

func (c *Cache) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.Refresh(c.ctx); err != nil && c.ctx.Err() == nil {
			c.log.Warn("notification poll failed", zap.Error(err))
		}
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Cache) pushLoop() {
	defer c.wg.Done()
	for {
		events, err := c.push.Subscribe(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("notification push subscribe failed", zap.Error(err))
		} else {
			c.drain(events)
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

func (c *Cache) drain(events <-chan models.NotificationEvent) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.apply(ev)
		}
	}
}

// apply merges one pushed event: inserts are prepended unless already
// present, updates replace the cached record with the same id.
func (c *Cache) apply(ev models.NotificationEvent) {
	c.do(func(s *state) {
		i := s.index(ev.Record.ID)
		switch ev.EventType {
		case models.EventInsert:
			if i >= 0 {
				return
			}
			s.items = append([]models.Notification{ev.Record}, s.items...)
		case models.EventUpdate:
			if i >= 0 {
				s.items[i] = ev.Record
			}
		}
	})
}

// Accept accepts the friend request behind a FOLLOW notification.
func (c *Cache) Accept(ctx context.Context, notificationID uint) error {
	return c.resolve(ctx, notificationID, models.FriendRequestAccepted, c.api.AcceptFriendRequest)
}

// Decline declines the friend request behind a FOLLOW notification.
func (c *Cache) Decline(ctx context.Context, notificationID uint) error {
	return c.resolve(ctx, notificationID, models.FriendRequestDeclined, c.api.DeclineFriendRequest)
}

// resolve writes the predicted status, calls the server and then refetches
// whatever the outcome, so a failed call cannot leave the guess in place.
func (c *Cache) resolve(ctx context.Context, id uint, predicted models.FriendRequestStatus, call func(context.Context, uint) error) error {
	var (
		fromID uint
		err    error
	)
	ok := c.do(func(s *state) {
		i := s.index(id)
		switch {
		case i < 0:
			err = ErrUnknownNotification
		case s.inFlight[id]:
			err = ErrInFlight
		case s.items[i].Type != models.NotificationFollow || s.items[i].FromUserID == 0:
			err = ErrNotActionable
		default:
			s.inFlight[id] = true
			s.items[i].Status = predicted.Ptr()
			fromID = s.items[i].FromUserID
		}
	})
	if !ok {
		return ErrClosed
	}
	if err != nil {
		return err
	}

	callErr := call(ctx, fromID)

	c.do(func(s *state) { delete(s.inFlight, id) })
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn("refetch after friend request action failed", zap.Uint("notification", id), zap.Error(err))
	}
	return callErr
}

// MarkRead flags the notification as read locally and tells the server in
// the background. Server failures are logged and not retried.
func (c *Cache) MarkRead(notificationID uint) {
	var changed bool
	c.do(func(s *state) {
		i := s.index(notificationID)
		if i < 0 || s.items[i].IsRead {
			return
		}
		now := time.Now()
		s.items[i].IsRead = true
		s.items[i].ReadAt = &now
		changed = true
	})
	if !changed {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.api.MarkAsRead(ctx, notificationID); err != nil {
			c.log.Warn("mark notification read failed", zap.Uint("notification", notificationID), zap.Error(err))
		}
	}()
}
