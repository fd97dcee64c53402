package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultPageSize        = 10
	maxNotificationPerPage = 50
)

// NotificationService serves the recipient's feed and records interaction
// notifications produced by other subsystems.
type NotificationService struct {
	repo    repositories.NotificationRepository
	unread  repositories.UnreadCache
	out     dispatcher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewNotificationService(repo repositories.NotificationRepository, publisher Publisher, unread repositories.UnreadCache, m *metrics.Metrics, log *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:    repo,
		unread:  unread,
		out:     dispatcher{publisher: publisher, unread: unread, log: log},
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

func normalizePage(page, limit, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > max {
		limit = max
	}
	return page, limit
}

// GetNotifications returns one page of the actor's feed, newest first.
func (s *NotificationService) GetNotifications(ctx context.Context, actor *models.Actor, page, limit int) (*models.NotificationPage, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	page, limit = normalizePage(page, limit, maxNotificationPerPage)
	offset := (page - 1) * limit

	items, total, err := s.repo.GetByRecipientID(ctx, actor.ID, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "get notifications")
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &models.NotificationPage{
		Notifications: items,
		Page:          page,
		Limit:         limit,
		Total:         total,
		TotalPages:    totalPages,
		HasNext:       int64(offset+limit) < total,
		HasPrev:       page > 1,
	}, nil
}

// GetGroupedNotifications buckets the actor's feed into today, yesterday,
// this week and older.
func (s *NotificationService) GetGroupedNotifications(ctx context.Context, actor *models.Actor) (*models.GroupedNotifications, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	g, err := s.repo.GetGrouped(ctx, actor.ID, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "get grouped notifications")
	}
	return g, nil
}

// GetUnreadNotificationCount reads through the unread cache. Cache failures
// fall back to the database. The count is cached only if no write
// invalidated the recipient while it was being read.
func (s *NotificationService) GetUnreadNotificationCount(ctx context.Context, actor *models.Actor) (int64, error) {
	if !actor.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if n, ok, err := s.unread.Get(ctx, actor.ID); err != nil {
		s.log.Warn("unread cache get", zap.Uint("user", actor.ID), zap.Error(err))
	} else if ok {
		return n, nil
	}

	gen, genErr := s.unread.Generation(ctx, actor.ID)
	if genErr != nil {
		s.log.Warn("unread cache generation", zap.Uint("user", actor.ID), zap.Error(genErr))
	}
	n, err := s.repo.GetUnreadCount(ctx, actor.ID)
	if err != nil {
		return 0, errors.Wrap(err, "count unread notifications")
	}
	if genErr == nil {
		if err := s.unread.Set(ctx, actor.ID, n, gen); err != nil {
			s.log.Warn("unread cache set", zap.Uint("user", actor.ID), zap.Error(err))
		}
	}
	return n, nil
}

// MarkNotificationAsRead marks one of the actor's notifications as read.
// Marking an already read notification succeeds without changes.
func (s *NotificationService) MarkNotificationAsRead(ctx context.Context, actor *models.Actor, id uint) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	n, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "load notification")
	}
	if n.UserID != actor.ID {
		return ErrForbidden
	}
	if n.IsRead {
		return nil
	}

	at := s.now()
	changed, err := s.repo.MarkAsRead(ctx, id, at)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if !changed {
		return nil
	}
	n.IsRead, n.ReadAt = true, &at

	var buf eventBuffer
	buf.updated(*n)
	s.out.flush(ctx, &buf)
	return nil
}

// MarkAllNotificationsAsRead marks every unread notification of the actor
// and returns how many rows changed.
func (s *NotificationService) MarkAllNotificationsAsRead(ctx context.Context, actor *models.Actor) (int64, error) {
	if !actor.Authenticated() {
		return 0, ErrUnauthenticated
	}
	marked, n, err := s.repo.MarkAllAsRead(ctx, actor.ID, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}

	var buf eventBuffer
	buf.updated(marked...)
	s.out.flush(ctx, &buf)
	return n, nil
}

// CreateLikeNotification records that actorID liked authorID's post subjectID.
func (s *NotificationService) CreateLikeNotification(ctx context.Context, subjectID string, actorID, authorID uint) error {
	return s.createInteraction(ctx, models.NotificationLike, subjectID, actorID, authorID)
}

// CreateCommentNotification records that actorID commented on authorID's post subjectID.
func (s *NotificationService) CreateCommentNotification(ctx context.Context, subjectID string, actorID, authorID uint) error {
	return s.createInteraction(ctx, models.NotificationComment, subjectID, actorID, authorID)
}

func (s *NotificationService) createInteraction(ctx context.Context, typ models.NotificationType, subjectID string, actorID, authorID uint) error {
	if actorID == 0 || authorID == 0 {
		return ErrInvalidUser
	}
	if actorID == authorID {
		return nil
	}

	n := &models.Notification{
		UserID:     authorID,
		Type:       typ,
		Title:      interactionTitle(typ),
		Message:    interactionMessage(typ),
		Data:       actorPayload(&models.Actor{ID: actorID}, map[string]interface{}{"subjectId": subjectID}),
		FromUserID: actorID,
		SubjectID:  subjectID,
	}
	created, err := s.repo.CreateInteraction(ctx, n)
	if err != nil {
		return errors.Wrapf(err, "create %s notification", typ)
	}
	if !created {
		return nil
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(typ)).Inc()

	var buf eventBuffer
	buf.inserted(*n)
	s.out.flush(ctx, &buf)
	return nil
}

func interactionTitle(typ models.NotificationType) string {
	switch typ {
	case models.NotificationLike:
		return "New Like"
	case models.NotificationComment:
		return "New Comment"
	}
	return string(typ)
}

func interactionMessage(typ models.NotificationType) string {
	switch typ {
	case models.NotificationLike:
		return "Someone liked your post"
	case models.NotificationComment:
		return "Someone commented on your post"
	}
	return fmt.Sprintf("New %s activity", typ)
}
