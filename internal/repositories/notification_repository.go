package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// groupedOlderLimit caps the "older" bucket of the grouped feed.
const groupedOlderLimit = 50

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
	FindActiveFollowNotification(ctx context.Context, recipientID, fromUserID uint) (*models.Notification, error)
	CreateInteraction(ctx context.Context, notification *models.Notification) (bool, error)
	MirrorRequestStatus(ctx context.Context, req *models.FriendRequest) ([]models.Notification, error)

	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	GetByRecipientID(ctx context.Context, recipientID uint, offset, limit int) ([]models.Notification, int64, error)
	GetGrouped(ctx context.Context, recipientID uint, now time.Time) (*models.GroupedNotifications, error)
	GetUnreadCount(ctx context.Context, recipientID uint) (int64, error)
	MarkAsRead(ctx context.Context, id uint, at time.Time) (bool, error)
	MarkAllAsRead(ctx context.Context, recipientID uint, at time.Time) ([]models.Notification, int64, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return translate(r.db.WithContext(ctx).Create(notification).Error)
}

// FindActiveFollowNotification returns the FOLLOW notification sent by fromUserID
// to recipientID that is not DECLINED or CANCELLED.
func (r *postgresNotificationRepository) FindActiveFollowNotification(ctx context.Context, recipientID, fromUserID uint) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND from_user_id = ? AND type = ?", recipientID, fromUserID, models.NotificationFollow).
		Where("status IS NULL OR status NOT IN ?", []models.FriendRequestStatus{models.FriendRequestDeclined, models.FriendRequestCancelled}).
		Order("id DESC").
		First(&n).Error
	if err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// CreateInteraction inserts a LIKE or COMMENT notification under its
// InteractionKey. It reports false, and inserts nothing, when an identical
// row already exists.
func (r *postgresNotificationRepository) CreateInteraction(ctx context.Context, notification *models.Notification) (bool, error) {
	key := models.InteractionKey(notification.Type, notification.SubjectID, notification.FromUserID, notification.UserID)
	notification.DedupeKey = &key

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(notification)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MirrorRequestStatus copies req.Status onto the FOLLOW notifications of both
// parties: those linked by friend_request_id, plus PENDING ones matched on the
// (user_id, from_user_id) columns. It returns the rows after the update.
func (r *postgresNotificationRepository) MirrorRequestStatus(ctx context.Context, req *models.FriendRequest) ([]models.Notification, error) {
	db := r.db.WithContext(ctx)

	var ids []uint
	err := db.Model(&models.Notification{}).
		Where("friend_request_id = ?", req.ID).
		Or(db.Where("type = ? AND status = ?", models.NotificationFollow, models.FriendRequestPending).
			Where("(user_id = ? AND from_user_id = ?) OR (user_id = ? AND from_user_id = ?)",
				req.ToID, req.FromID, req.FromID, req.ToID)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := db.Model(&models.Notification{}).
		Where("id IN ?", ids).
		Update("status", req.Status).Error; err != nil {
		return nil, err
	}

	var updated []models.Notification
	if err := db.Where("id IN ?", ids).Order("id").Find(&updated).Error; err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *postgresNotificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

func (r *postgresNotificationRepository) GetByRecipientID(ctx context.Context, recipientID uint, offset, limit int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Notification{}).Where("user_id = ?", recipientID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("user_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&notifications).Error

	return notifications, total, err
}

// GetGrouped buckets the recipient's feed relative to now. The "this week"
// bucket covers the seven days before yesterday.
func (r *postgresNotificationRepository) GetGrouped(ctx context.Context, recipientID uint, now time.Time) (*models.GroupedNotifications, error) {
	var all []models.Notification
	if err := r.db.WithContext(ctx).Where("user_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Find(&all).Error; err != nil {
		return nil, err
	}
	return GroupByAge(all, now), nil
}

// GroupByAge splits newest-first notifications into age buckets.
func GroupByAge(items []models.Notification, now time.Time) *models.GroupedNotifications {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	g := &models.GroupedNotifications{
		Today:     []models.Notification{},
		Yesterday: []models.Notification{},
		ThisWeek:  []models.Notification{},
		Older:     []models.Notification{},
	}
	for _, n := range items {
		switch {
		case !n.CreatedAt.Before(todayStart):
			g.Today = append(g.Today, n)
		case !n.CreatedAt.Before(yesterdayStart):
			g.Yesterday = append(g.Yesterday, n)
		case !n.CreatedAt.Before(weekStart):
			g.ThisWeek = append(g.ThisWeek, n)
		case len(g.Older) < groupedOlderLimit:
			g.Older = append(g.Older, n)
		}
	}
	return g
}

func (r *postgresNotificationRepository) GetUnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", recipientID, false).Count(&count).Error
	return count, err
}

// MarkAsRead flags one unread row; false means it was already read.
func (r *postgresNotificationRepository) MarkAsRead(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected > 0, res.Error
}

// MarkAllAsRead flags every unread row of the recipient. It returns those
// rows after the update and the number of rows this call changed.
func (r *postgresNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID uint, at time.Time) ([]models.Notification, int64, error) {
	var (
		marked  []models.Notification
		changed int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Notification{}).
			Where("user_id = ? AND is_read = ?", recipientID, false).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Model(&models.Notification{}).
			Where("id IN ? AND is_read = ?", ids, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": at})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected

		return tx.Where("id IN ?", ids).Order("created_at DESC, id DESC").Find(&marked).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return marked, changed, nil
}
