package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendshipRepository defines the interface for friend request and friend edge operations
type FriendshipRepository interface {
	CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error
	FindRequestBetween(ctx context.Context, a, b uint) (*models.FriendRequest, error)
	HasPendingRequest(ctx context.Context, fromID, toID uint) (bool, error)
	TransitionRequest(ctx context.Context, id uint, to models.FriendRequestStatus) (bool, error)
	DeleteAcceptedBetween(ctx context.Context, a, b uint) error
	ListIncomingPending(ctx context.Context, userID uint) ([]models.FriendRequest, error)

	CreateFriendPair(ctx context.Context, a, b uint) error
	DeleteFriendPair(ctx context.Context, a, b uint) (int64, error)
	IsFriend(ctx context.Context, userID, otherID uint) (bool, error)
	ListFriendIDs(ctx context.Context, userID uint) ([]uint, error)
}

// PostgresFriendshipRepository implements FriendshipRepository for PostgreSQL
type PostgresFriendshipRepository struct {
	db *gorm.DB
}

// NewPostgresFriendshipRepository creates a new PostgresFriendshipRepository
func NewPostgresFriendshipRepository(db *gorm.DB) *PostgresFriendshipRepository {
	return &PostgresFriendshipRepository{db: db}
}

// CreateFriendRequest inserts a PENDING request. A row already present for the
// pair surfaces as ErrDuplicate through the pair_key unique index.
func (r *PostgresFriendshipRepository) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	req.PairKey = models.PairKey(req.FromID, req.ToID)
	req.Status = models.FriendRequestPending
	return translate(r.db.WithContext(ctx).Create(req).Error)
}

// FindRequestBetween returns the request row for the unordered pair, in any state.
func (r *PostgresFriendshipRepository) FindRequestBetween(ctx context.Context, a, b uint) (*models.FriendRequest, error) {
	var req models.FriendRequest
	if err := r.db.WithContext(ctx).Where("pair_key = ?", models.PairKey(a, b)).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *PostgresFriendshipRepository) HasPendingRequest(ctx context.Context, fromID, toID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FriendRequest{}).
		Where("from_id = ? AND to_id = ? AND status = ?", fromID, toID, models.FriendRequestPending).
		Count(&count).Error
	return count > 0, err
}

// TransitionRequest moves a PENDING request to a terminal status. It reports
// false when the row was no longer PENDING, i.e. another caller won.
func (r *PostgresFriendshipRepository) TransitionRequest(ctx context.Context, id uint, to models.FriendRequestStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", id, models.FriendRequestPending).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PostgresFriendshipRepository) DeleteAcceptedBetween(ctx context.Context, a, b uint) error {
	return r.db.WithContext(ctx).
		Where("pair_key = ? AND status = ?", models.PairKey(a, b), models.FriendRequestAccepted).
		Delete(&models.FriendRequest{}).Error
}

// ListIncomingPending retrieves the PENDING requests addressed to userID, newest first
func (r *PostgresFriendshipRepository) ListIncomingPending(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("to_id = ? AND status = ?", userID, models.FriendRequestPending).
		Order("created_at DESC, id DESC").
		Find(&requests).Error
	return requests, err
}

// CreateFriendPair inserts both directions of the edge, skipping rows that already exist.
func (r *PostgresFriendshipRepository) CreateFriendPair(ctx context.Context, a, b uint) error {
	rows := []models.Friend{
		{UserID: a, FriendID: b},
		{UserID: b, FriendID: a},
	}
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error)
}

func (r *PostgresFriendshipRepository) DeleteFriendPair(ctx context.Context, a, b uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Delete(&models.Friend{})
	return res.RowsAffected, res.Error
}

func (r *PostgresFriendshipRepository) IsFriend(ctx context.Context, userID, otherID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Friend{}).
		Where("user_id = ? AND friend_id = ?", userID, otherID).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresFriendshipRepository) ListFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Friend{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Pluck("friend_id", &ids).Error
	return ids, err
}
