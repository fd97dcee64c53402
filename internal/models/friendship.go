package models

import (
	"fmt"
	"time"
)

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending   FriendRequestStatus = "PENDING"
	FriendRequestAccepted  FriendRequestStatus = "ACCEPTED"
	FriendRequestDeclined  FriendRequestStatus = "DECLINED"
	FriendRequestCancelled FriendRequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s FriendRequestStatus) Terminal() bool {
	return s == FriendRequestAccepted || s == FriendRequestDeclined || s == FriendRequestCancelled
}

// Ptr returns a pointer to a copy of s, for nullable columns.
func (s FriendRequestStatus) Ptr() *FriendRequestStatus {
	return &s
}

// FriendRequest represents a friend request between two users
type FriendRequest struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	FromID uint `json:"from_id" gorm:"index;not null"`
	ToID   uint `json:"to_id" gorm:"index;not null"`
	// PairKey is unique per unordered pair, so at most one row exists between two users.
	PairKey   string              `json:"-" gorm:"size:64;uniqueIndex;not null"`
	Status    FriendRequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// PairKey returns the order-independent key for two user ids.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Friend is one direction of an accepted friendship. Rows always exist in pairs.
type Friend struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;uniqueIndex:idx_user_friend"`
	FriendID  uint      `json:"friend_id" gorm:"uniqueIndex:idx_user_friend"`
	CreatedAt time.Time `json:"created_at"`
}
