package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationLike           NotificationType = "LIKE"
	NotificationComment        NotificationType = "COMMENT"
	NotificationFollow         NotificationType = "FOLLOW"
	NotificationFriendAccepted NotificationType = "FRIEND_ACCEPTED"
	NotificationMention        NotificationType = "MENTION"
	NotificationClubInvite     NotificationType = "CLUB_INVITE"
	NotificationEventReminder  NotificationType = "EVENT_REMINDER"
)

// Notification represents a user notification (PostgreSQL)
type Notification struct {
	ID      uint             `json:"id" gorm:"primaryKey"`
	UserID  uint             `json:"user_id" gorm:"index;not null"` // recipient
	Type    NotificationType `json:"type" gorm:"size:30;index"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	// Data is an opaque display payload; lookups use the typed columns below.
	Data            datatypes.JSON `json:"data,omitempty"`
	FromUserID      uint           `json:"from_user_id" gorm:"index"`
	SubjectID       string         `json:"subject_id,omitempty" gorm:"size:64;index"` // post or comment id
	FriendRequestID *uint          `json:"friend_request_id,omitempty" gorm:"index"`
	// DedupeKey is set on LIKE and COMMENT rows only; other types leave it NULL.
	DedupeKey *string              `json:"-" gorm:"size:200;uniqueIndex"`
	Status    *FriendRequestStatus `json:"status,omitempty" gorm:"type:varchar(20)"`
	IsRead    bool                 `json:"is_read" gorm:"default:false;index"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
	CreatedAt time.Time            `json:"created_at" gorm:"index"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// InteractionKey identifies a LIKE or COMMENT notification by
// (type, subject, actor, recipient).
func InteractionKey(typ NotificationType, subjectID string, fromUserID, recipientID uint) string {
	return fmt.Sprintf("%s:%d:%d:%s", typ, fromUserID, recipientID, subjectID)
}

// NotificationPage is one page of a recipient's feed, newest first.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Total         int64          `json:"total"`
	TotalPages    int            `json:"totalPages"`
	HasNext       bool           `json:"hasNext"`
	HasPrev       bool           `json:"hasPrev"`
}

// GroupedNotifications buckets a feed by age.
type GroupedNotifications struct {
	Today     []Notification `json:"today"`
	Yesterday []Notification `json:"yesterday"`
	ThisWeek  []Notification `json:"thisWeek"`
	Older     []Notification `json:"older"`
}

// EventType is the kind of change carried by a NotificationEvent.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// NotificationEvent is a change on the notification relation pushed to subscribers.
type NotificationEvent struct {
	EventType EventType    `json:"eventType"`
	Record    Notification `json:"record"`
}
