package models

import "time"

// Follow represents an Instagram-style follow relationship
type Follow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	FollowerID  uint      `json:"follower_id" gorm:"index;uniqueIndex:idx_follower_following"`
	FollowingID uint      `json:"following_id" gorm:"index;uniqueIndex:idx_follower_following"`
	CreatedAt   time.Time `json:"created_at"`
}

// FollowList is a page of user ids on one side of the follow graph.
type FollowList struct {
	UserIDs []uint `json:"user_ids"`
	Total   int64  `json:"total"`
}

// RelationshipStatus describes how the actor relates to another user.
type RelationshipStatus struct {
	IsFollowing     bool `json:"isFollowing"`
	IsFriend        bool `json:"isFriend"`
	RequestSent     bool `json:"requestSent"`
	RequestReceived bool `json:"requestReceived"`
}
