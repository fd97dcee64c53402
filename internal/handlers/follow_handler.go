package handlers

import (
	"context"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// FollowHandler handles follow/unfollow and relationship status requests
type FollowHandler struct {
	relationships *services.RelationshipService
	log           *zap.Logger
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(relationships *services.RelationshipService, log *zap.Logger) *FollowHandler {
	return &FollowHandler{relationships: relationships, log: log}
}

// RegisterFollowRoutes registers follow-related routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.GET("/users/:id/relationship", h.GetRelationshipStatus)
	g.POST("/users/:id/follow", h.FollowUser)
	g.DELETE("/users/:id/follow", h.UnfollowUser)
	g.GET("/users/:id/followers", h.GetFollowers)
	g.GET("/users/:id/following", h.GetFollowing)
}

// GetRelationshipStatus reports how the actor relates to :id. Lookup
// failures answer with the all-false status rather than an error.
func (h *FollowHandler) GetRelationshipStatus(c echo.Context) error {
	targetID, err := paramID(c, "id")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	return success(c, h.relationships.GetRelationshipStatus(c.Request().Context(), actorFromContext(c), targetID))
}

// FollowUser follows a user
func (h *FollowHandler) FollowUser(c echo.Context) error {
	targetID, err := paramID(c, "id")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	if err := h.relationships.Follow(c.Request().Context(), actorFromContext(c), targetID); err != nil {
		return failure(c, h.log, err, "Failed to follow user")
	}
	return success(c, echo.Map{"following": true})
}

// UnfollowUser unfollows a user
func (h *FollowHandler) UnfollowUser(c echo.Context) error {
	targetID, err := paramID(c, "id")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	if err := h.relationships.Unfollow(c.Request().Context(), actorFromContext(c), targetID); err != nil {
		return failure(c, h.log, err, "Failed to unfollow user")
	}
	return success(c, echo.Map{"following": false})
}

// GetFollowers returns the ids of users following :id
func (h *FollowHandler) GetFollowers(c echo.Context) error {
	return h.list(c, h.relationships.ListFollowers, "Failed to list followers")
}

// GetFollowing returns the ids of users :id follows
func (h *FollowHandler) GetFollowing(c echo.Context) error {
	return h.list(c, h.relationships.ListFollowing, "Failed to list following")
}

func (h *FollowHandler) list(c echo.Context, fn func(ctx context.Context, userID uint, page, limit int) (*models.FollowList, error), fallback string) error {
	userID, err := paramID(c, "id")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	q, err := bindPage(c)
	if err != nil {
		return failure(c, h.log, err, "")
	}
	list, err := fn(c.Request().Context(), userID, q.Page, q.Limit)
	if err != nil {
		return failure(c, h.log, err, fallback)
	}
	return success(c, list)
}
