package handlers

import (
	"context"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// FriendshipHandler handles HTTP requests related to friend requests and friendships
type FriendshipHandler struct {
	friends *services.FriendshipService
	log     *zap.Logger
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(friends *services.FriendshipService, log *zap.Logger) *FriendshipHandler {
	return &FriendshipHandler{friends: friends, log: log}
}

// RegisterFriendshipRoutes registers friendship-related routes
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.GET("/friends", h.GetFriends)
	g.DELETE("/friends/:userId", h.RemoveFriend)
	g.GET("/friends/requests/pending", h.GetPendingFriendRequests)
	g.POST("/friends/requests/:userId", h.SendFriendRequest)
	g.DELETE("/friends/requests/:userId", h.CancelFriendRequest)
	g.POST("/friends/requests/:userId/accept", h.AcceptFriendRequest)
	g.POST("/friends/requests/:userId/decline", h.DeclineFriendRequest)
}

// SendFriendRequest sends a friend request to :userId
func (h *FriendshipHandler) SendFriendRequest(c echo.Context) error {
	targetID, err := paramID(c, "userId")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	req, err := h.friends.SendFriendRequest(c.Request().Context(), actorFromContext(c), targetID)
	if err != nil {
		return failure(c, h.log, err, "Failed to send friend request")
	}
	return success(c, req)
}

// CancelFriendRequest withdraws the request the actor sent to :userId
func (h *FriendshipHandler) CancelFriendRequest(c echo.Context) error {
	return h.transition(c, h.friends.CancelFriendRequest, "Failed to cancel friend request")
}

// AcceptFriendRequest accepts the request :userId sent to the actor
func (h *FriendshipHandler) AcceptFriendRequest(c echo.Context) error {
	return h.transition(c, h.friends.AcceptFriendRequest, "Failed to accept friend request")
}

// DeclineFriendRequest declines the request :userId sent to the actor
func (h *FriendshipHandler) DeclineFriendRequest(c echo.Context) error {
	return h.transition(c, h.friends.DeclineFriendRequest, "Failed to decline friend request")
}

type transitionFunc func(ctx context.Context, actor *models.Actor, otherID uint) (*services.TransitionResult, error)

func (h *FriendshipHandler) transition(c echo.Context, fn transitionFunc, fallback string) error {
	otherID, err := paramID(c, "userId")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	res, err := fn(c.Request().Context(), actorFromContext(c), otherID)
	if err != nil {
		return failure(c, h.log, err, fallback)
	}
	return success(c, res)
}

// RemoveFriend removes the friendship with :userId
func (h *FriendshipHandler) RemoveFriend(c echo.Context) error {
	targetID, err := paramID(c, "userId")
	if err != nil {
		return failure(c, h.log, err, "")
	}
	if err := h.friends.RemoveFriend(c.Request().Context(), actorFromContext(c), targetID); err != nil {
		return failure(c, h.log, err, "Failed to remove friend")
	}
	return success(c, echo.Map{"removed": true})
}

// GetFriends lists the actor's friend ids
func (h *FriendshipHandler) GetFriends(c echo.Context) error {
	ids, err := h.friends.ListFriends(c.Request().Context(), actorFromContext(c))
	if err != nil {
		return failure(c, h.log, err, "Failed to list friends")
	}
	return success(c, echo.Map{"friends": ids, "total": len(ids)})
}

// GetPendingFriendRequests lists requests awaiting the actor's answer
func (h *FriendshipHandler) GetPendingFriendRequests(c echo.Context) error {
	reqs, err := h.friends.ListPendingRequests(c.Request().Context(), actorFromContext(c))
	if err != nil {
		return failure(c, h.log, err, "Failed to list friend requests")
	}
	return success(c, echo.Map{"requests": reqs, "total": len(reqs)})
}
