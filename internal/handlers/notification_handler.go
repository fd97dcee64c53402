package handlers

import (
	"net/http"
	"strconv"

	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifications *services.NotificationService
	log           *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications *services.NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: log}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// GetNotifications returns paginated notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	q, err := bindPage(c)
	if err != nil {
		return failure(c, h.log, err, "")
	}
	page, err := h.notifications.GetNotifications(c.Request().Context(), actorFromContext(c), q.Page, q.Limit)
	if err != nil {
		return failure(c, h.log, err, "Failed to load notifications")
	}
	return success(c, page)
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	ctx, actor := c.Request().Context(), actorFromContext(c)

	grouped, err := h.notifications.GetGroupedNotifications(ctx, actor)
	if err != nil {
		return failure(c, h.log, err, "Failed to load notifications")
	}
	unread, err := h.notifications.GetUnreadNotificationCount(ctx, actor)
	if err != nil {
		return failure(c, h.log, err, "Failed to load notifications")
	}
	return success(c, echo.Map{"notifications": grouped, "unreadCount": unread})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	count, err := h.notifications.GetUnreadNotificationCount(c.Request().Context(), actorFromContext(c))
	if err != nil {
		return failure(c, h.log, err, "Failed to count notifications")
	}
	return success(c, echo.Map{"count": count})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return failure(c, h.log, echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID"), "")
	}
	if err := h.notifications.MarkNotificationAsRead(c.Request().Context(), actorFromContext(c), uint(id)); err != nil {
		return failure(c, h.log, err, "Failed to mark notification as read")
	}
	return success(c, echo.Map{"id": id, "isRead": true})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	n, err := h.notifications.MarkAllNotificationsAsRead(c.Request().Context(), actorFromContext(c))
	if err != nil {
		return failure(c, h.log, err, "Failed to mark notifications as read")
	}
	return success(c, echo.Map{"updated": n})
}
