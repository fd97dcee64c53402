package router

import (
	"github.com/anonto42/nano-midea/relations/internal/handlers"
	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Dependencies are the wired services the HTTP surface exposes.
type Dependencies struct {
	Auth          echo.MiddlewareFunc
	Friendships   *services.FriendshipService
	Relationships *services.RelationshipService
	Notifications *services.NotificationService
	Hub           handlers.Subscriber
	Log           *zap.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, d Dependencies) {
	e.HTTPErrorHandler = handlers.HTTPErrorHandler(d.Log)

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// Everything under /api/v1 runs on behalf of an authenticated actor.
	api := e.Group("/api/v1")
	api.Use(d.Auth)

	handlers.NewFriendshipHandler(d.Friendships, d.Log).RegisterFriendshipRoutes(api)
	handlers.NewFollowHandler(d.Relationships, d.Log).RegisterFollowRoutes(api)
	handlers.NewNotificationHandler(d.Notifications, d.Log).RegisterNotificationRoutes(api)
	handlers.NewNotificationStreamHandler(d.Hub, d.Log).RegisterStreamRoutes(api)

	d.Log.Info("routes configured", zap.Int("count", len(e.Routes())))
}
