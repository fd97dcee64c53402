package middleware

import (
	"net/http"
	"strings"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/labstack/echo/v4"
)

const (
	// ActorKey is the echo context key holding the *models.Actor.
	ActorKey = "actor"
	// TokenQueryParam carries the token for clients that cannot set headers,
	// such as browser WebSocket connections.
	TokenQueryParam = "access_token"
)

// ActorFrom returns the actor stored by the auth middleware, or nil.
func ActorFrom(c echo.Context) *models.Actor {
	actor, _ := c.Get(ActorKey).(*models.Actor)
	return actor
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// access_token query parameter.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam(TokenQueryParam); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
	}
	return parts[1], nil
}
