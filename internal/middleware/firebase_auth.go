package middleware

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/labstack/echo/v4"
)

// UserIDClaim is the custom claim that maps a Firebase user to a local user id.
const UserIDClaim = "user_id"

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware verifies Firebase ID tokens and stores the actor
// named by the user_id custom claim.
func FirebaseAuthMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}

			actor := actorFromFirebase(token)
			if !actor.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token is not linked to a user")
			}
			c.Set(ActorKey, actor)
			c.Set("firebaseUID", token.UID)
			return next(c)
		}
	}
}

func actorFromFirebase(token *auth.Token) *models.Actor {
	actor := &models.Actor{}
	// JSON numbers decode as float64.
	switch v := token.Claims[UserIDClaim].(type) {
	case float64:
		if v > 0 {
			actor.ID = uint(v)
		}
	case int64:
		if v > 0 {
			actor.ID = uint(v)
		}
	}
	actor.Email, _ = token.Claims["email"].(string)
	actor.Name, _ = token.Claims["name"].(string)
	actor.Username, _ = token.Claims["username"].(string)
	return actor
}
