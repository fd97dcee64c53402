package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signed(t *testing.T, secret string, userID uint) string {
	t.Helper()
	claims := &models.JwtCustomClaims{
		UserID:   userID,
		Name:     "Ada",
		Username: "ada",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func run(mw echo.MiddlewareFunc, req *http.Request) (*models.Actor, error) {
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	var actor *models.Actor
	err := mw(func(c echo.Context) error {
		actor = ActorFrom(c)
		return nil
	})(c)
	return actor, err
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestJWTAuthMiddleware(t *testing.T) {
	mw := JWTAuthMiddleware(testSecret)

	tests := []struct {
		name   string
		header string
		query  string
		wantID uint
	}{
		{"bearer header", "Bearer " + signed(t, testSecret, 7), "", 7},
		{"query token", "", signed(t, testSecret, 8), 8},
		{"missing", "", "", 0},
		{"wrong scheme", "Token " + signed(t, testSecret, 7), "", 0},
		{"wrong secret", "Bearer " + signed(t, "other", 7), "", 0},
		{"zero user", "Bearer " + signed(t, testSecret, 0), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?" + TokenQueryParam + "=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			actor, err := run(mw, req)
			if tt.wantID == 0 {
				if statusOf(err) != http.StatusUnauthorized {
					t.Fatalf("got %v, want 401", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if actor.ID != tt.wantID || actor.Username != "ada" {
				t.Fatalf("actor = %+v", actor)
			}
		})
	}
}

type fakeVerifier struct {
	token *auth.Token
	err   error
}

func (f fakeVerifier) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	return f.token, f.err
}

func TestFirebaseAuthMiddleware(t *testing.T) {
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer id-token")
		return r
	}

	ok := fakeVerifier{token: &auth.Token{UID: "fb-1", Claims: map[string]interface{}{
		UserIDClaim: float64(12),
		"name":      "Grace",
	}}}
	actor, err := run(FirebaseAuthMiddleware(ok), req())
	if err != nil {
		t.Fatal(err)
	}
	if actor.ID != 12 || actor.Name != "Grace" {
		t.Fatalf("actor = %+v", actor)
	}

	unlinked := fakeVerifier{token: &auth.Token{UID: "fb-2", Claims: map[string]interface{}{}}}
	if _, err := run(FirebaseAuthMiddleware(unlinked), req()); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("unlinked token: %v", err)
	}

	bad := fakeVerifier{err: errors.New("expired")}
	if _, err := run(FirebaseAuthMiddleware(bad), req()); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("bad token: %v", err)
	}
}
