package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// Actor is the authenticated principal on whose behalf an operation runs.
// It is resolved by the auth middleware and passed explicitly to services.
type Actor struct {
	ID       uint   `json:"id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// Authenticated reports whether a is a usable principal.
func (a *Actor) Authenticated() bool {
	return a != nil && a.ID != 0
}

// DisplayName is the label used in notification messages.
func (a *Actor) DisplayName() string {
	switch {
	case a.Name != "" && a.Username != "":
		return a.Name + " (@" + a.Username + ")"
	case a.Name != "":
		return a.Name
	case a.Username != "":
		return "@" + a.Username
	default:
		return "Someone"
	}
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the verified claims into an Actor.
func (c *JwtCustomClaims) Actor() *Actor {
	return &Actor{
		ID:       c.UserID,
		Email:    c.Email,
		Name:     c.Name,
		Username: c.Username,
	}
}
