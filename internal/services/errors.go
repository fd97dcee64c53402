package services

import "github.com/pkg/errors"

var (
	// ErrUnauthenticated is returned when no actor is attached to the call.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the actor is not a party to the resource.
	ErrForbidden = errors.New("not allowed to act on this resource")
	// ErrSelfRequest rejects relationship operations that target the actor.
	ErrSelfRequest = errors.New("cannot target yourself")
	// ErrInvalidUser rejects a missing or zero user id.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrRequestExists is returned when the pair already has a friend request row.
	ErrRequestExists = errors.New("friend request already exists")
	// ErrNoPendingRequest is returned when no request exists between the pair.
	ErrNoPendingRequest = errors.New("no pending friend request")
	// ErrNotFound is returned for unknown notifications and missing follow edges.
	ErrNotFound = errors.New("not found")
)
