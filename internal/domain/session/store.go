package session

import (
	"context"
	"errors"
	"time"
)

// DestroyReason tells destroy hooks why a session went away.
type DestroyReason string

const (
	// ReasonExpired means the watchdog found the session idle beyond its TTL.
	ReasonExpired DestroyReason = "expired"
	// ReasonInvalidated means application code invalidated the session.
	ReasonInvalidated DestroyReason = "invalidated"
	// ReasonShutdown means the store was closed.
	ReasonShutdown DestroyReason = "shutdown"
)

// DestroyHook runs before a session is removed from the store.
// Errors and panics are logged by the store and never stop removal.
type DestroyHook func(ctx context.Context, s *Session, reason DestroyReason) error

// CreateHook runs after a session has been minted.
type CreateHook func(ctx context.Context, s *Session)

// Store is the sole owner of Session lifetime.
// This interface is defined in the domain to avoid circular imports.
type Store interface {
	// GetOrCreate returns the active session for id. When id is empty,
	// unknown, expired or destroyed a fresh session with a newly minted
	// identifier is returned and created is true. Concurrent calls with the
	// same id observe a single Session.
	GetOrCreate(ctx context.Context, id string) (s *Session, created bool, err error)

	// Get returns the active session for id.
	// Returns ErrSessionNotFound when it doesn't exist or is not active.
	Get(ctx context.Context, id string) (*Session, error)

	// Touch records an access to the session.
	Touch(ctx context.Context, id string) error

	// Destroy invalidates the session, running destroy hooks.
	Destroy(ctx context.Context, id string) error

	// DestroyInactive destroys every session idle longer than ttl and
	// returns how many were destroyed.
	DestroyInactive(ctx context.Context, ttl time.Duration) int

	// Size returns the number of live sessions.
	Size() int

	// OnCreate registers a hook run after a session is minted.
	OnCreate(hook CreateHook)

	// OnDestroy registers a hook run before a session is removed.
	OnDestroy(hook DestroyHook)
}

var (
	// ErrSessionNotFound is returned when a session doesn't exist or is no longer active.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInvalidated is returned on access to a session after it was destroyed.
	ErrSessionInvalidated = errors.New("session invalidated")
)
