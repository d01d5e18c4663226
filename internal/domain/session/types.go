// Package session manages server-side attribute bags correlated with a
// client across requests.
package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateActive sessions are resolvable and accept attribute changes.
	StateActive State = iota
	// StateExpired sessions were idle beyond the TTL and are being destroyed.
	StateExpired
	// StateDestroyed is terminal; the identifier is no longer resolvable.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Session is a mutable attribute bag keyed by an opaque identifier.
// Attribute access is guarded by the session's own mutex; concurrent writers
// to the same name see last-write-wins.
type Session struct {
	id        string
	createdAt time.Time
	// lastAccess holds UnixNano so touches never take the attribute lock.
	lastAccess atomic.Int64
	state      atomic.Int32

	mu    sync.RWMutex
	attrs map[string]any

	// invalidate is installed by the owning store.
	invalidate func() error
}

// New creates an active session. Only Store implementations call this.
func New(id string, now time.Time, invalidate func() error) *Session {
	s := &Session{
		id:         id,
		createdAt:  now.UTC(),
		invalidate: invalidate,
	}
	s.lastAccess.Store(now.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created (UTC).
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastAccess returns the last time the session was touched (UTC).
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load()).UTC()
}

// IdleFor returns how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastAccess.Load()))
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Valid reports whether the session is still active.
func (s *Session) Valid() bool { return s.State() == StateActive }

// Touch records an access at now. It is a no-op once the session left the
// active state.
func (s *Session) Touch(now time.Time) {
	if s.Valid() {
		s.lastAccess.Store(now.UnixNano())
	}
}

// MarkExpired moves an active session to expired. It reports false when the
// session was not active.
func (s *Session) MarkExpired() bool {
	return s.state.CompareAndSwap(int32(StateActive), int32(StateExpired))
}

// MarkDestroyed moves the session to its terminal state.
func (s *Session) MarkDestroyed() {
	s.state.Store(int32(StateDestroyed))
}

// usable reports whether attributes may still be accessed. Destroy hooks
// observe an expired session and can read its attributes.
func (s *Session) usable() bool { return s.State() != StateDestroyed }

// Invalidate destroys the session through its owning store.
func (s *Session) Invalidate() error {
	if !s.Valid() {
		return ErrSessionInvalidated
	}
	if s.invalidate == nil {
		s.MarkDestroyed()
		return nil
	}
	return s.invalidate()
}

// Attribute returns the named attribute.
func (s *Session) Attribute(name string) (any, bool, error) {
	if !s.usable() {
		return nil, false, ErrSessionInvalidated
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[name]
	return v, ok, nil
}

// SetAttribute stores value under name. A nil value removes the attribute.
func (s *Session) SetAttribute(name string, value any) error {
	if value == nil {
		return s.RemoveAttribute(name)
	}
	if !s.usable() {
		return ErrSessionInvalidated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[name] = value
	return nil
}

// RemoveAttribute deletes the named attribute.
func (s *Session) RemoveAttribute(name string) error {
	if !s.usable() {
		return ErrSessionInvalidated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, name)
	return nil
}

// AttributeNames returns the attribute names in sorted order.
func (s *Session) AttributeNames() ([]string, error) {
	if !s.usable() {
		return nil, ErrSessionInvalidated
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
