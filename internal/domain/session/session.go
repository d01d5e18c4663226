package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// GenerateSessionID creates a cryptographically random session ID.
// Returns 64 hex characters (32 bytes).
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IDSource records where the client presented its session ID.
type IDSource int

const (
	// SourceNone means the request carried no session ID.
	SourceNone IDSource = iota
	// SourceCookie means the ID came from the session cookie.
	SourceCookie
	// SourceURL means the ID came from the query string.
	SourceURL
)

// Binding ties one request to the session store.
// It is written by the session interceptor and read by request.Context.
type Binding struct {
	store       Store
	requestedID string
	source      IDSource

	mu      sync.Mutex
	current *Session
	created bool
}

// NewBinding creates a binding for a request that presented requestedID.
// current is the already-resolved live session, or nil.
func NewBinding(store Store, requestedID string, source IDSource, current *Session) *Binding {
	if requestedID == "" {
		source = SourceNone
	}
	return &Binding{
		store:       store,
		requestedID: requestedID,
		source:      source,
		current:     current,
	}
}

// Session returns the bound session. When no live session is bound and
// create is true, the store mints one; otherwise (nil, nil) is returned.
func (b *Binding) Session(ctx context.Context, create bool) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil && b.current.Valid() {
		return b.current, nil
	}
	if !create {
		return nil, nil
	}

	s, created, err := b.store.GetOrCreate(ctx, b.requestedID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	b.current = s
	if created {
		b.created = true
	}
	return s, nil
}

// Current returns the bound session without creating one, or nil.
func (b *Binding) Current() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.Valid() {
		return b.current
	}
	return nil
}

// Created reports whether a session was minted during this request.
func (b *Binding) Created() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

// Ended reports whether the session bound to this request has since been
// destroyed and not replaced.
func (b *Binding) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil && !b.current.Valid()
}

// RequestedID returns the session ID presented by the client.
func (b *Binding) RequestedID() string { return b.requestedID }

// Source returns where the requested ID came from.
func (b *Binding) Source() IDSource { return b.source }

// RequestedIDValid reports whether the requested ID names the live bound session.
func (b *Binding) RequestedIDValid() bool {
	if b.requestedID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil && b.current.ID() == b.requestedID && b.current.Valid()
}

type contextKey struct{}

// NewContext returns a copy of parent carrying the binding.
func NewContext(parent context.Context, b *Binding) context.Context {
	return context.WithValue(parent, contextKey{}, b)
}

// FromContext returns the binding carried by ctx, if any.
func FromContext(ctx context.Context) (*Binding, bool) {
	b, ok := ctx.Value(contextKey{}).(*Binding)
	return b, ok && b != nil
}
