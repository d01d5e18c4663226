// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// shardCount must be a power of two.
const shardCount = 32

// maxIDAttempts bounds retries when a freshly generated ID collides.
const maxIDAttempts = 8

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// SessionStore implements session.Store with a sharded in-memory map.
// Shards are selected by xxhash of the session ID, so touches and lookups
// only contend with requests whose sessions live on the same shard.
type SessionStore struct {
	shards [shardCount]*shard
	group  singleflight.Group

	logger *slog.Logger
	now    func() time.Time
	newID  func() (string, error)

	hooksMu      sync.RWMutex
	createHooks  []session.CreateHook
	destroyHooks []session.DestroyHook
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithStoreLogger sets the logger used for hook failures.
func WithStoreLogger(logger *slog.Logger) SessionStoreOption {
	return func(s *SessionStore) {
		s.logger = logger
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		s.now = now
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() (string, error)) SessionStoreOption {
	return func(s *SessionStore) {
		s.newID = gen
	}
}

// NewSessionStore creates an empty session store.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		logger: slog.Default(),
		now:    time.Now,
		newID:  session.GenerateSessionID,
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*session.Session)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)&(shardCount-1)]
}

// lookup returns the active session stored under id.
func (s *SessionStore) lookup(id string) *session.Session {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if sess, ok := sh.sessions[id]; ok && sess.Valid() {
		return sess
	}
	return nil
}

type getOrCreateResult struct {
	sess    *session.Session
	created bool
}

// GetOrCreate returns the active session for id or mints a new one.
// Callers racing on the same unknown id share one flight and so one new
// session. The unknown id itself is never stored and never resolves later.
func (s *SessionStore) GetOrCreate(ctx context.Context, id string) (*session.Session, bool, error) {
	if id == "" {
		sess, err := s.mint(ctx, "")
		if err != nil {
			return nil, false, err
		}
		return sess, true, nil
	}

	if sess := s.lookup(id); sess != nil {
		return sess, false, nil
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		if sess := s.lookup(id); sess != nil {
			return getOrCreateResult{sess: sess}, nil
		}
		sess, err := s.mint(ctx, id)
		if err != nil {
			return nil, err
		}
		return getOrCreateResult{sess: sess, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(getOrCreateResult)
	return res.sess, res.created, nil
}

// mint creates a session under a fresh ID that differs from requested.
func (s *SessionStore) mint(ctx context.Context, requested string) (*session.Session, error) {
	var sess *session.Session
	for attempt := 0; attempt < maxIDAttempts && sess == nil; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}
		if id == requested {
			continue
		}

		sh := s.shardFor(id)
		sh.mu.Lock()
		if _, taken := sh.sessions[id]; !taken {
			sess = session.New(id, s.now(), s.invalidator(id))
			sh.sessions[id] = sess
		}
		sh.mu.Unlock()
	}
	if sess == nil {
		return nil, fmt.Errorf("failed to mint session: %d ID collisions", maxIDAttempts)
	}

	s.hooksMu.RLock()
	hooks := s.createHooks
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, sess)
	}
	return sess, nil
}

func (s *SessionStore) invalidator(id string) func() error {
	return func() error {
		return s.Destroy(context.Background(), id)
	}
}

// Get returns the active session for id.
func (s *SessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, session.ErrSessionNotFound
	}
	if sess := s.lookup(id); sess != nil {
		return sess, nil
	}
	return nil, session.ErrSessionNotFound
}

// Touch records an access to the session.
func (s *SessionStore) Touch(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	if !ok || !sess.Valid() {
		return session.ErrSessionNotFound
	}
	sess.Touch(s.now())
	return nil
}

// Destroy invalidates the session with the given ID.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	if !ok || !sess.Valid() {
		sh.mu.Unlock()
		return session.ErrSessionNotFound
	}
	delete(sh.sessions, id)
	sh.mu.Unlock()

	s.finish(ctx, sess, session.ReasonInvalidated)
	return nil
}

// DestroyInactive destroys every session idle strictly longer than ttl.
// Shards are swept one at a time.
func (s *SessionStore) DestroyInactive(ctx context.Context, ttl time.Duration) int {
	return s.sweep(ctx, session.ReasonExpired, func(sess *session.Session, now time.Time) bool {
		return sess.IdleFor(now) > ttl
	})
}

// Close destroys every remaining session.
func (s *SessionStore) Close(ctx context.Context) int {
	return s.sweep(ctx, session.ReasonShutdown, func(*session.Session, time.Time) bool {
		return true
	})
}

func (s *SessionStore) sweep(ctx context.Context, reason session.DestroyReason, match func(*session.Session, time.Time) bool) int {
	destroyed := 0
	for _, sh := range s.shards {
		now := s.now()
		var batch []*session.Session

		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if !match(sess, now) || !sess.MarkExpired() {
				continue
			}
			batch = append(batch, sess)
			delete(sh.sessions, id)
		}
		sh.mu.Unlock()

		for _, sess := range batch {
			s.finish(ctx, sess, reason)
		}
		destroyed += len(batch)
	}
	if destroyed > 0 {
		s.logger.Debug("destroyed sessions", "count", destroyed, "reason", reason)
	}
	return destroyed
}

// finish runs destroy hooks and marks the session destroyed.
// Callers must have removed sess from its shard already.
func (s *SessionStore) finish(ctx context.Context, sess *session.Session, reason session.DestroyReason) {
	s.hooksMu.RLock()
	hooks := s.destroyHooks
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		s.runDestroyHook(ctx, hook, sess, reason)
	}
	sess.MarkDestroyed()
}

func (s *SessionStore) runDestroyHook(ctx context.Context, hook session.DestroyHook, sess *session.Session, reason session.DestroyReason) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session destroy hook panicked",
				"session_id", sess.ID(),
				"reason", reason,
				"panic", r,
			)
		}
	}()
	if err := hook(ctx, sess, reason); err != nil {
		s.logger.Warn("session destroy hook failed",
			"session_id", sess.ID(),
			"reason", reason,
			"error", err,
		)
	}
}

// OnCreate registers a hook run after each session is minted.
func (s *SessionStore) OnCreate(hook session.CreateHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.createHooks = append(s.createHooks, hook)
}

// OnDestroy registers a hook run before each session is removed.
func (s *SessionStore) OnDestroy(hook session.DestroyHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.destroyHooks = append(s.destroyHooks, hook)
}

// Size returns the number of live sessions.
func (s *SessionStore) Size() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
