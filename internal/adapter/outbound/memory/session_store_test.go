package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionStore_GetOrCreate_EmptyID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	sess, created, err := store.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if len(sess.ID()) != 64 {
		t.Errorf("ID length = %d, want 64", len(sess.ID()))
	}

	got, created, err := store.GetOrCreate(ctx, sess.ID())
	if err != nil {
		t.Fatalf("GetOrCreate(existing) error: %v", err)
	}
	if created || got != sess {
		t.Errorf("GetOrCreate(existing) = %p, %v; want %p, false", got, created, sess)
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d, want 1", store.Size())
	}
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	_, err := store.Get(ctx, "nonexistent")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	if err := store.Touch(ctx, "nonexistent"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Touch() error = %v, want ErrSessionNotFound", err)
	}
	if err := store.Destroy(ctx, "nonexistent"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Destroy() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_ConcurrentGetOrCreate_SameUnknownID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	release := make(chan struct{})
	var minted atomic.Int32
	store := NewSessionStore(WithIDGenerator(func() (string, error) {
		<-release
		minted.Add(1)
		return session.GenerateSessionID()
	}))

	const workers = 64
	var (
		wg      sync.WaitGroup
		entered atomic.Int32
	)
	results := make([]*session.Session, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entered.Add(1)
			sess, _, err := store.GetOrCreate(ctx, "stale-cookie-id")
			if err != nil {
				t.Errorf("GetOrCreate() error: %v", err)
				return
			}
			results[i] = sess
		}(i)
	}

	// Hold the first mint until every worker is queued behind it.
	for entered.Load() < workers {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, sess := range results {
		if sess != results[0] {
			t.Fatalf("worker %d got session %p, worker 0 got %p", i, sess, results[0])
		}
	}
	if results[0].ID() == "stale-cookie-id" {
		t.Error("store adopted the client-supplied ID")
	}
	if minted.Load() != 1 {
		t.Errorf("minted %d IDs, want 1", minted.Load())
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d, want 1", store.Size())
	}
}

func TestSessionStore_UnknownIDNeverResolves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	first, created, err := store.GetOrCreate(ctx, "client-chosen")
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if !created || first.ID() == "client-chosen" {
		t.Fatalf("GetOrCreate(unknown) = %s, %v; want a fresh ID", first.ID(), created)
	}

	if _, err := store.Get(ctx, "client-chosen"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get(client-chosen) error = %v, want ErrSessionNotFound", err)
	}
	second, created, _ := store.GetOrCreate(ctx, "client-chosen")
	if !created || second == first {
		t.Error("client-chosen ID resolved to an earlier session")
	}
	if err := store.Touch(ctx, "client-chosen"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Touch(client-chosen) error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_DestroyedIDGetsFreshSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	first, _, _ := store.GetOrCreate(ctx, "")
	if err := first.Invalidate(); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if first.State() != session.StateDestroyed {
		t.Errorf("State() = %v, want destroyed", first.State())
	}

	second, created, err := store.GetOrCreate(ctx, first.ID())
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if !created {
		t.Error("created = false for destroyed ID")
	}
	if second.ID() == first.ID() {
		t.Error("destroyed ID was reissued")
	}

	if _, err := store.Get(ctx, first.ID()); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get(destroyed) error = %v, want ErrSessionNotFound", err)
	}
	third, created, _ := store.GetOrCreate(ctx, first.ID())
	if !created || third == second {
		t.Error("destroyed ID resolved to its replacement session")
	}
}

func TestSessionStore_DestroyInactive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := NewSessionStore(WithClock(clock.Now))
	ttl := 10 * time.Minute

	idle, _, _ := store.GetOrCreate(ctx, "")
	busy, _, _ := store.GetOrCreate(ctx, "")

	clock.Advance(ttl)
	if err := store.Touch(ctx, busy.ID()); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}

	// Idle for exactly the TTL: not yet.
	if n := store.DestroyInactive(ctx, ttl); n != 0 {
		t.Fatalf("DestroyInactive() at TTL = %d, want 0", n)
	}

	clock.Advance(time.Second)
	if n := store.DestroyInactive(ctx, ttl); n != 1 {
		t.Fatalf("DestroyInactive() past TTL = %d, want 1", n)
	}
	if idle.Valid() {
		t.Error("idle session still valid after sweep")
	}
	if !busy.Valid() {
		t.Error("recently touched session destroyed")
	}
	if _, err := store.Get(ctx, idle.ID()); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get(idle) error = %v, want ErrSessionNotFound", err)
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d, want 1", store.Size())
	}
}

func TestSessionStore_DestroyHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := NewSessionStore(WithClock(clock.Now))

	var (
		mu      sync.Mutex
		reasons []session.DestroyReason
		seen    []any
	)
	store.OnDestroy(func(ctx context.Context, s *session.Session, reason session.DestroyReason) error {
		panic("boom")
	})
	store.OnDestroy(func(ctx context.Context, s *session.Session, reason session.DestroyReason) error {
		v, _, err := s.Attribute("user")
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, reason)
		seen = append(seen, v)
		return err
	})
	store.OnDestroy(func(ctx context.Context, s *session.Session, reason session.DestroyReason) error {
		return errors.New("hook failed")
	})

	var created atomic.Int32
	store.OnCreate(func(ctx context.Context, s *session.Session) {
		created.Add(1)
	})

	a, _, _ := store.GetOrCreate(ctx, "")
	b, _, _ := store.GetOrCreate(ctx, "")
	_ = a.SetAttribute("user", "alice")
	_ = b.SetAttribute("user", "bob")

	if err := a.Invalidate(); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	clock.Advance(time.Hour)
	if n := store.DestroyInactive(ctx, time.Minute); n != 1 {
		t.Fatalf("DestroyInactive() = %d, want 1", n)
	}

	if created.Load() != 2 {
		t.Errorf("create hooks ran %d times, want 2", created.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 2 || reasons[0] != session.ReasonInvalidated || reasons[1] != session.ReasonExpired {
		t.Errorf("reasons = %v, want [invalidated expired]", reasons)
	}
	if len(seen) != 2 || seen[0] != "alice" || seen[1] != "bob" {
		t.Errorf("hook saw attributes %v, want [alice bob]", seen)
	}
	if b.State() != session.StateDestroyed {
		t.Errorf("State() = %v, want destroyed after sweep", b.State())
	}
}

func TestSessionStore_IDCollision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ids := []string{"dup", "dup", "dup", "fresh"}
	var i int
	store := NewSessionStore(WithIDGenerator(func() (string, error) {
		id := ids[i]
		i++
		return id, nil
	}))

	first, _, _ := store.GetOrCreate(ctx, "")
	second, _, err := store.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if first.ID() != "dup" || second.ID() != "fresh" {
		t.Errorf("IDs = %q, %q; want dup, fresh", first.ID(), second.ID())
	}
}

func TestSessionStore_IDGeneratorError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("entropy exhausted")
	store := NewSessionStore(WithIDGenerator(func() (string, error) {
		return "", wantErr
	}))

	if _, _, err := store.GetOrCreate(context.Background(), ""); !errors.Is(err, wantErr) {
		t.Errorf("GetOrCreate() error = %v, want %v", err, wantErr)
	}
}

func TestSessionStore_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	var shutdown atomic.Int32
	store.OnDestroy(func(ctx context.Context, s *session.Session, reason session.DestroyReason) error {
		if reason == session.ReasonShutdown {
			shutdown.Add(1)
		}
		return nil
	})

	for i := 0; i < 5; i++ {
		_, _, _ = store.GetOrCreate(ctx, "")
	}
	if n := store.Close(ctx); n != 5 {
		t.Errorf("Close() = %d, want 5", n)
	}
	if shutdown.Load() != 5 {
		t.Errorf("shutdown hooks ran %d times, want 5", shutdown.Load())
	}
	if store.Size() != 0 {
		t.Errorf("Size() = %d, want 0", store.Size())
	}
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, _, err := store.GetOrCreate(ctx, "")
			if err != nil {
				t.Errorf("GetOrCreate() error: %v", err)
				return
			}
			_ = store.Touch(ctx, sess.ID())
			_ = sess.SetAttribute("n", 1)
			_, _ = store.Get(ctx, sess.ID())
			store.DestroyInactive(ctx, time.Hour)
		}()
	}
	wg.Wait()

	if store.Size() != 50 {
		t.Errorf("Size() = %d, want 50", store.Size())
	}
}
