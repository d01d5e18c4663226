package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// Default watchdog timing.
const (
	DefaultSessionTTL    = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Second
)

// SweepObserver is notified after every sweep with the number of sessions
// destroyed and the number still live.
type SweepObserver func(destroyed, live int)

// Watchdog periodically destroys sessions idle longer than the TTL.
// Cancellation is only observed between sweeps; a sweep in progress always
// completes.
type Watchdog struct {
	store    session.Store
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	observer SweepObserver

	lastSweep atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithWatchdogLogger sets the logger.
func WithWatchdogLogger(logger *slog.Logger) WatchdogOption {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// WithSweepObserver registers a callback run after each sweep.
func WithSweepObserver(fn SweepObserver) WatchdogOption {
	return func(w *Watchdog) {
		w.observer = fn
	}
}

// NewWatchdog creates a watchdog for store. Non-positive durations fall back
// to the defaults.
func NewWatchdog(store session.Store, ttl, interval time.Duration, opts ...WatchdogOption) *Watchdog {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	w := &Watchdog{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the sweep goroutine. Calling Start more than once is a no-op.
// The goroutine exits when ctx is cancelled or Stop is called.
func (w *Watchdog) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run(ctx)
		w.logger.Info("session watchdog started", "ttl", w.ttl, "interval", w.interval)
	})
}

func (w *Watchdog) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass immediately and returns the number of destroyed sessions.
func (w *Watchdog) Sweep(ctx context.Context) int {
	// Hooks may run arbitrary code; the sweep must not take the goroutine down.
	destroyed := 0
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("session sweep panicked", "panic", r)
			}
		}()
		destroyed = w.store.DestroyInactive(ctx, w.ttl)
	}()

	w.lastSweep.Store(time.Now().UnixNano())
	if w.observer != nil {
		w.observer(destroyed, w.store.Size())
	}
	if destroyed > 0 {
		w.logger.Info("expired idle sessions", "count", destroyed, "ttl", w.ttl)
	}
	return destroyed
}

// LastSweep returns when the last sweep finished, or the zero time.
func (w *Watchdog) LastSweep() time.Time {
	ns := w.lastSweep.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stop signals the goroutine to exit and waits for it.
// Safe to call multiple times, and before Start.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
}

// Interval returns the sweep period.
func (w *Watchdog) Interval() time.Duration { return w.interval }

// TTL returns the idle timeout.
func (w *Watchdog) TTL() time.Duration { return w.ttl }
