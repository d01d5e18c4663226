package interceptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
)

// Hook names used in logs and failure reports.
const (
	HookConnect      = "connect"
	HookRequestStart = "request_start"
	HookRequestEnd   = "request_end"
	HookDisconnect   = "disconnect"
)

// FailureObserver is told about every failing or panicking hook.
type FailureObserver func(hook, interceptor string)

// Chain runs interceptors around connections and requests.
// Interceptors are registered before serving starts; Chain is then safe for
// concurrent use.
type Chain struct {
	interceptors []Interceptor
	logger       *slog.Logger
	onFailure    FailureObserver
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger for teardown failures.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithFailureObserver registers a callback for hook failures.
func WithFailureObserver(fn FailureObserver) ChainOption {
	return func(c *Chain) {
		c.onFailure = fn
	}
}

// NewChain creates a chain running interceptors in the given order.
func NewChain(interceptors []Interceptor, opts ...ChainOption) *Chain {
	c := &Chain{
		interceptors: append([]Interceptor(nil), interceptors...),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of interceptors.
func (c *Chain) Len() int { return len(c.interceptors) }

// Connect runs connect hooks in order and returns the connection context
// plus a release func that runs disconnect hooks in reverse. release is
// idempotent and must be called when the connection closes.
//
// When a connect hook fails, disconnect hooks of the interceptors before it
// run immediately, the error is returned and release is a no-op.
func (c *Chain) Connect(ctx context.Context, conn *connection.Context) (context.Context, func() error, error) {
	started := 0
	for _, ic := range c.interceptors {
		if h, ok := ic.(ConnectHook); ok {
			next, err := c.callStart(HookConnect, ic, func() (context.Context, error) {
				return h.OnConnect(ctx, conn)
			})
			if err != nil {
				if terr := c.disconnect(ctx, conn, started); terr != nil {
					c.logger.Warn("teardown after failed connect", "conn_id", conn.ID, "error", terr)
				}
				return ctx, func() error { return nil }, err
			}
			ctx = next
		}
		started++
	}

	var once sync.Once
	var result error
	release := func() error {
		once.Do(func() {
			result = c.disconnect(ctx, conn, started)
		})
		return result
	}
	return ctx, release, nil
}

// StartRequest runs request-start hooks in order and returns the request
// context plus an end func that runs request-end hooks in reverse with the
// handler's error. end must be called exactly once, also when the handler
// panicked.
//
// When a start hook fails, end hooks of the interceptors before it run
// immediately with that error, the error is returned and end is a no-op.
func (c *Chain) StartRequest(ctx context.Context, raw *request.Raw) (context.Context, func(handlerErr error) error, error) {
	started := 0
	for _, ic := range c.interceptors {
		if h, ok := ic.(RequestStartHook); ok {
			next, err := c.callStart(HookRequestStart, ic, func() (context.Context, error) {
				return h.OnRequestStart(ctx, raw)
			})
			if err != nil {
				if terr := c.endRequest(ctx, raw, err, started); terr != nil {
					c.logger.Warn("teardown after failed request start", "error", terr)
				}
				return ctx, func(error) error { return nil }, err
			}
			ctx = next
		}
		started++
	}

	end := func(handlerErr error) error {
		return c.endRequest(ctx, raw, handlerErr, started)
	}
	return ctx, end, nil
}

func (c *Chain) endRequest(ctx context.Context, raw *request.Raw, handlerErr error, started int) error {
	var errs []error
	for i := started - 1; i >= 0; i-- {
		ic := c.interceptors[i]
		h, ok := ic.(RequestEndHook)
		if !ok {
			continue
		}
		if err := c.callTeardown(HookRequestEnd, ic, func() error {
			return h.OnRequestEnd(ctx, raw, handlerErr)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) disconnect(ctx context.Context, conn *connection.Context, started int) error {
	var errs []error
	for i := started - 1; i >= 0; i-- {
		ic := c.interceptors[i]
		h, ok := ic.(DisconnectHook)
		if !ok {
			continue
		}
		if err := c.callTeardown(HookDisconnect, ic, func() error {
			return h.OnDisconnect(ctx, conn)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// callStart runs a start hook, converting a panic into an error.
func (c *Chain) callStart(hook string, ic Interceptor, fn func() (context.Context, error)) (ctx context.Context, err error) {
	name := nameOf(ic)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interceptor %s: %s hook panicked: %v", name, hook, r)
		}
		if err != nil {
			c.fail(hook, name)
		}
	}()
	ctx, err = fn()
	if err != nil {
		return nil, fmt.Errorf("interceptor %s: %s: %w", name, hook, err)
	}
	if ctx == nil {
		return nil, fmt.Errorf("interceptor %s: %s hook returned nil context", name, hook)
	}
	return ctx, nil
}

// callTeardown runs a teardown hook. Failures are logged and returned; a
// panic never escapes.
func (c *Chain) callTeardown(hook string, ic Interceptor, fn func() error) (err error) {
	name := nameOf(ic)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interceptor %s: %s hook panicked: %v", name, hook, r)
		}
		if err != nil {
			c.logger.Error("interceptor teardown failed", "interceptor", name, "hook", hook, "error", err)
			c.fail(hook, name)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("interceptor %s: %s: %w", name, hook, err)
	}
	return nil
}

func (c *Chain) fail(hook, name string) {
	if c.onFailure != nil {
		c.onFailure(hook, name)
	}
}

func nameOf(ic Interceptor) string {
	if n, ok := ic.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", ic)
}
