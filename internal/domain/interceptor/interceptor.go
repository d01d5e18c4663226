// Package interceptor runs lifecycle hooks around connections and requests.
//
// An interceptor implements any subset of ConnectHook, RequestStartHook,
// RequestEndHook and DisconnectHook. Start hooks run in registration order;
// teardown hooks run in reverse over the interceptors that were started.
package interceptor

import (
	"context"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
)

// Interceptor is a value implementing at least one hook interface.
type Interceptor any

// Named lets an interceptor choose the name used in logs and metrics.
type Named interface {
	Name() string
}

// ConnectHook runs when a connection is accepted. The returned context is
// the connection context for every later hook and request.
type ConnectHook interface {
	OnConnect(ctx context.Context, conn *connection.Context) (context.Context, error)
}

// RequestStartHook runs before the request is routed.
type RequestStartHook interface {
	OnRequestStart(ctx context.Context, raw *request.Raw) (context.Context, error)
}

// RequestEndHook runs after the handler returned, panicked, or was never
// reached. handlerErr is the failure, if any.
type RequestEndHook interface {
	OnRequestEnd(ctx context.Context, raw *request.Raw, handlerErr error) error
}

// DisconnectHook runs when the connection is closed.
type DisconnectHook interface {
	OnDisconnect(ctx context.Context, conn *connection.Context) error
}

// ConnectFunc is an adapter to allow the use of ordinary functions as ConnectHooks.
type ConnectFunc func(ctx context.Context, conn *connection.Context) (context.Context, error)

// OnConnect calls f(ctx, conn).
func (f ConnectFunc) OnConnect(ctx context.Context, conn *connection.Context) (context.Context, error) {
	return f(ctx, conn)
}

// RequestStartFunc is an adapter to allow the use of ordinary functions as RequestStartHooks.
type RequestStartFunc func(ctx context.Context, raw *request.Raw) (context.Context, error)

// OnRequestStart calls f(ctx, raw).
func (f RequestStartFunc) OnRequestStart(ctx context.Context, raw *request.Raw) (context.Context, error) {
	return f(ctx, raw)
}

// RequestEndFunc is an adapter to allow the use of ordinary functions as RequestEndHooks.
type RequestEndFunc func(ctx context.Context, raw *request.Raw, handlerErr error) error

// OnRequestEnd calls f(ctx, raw, handlerErr).
func (f RequestEndFunc) OnRequestEnd(ctx context.Context, raw *request.Raw, handlerErr error) error {
	return f(ctx, raw, handlerErr)
}

// DisconnectFunc is an adapter to allow the use of ordinary functions as DisconnectHooks.
type DisconnectFunc func(ctx context.Context, conn *connection.Context) error

// OnDisconnect calls f(ctx, conn).
func (f DisconnectFunc) OnDisconnect(ctx context.Context, conn *connection.Context) error {
	return f(ctx, conn)
}

// Hooks bundles optional hook functions under a name. Nil fields are skipped.
type Hooks struct {
	Label        string
	Connect      ConnectFunc
	RequestStart RequestStartFunc
	RequestEnd   RequestEndFunc
	Disconnect   DisconnectFunc
}

func (h *Hooks) Name() string { return h.Label }

func (h *Hooks) OnConnect(ctx context.Context, conn *connection.Context) (context.Context, error) {
	if h.Connect == nil {
		return ctx, nil
	}
	return h.Connect(ctx, conn)
}

func (h *Hooks) OnRequestStart(ctx context.Context, raw *request.Raw) (context.Context, error) {
	if h.RequestStart == nil {
		return ctx, nil
	}
	return h.RequestStart(ctx, raw)
}

func (h *Hooks) OnRequestEnd(ctx context.Context, raw *request.Raw, handlerErr error) error {
	if h.RequestEnd == nil {
		return nil
	}
	return h.RequestEnd(ctx, raw, handlerErr)
}

func (h *Hooks) OnDisconnect(ctx context.Context, conn *connection.Context) error {
	if h.Disconnect == nil {
		return nil
	}
	return h.Disconnect(ctx, conn)
}

// Compile-time checks.
var (
	_ ConnectHook      = ConnectFunc(nil)
	_ RequestStartHook = RequestStartFunc(nil)
	_ RequestEndHook   = RequestEndFunc(nil)
	_ DisconnectHook   = DisconnectFunc(nil)
	_ ConnectHook      = (*Hooks)(nil)
	_ RequestStartHook = (*Hooks)(nil)
	_ RequestEndHook   = (*Hooks)(nil)
	_ DisconnectHook   = (*Hooks)(nil)
)
