package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Sentinel-Gate/httpbridge/internal/ctxkey"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/interceptor"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/route"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// ErrRouteNotFound is returned when no route matches the request path.
var ErrRouteNotFound = errors.New("route not found")

// ErrHandlerNotRegistered is returned when a route names an unknown handler.
var ErrHandlerNotRegistered = errors.New("handler not registered")

// BridgeConfig wires a BridgeService.
type BridgeConfig struct {
	Table    *route.Table
	Registry *Registry
	Chain    *interceptor.Chain
	// CookieName is the session cookie name. Defaults to SESSIONID.
	CookieName string
	// Request holds defaults for every request view.
	Request request.Options
}

// BridgeService drives one request through the interceptor chain, the route
// table and the application handler.
type BridgeService struct {
	table      *route.Table
	registry   *Registry
	chain      *interceptor.Chain
	cookieName string
	reqOpts    request.Options
	logger     *slog.Logger
}

// NewBridgeService creates a BridgeService.
func NewBridgeService(cfg BridgeConfig, logger *slog.Logger) *BridgeService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Chain == nil {
		cfg.Chain = interceptor.NewChain(nil)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = interceptor.DefaultCookieName
	}
	return &BridgeService{
		table:      cfg.Table,
		registry:   cfg.Registry,
		chain:      cfg.Chain,
		cookieName: cfg.CookieName,
		reqOpts:    cfg.Request,
		logger:     logger,
	}
}

// Table returns the route table.
func (b *BridgeService) Table() *route.Table { return b.table }

// Connect runs the connect hooks for a new connection. The returned release
// func must be called when the connection closes.
func (b *BridgeService) Connect(ctx context.Context, conn *connection.Context) (context.Context, func() error, error) {
	return b.chain.Connect(ctx, conn)
}

// Serve handles one request. It never panics and always runs the request-end
// hooks of every started interceptor.
func (b *BridgeService) Serve(ctx context.Context, w http.ResponseWriter, raw *request.Raw) {
	logger := ctxkey.Logger(ctx, b.logger)

	ctx, end, err := b.chain.StartRequest(ctx, raw)
	if err != nil {
		logger.Error("request rejected by interceptor", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sw := newSessionWriter(ctx, w, b.cookieName, b.cookiePath())
	var handlerErr error
	defer func() {
		if terr := end(handlerErr); terr != nil {
			logger.Warn("request teardown failed", "error", terr)
		}
	}()

	handlerErr = b.dispatch(ctx, sw, raw, logger)
	if handlerErr != nil {
		b.writeError(sw, handlerErr, logger)
		return
	}
	// Commit headers so a session created by a handler that wrote nothing
	// still reaches the client.
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
}

// dispatch resolves the route and runs the handler, converting panics to
// errors.
func (b *BridgeService) dispatch(ctx context.Context, w *sessionWriter, raw *request.Raw, logger *slog.Logger) (err error) {
	comps, err := route.Resolve(raw.URI, b.table)
	if err != nil {
		return err
	}

	name := NotFoundHandler
	if comps.Matched() {
		name = comps.Route.Handler
	}
	h, ok := b.registry.Lookup(name)
	if !ok {
		if !comps.Matched() {
			return fmt.Errorf("%w: %s", ErrRouteNotFound, comps.Path())
		}
		return fmt.Errorf("%w: %s", ErrHandlerNotRegistered, name)
	}

	opts := b.reqOpts
	opts.Logger = logger
	rc := request.New(ctx, raw, comps, opts)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "handler", name, "panic", r)
			err = fmt.Errorf("handler %s panicked: %v", name, r)
		}
	}()
	return h.ServeBridge(w, rc)
}

func (b *BridgeService) writeError(w *sessionWriter, err error, logger *slog.Logger) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Debug("request failed", "status", status, "error", err)
	}
	if w.wroteHeader {
		return
	}
	http.Error(w, http.StatusText(status), status)
}

func (b *BridgeService) cookiePath() string {
	if b.table != nil && b.table.ContextPath() != "" {
		return b.table.ContextPath()
	}
	return "/"
}

// StatusFor maps a request failure to its HTTP status.
func StatusFor(err error) int {
	var malformed *route.MalformedURIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, request.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// sessionWriter emits the session cookie before the first response byte
// when a session was created during the request, and expires the client's
// cookie when its session was invalidated.
type sessionWriter struct {
	http.ResponseWriter
	ctx         context.Context
	cookieName  string
	cookiePath  string
	wroteHeader bool
}

func newSessionWriter(ctx context.Context, w http.ResponseWriter, cookieName, cookiePath string) *sessionWriter {
	return &sessionWriter{ResponseWriter: w, ctx: ctx, cookieName: cookieName, cookiePath: cookiePath}
}

func (w *sessionWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.setCookie()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (w *sessionWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *sessionWriter) setCookie() {
	binding, ok := session.FromContext(w.ctx)
	if !ok {
		return
	}
	cookie := &http.Cookie{
		Name:     w.cookieName,
		Path:     w.cookiePath,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if conn, ok := connection.FromContext(w.ctx); ok {
		cookie.Secure = conn.Secure
	}

	switch sess := binding.Current(); {
	case sess != nil && binding.Created():
		cookie.Value = sess.ID()
	case binding.Ended() && binding.Source() == session.SourceCookie:
		cookie.MaxAge = -1
	default:
		return
	}
	http.SetCookie(w.ResponseWriter, cookie)
}
