package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
	"github.com/Sentinel-Gate/httpbridge/internal/service"
)

// Operational endpoints served ahead of the route table.
const (
	healthPath  = "/health"
	metricsPath = "/metrics"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// HTTPTransport is the inbound adapter that feeds net/http connections and
// requests into the bridge. Each accepted connection runs the connect hooks
// once; the disconnect hooks run when the connection closes, is hijacked,
// or the server shuts down.
type HTTPTransport struct {
	bridge        *service.BridgeService
	server        *http.Server
	addr          string
	certFile      string
	keyFile       string
	maxBodyBytes  int64
	logger        *slog.Logger
	metrics       *Metrics
	registry      *prometheus.Registry
	healthChecker *HealthChecker

	// releases maps net.Conn to the disconnect func returned by the chain.
	releases sync.Map

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithMetrics uses m, registered on reg, instead of a private registry.
func WithMetrics(m *Metrics, reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
		t.registry = reg
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithMaxBodyBytes caps the buffered request body.
func WithMaxBodyBytes(n int64) Option {
	return func(t *HTTPTransport) {
		t.maxBodyBytes = n
	}
}

// NewHTTPTransport creates an HTTP transport adapter wrapping the given bridge.
func NewHTTPTransport(bridge *service.BridgeService, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		bridge:       bridge,
		addr:         "127.0.0.1:8080",
		maxBodyBytes: request.DefaultMaxBodyBytes,
		logger:       slog.Default(),
		ready:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Ready is closed once the listener is bound.
func (t *HTTPTransport) Ready() <-chan struct{} {
	return t.ready
}

// Addr returns the bound listen address, or the configured one before Start.
func (t *HTTPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// Handler builds the full handler tree: operational endpoints plus the
// bridge behind request ID and metrics middleware.
func (t *HTTPTransport) Handler() http.Handler {
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(t.registry)
	}

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle(healthPath, t.healthChecker.Handler())
	} else {
		mux.Handle(healthPath, NewHealthChecker(nil, nil, "").Handler())
	}
	mux.Handle(metricsPath, promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	mux.Handle("/", RequestIDMiddleware(t.logger)(t.bridgeHandler()))

	// Metrics outermost so the recorded duration covers the whole request.
	return MetricsMiddleware(t.metrics, healthPath, metricsPath)(mux)
}

// bridgeHandler buffers the request and hands it to the bridge.
func (t *HTTPTransport) bridgeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := request.FromHTTP(r, t.maxBodyBytes)
		if err != nil {
			status := service.StatusFor(err)
			LoggerFromContext(r.Context()).Warn("rejecting request", "error", err, "status", status)
			http.Error(w, http.StatusText(status), status)
			return
		}
		t.bridge.Serve(r.Context(), w, raw)
	})
}

// connContext runs the connect hooks for a freshly accepted connection.
// A rejected connection is closed before any request is read from it.
func (t *HTTPTransport) connContext(ctx context.Context, c net.Conn) context.Context {
	conn := newConnection(c)
	bound, release, err := t.bridge.Connect(ctx, conn)
	if err != nil {
		t.logger.Warn("connection rejected", "conn_id", conn.ID, "remote", conn.RemoteAddr, "error", err)
		_ = c.Close()
		return ctx
	}
	t.releases.Store(c, release)
	return bound
}

// connState runs the disconnect hooks once a connection is gone.
func (t *HTTPTransport) connState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	t.release(c)
}

func (t *HTTPTransport) release(c any) {
	v, ok := t.releases.LoadAndDelete(c)
	if !ok {
		return
	}
	if err := v.(func() error)(); err != nil {
		t.logger.Warn("disconnect hooks failed", "error", err)
	}
}

// releaseAll runs outstanding disconnect hooks after shutdown.
func (t *HTTPTransport) releaseAll() {
	t.releases.Range(func(key, _ any) bool {
		t.release(key)
		return true
	})
}

func newConnection(c net.Conn) *connection.Context {
	_, secure := c.(*tls.Conn)
	return &connection.Context{
		ID:          uuid.NewString(),
		RemoteAddr:  c.RemoteAddr(),
		LocalAddr:   c.LocalAddr(),
		Secure:      secure,
		ConnectedAt: time.Now(),
	}
}

// connectionID returns the bound connection's ID, or "".
func connectionID(ctx context.Context) string {
	if conn, ok := connection.FromContext(ctx); ok {
		return conn.ID
	}
	return ""
}

// Start binds the listener and serves until ctx is cancelled or the server
// fails. It blocks.
func (t *HTTPTransport) Start(ctx context.Context) error {
	tlsEnabled := t.certFile != "" && t.keyFile != ""

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ConnContext:       t.connContext,
		ConnState:         t.connState,
		ErrorLog:          slog.NewLogLogger(t.logger.Handler(), slog.LevelWarn),
	}
	if tlsEnabled {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	t.mu.Lock()
	t.server = server
	t.listener = ln
	t.mu.Unlock()
	close(t.ready)

	errCh := make(chan error, 1)

	go func() {
		var err error
		if tlsEnabled {
			t.logger.Info("starting HTTPS server", "addr", ln.Addr().String())
			err = server.ServeTLS(ln, t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		t.releaseAll()
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	t.mu.Lock()
	server := t.server
	t.mu.Unlock()

	err := server.Shutdown(ctx)
	t.releaseAll()
	if err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	started := t.server != nil
	t.mu.Unlock()
	if !started {
		return nil
	}
	return t.shutdown()
}
