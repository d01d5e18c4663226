package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/httpbridge/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/interceptor"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/route"
	"github.com/Sentinel-Gate/httpbridge/internal/service"
	"github.com/Sentinel-Gate/httpbridge/internal/service/handlers"
)

// connCounter counts connect and disconnect hook invocations.
type connCounter struct {
	connects    atomic.Int32
	disconnects atomic.Int32
	reject      bool
}

func (c *connCounter) hooks() *interceptor.Hooks {
	return &interceptor.Hooks{
		Label: "counter",
		Connect: func(ctx context.Context, conn *connection.Context) (context.Context, error) {
			if c.reject {
				return nil, errors.New("connection refused by policy")
			}
			c.connects.Add(1)
			return ctx, nil
		},
		Disconnect: func(ctx context.Context, conn *connection.Context) error {
			c.disconnects.Add(1)
			return nil
		},
	}
}

type transportFixture struct {
	transport *HTTPTransport
	metrics   *Metrics
	counter   *connCounter
}

func newTransportFixture(t *testing.T, reject bool, opts ...Option) *transportFixture {
	t.Helper()

	table, err := route.NewTable("",
		route.Route{Pattern: "/echo/*", Handler: handlers.EchoName},
		route.Route{Pattern: "/visits", Handler: handlers.SessionName},
	)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	reg := service.NewRegistry()
	if err := handlers.RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)
	store := memory.NewSessionStore()
	metrics.ObserveSessions(store)

	counter := &connCounter{reject: reject}
	chain := interceptor.NewChain([]interceptor.Interceptor{
		interceptor.NewConnectionInterceptor(discardLogger(), metrics.ActiveConnections),
		interceptor.NewSessionInterceptor(store, "", discardLogger()),
		counter.hooks(),
	}, interceptor.WithLogger(discardLogger()))

	bridge := service.NewBridgeService(service.BridgeConfig{Table: table, Registry: reg, Chain: chain}, discardLogger())

	opts = append([]Option{
		WithAddr("127.0.0.1:0"),
		WithLogger(discardLogger()),
		WithMetrics(metrics, promReg),
	}, opts...)
	return &transportFixture{
		transport: NewHTTPTransport(bridge, opts...),
		metrics:   metrics,
		counter:   counter,
	}
}

// start runs the transport until the returned stop func is called.
func (f *transportFixture) start(t *testing.T) (baseURL string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.transport.Start(ctx) }()

	select {
	case <-f.transport.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Start() error = %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("transport never became ready")
	}

	return "http://" + f.transport.Addr(), func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Error("Start() did not return after cancel")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransport_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newTransportFixture(t, false)
	baseURL, stop := f.start(t)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	get := func(path string) *http.Response {
		t.Helper()
		resp, err := client.Get(baseURL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		return resp
	}

	resp := get("/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	var visits handlers.SessionResponse
	for i := 1; i <= 2; i++ {
		resp = get("/visits")
		if err := json.NewDecoder(resp.Body).Decode(&visits); err != nil {
			t.Fatalf("decode visits: %v", err)
		}
		resp.Body.Close()
		if visits.Visits != i {
			t.Errorf("visit %d reported %d", i, visits.Visits)
		}
	}

	resp = get("/echo/a/b?q=1")
	var echo handlers.EchoResponse
	_ = json.NewDecoder(resp.Body).Decode(&echo)
	resp.Body.Close()
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("X-Request-ID missing")
	}
	if echo.ServletPath != "/echo" || echo.PathInfo != "/a/b" || echo.RemoteAddr != "127.0.0.1" {
		t.Errorf("echo = %+v", echo)
	}
	if echo.SessionID != visits.SessionID {
		t.Errorf("echo session = %q, want %q", echo.SessionID, visits.SessionID)
	}

	resp = get("/metrics")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "httpbridge_requests_total") {
		t.Error("/metrics does not expose httpbridge_requests_total")
	}
	if got := testutil.ToFloat64(f.metrics.SessionsCreated); got != 1 {
		t.Errorf("sessions_created_total = %v, want 1", got)
	}

	client.CloseIdleConnections()
	stop()

	if f.counter.connects.Load() == 0 {
		t.Error("connect hooks never ran")
	}
	waitFor(t, "disconnect hooks", func() bool {
		return f.counter.disconnects.Load() == f.counter.connects.Load() &&
			testutil.ToFloat64(f.metrics.ActiveConnections) == 0
	})
}

func TestTransport_KeepAliveReleasedOnShutdown(t *testing.T) {
	f := newTransportFixture(t, false)
	baseURL, stop := f.start(t)

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(baseURL + "/echo/x")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if got := f.counter.connects.Load(); got != 1 {
		t.Errorf("connects = %d over one keep-alive connection, want 1", got)
	}
	if got := f.counter.disconnects.Load(); got != 0 {
		t.Errorf("disconnects = %d before shutdown, want 0", got)
	}

	stop()
	waitFor(t, "disconnect on shutdown", func() bool { return f.counter.disconnects.Load() == 1 })
}

func TestTransport_RejectedConnection(t *testing.T) {
	f := newTransportFixture(t, true)
	baseURL, stop := f.start(t)
	defer stop()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/echo/x")
	if err == nil {
		resp.Body.Close()
		t.Fatal("request on a rejected connection succeeded")
	}
	if got := f.counter.disconnects.Load(); got != 0 {
		t.Errorf("disconnects = %d for a rejected connection, want 0", got)
	}
}

func TestTransport_BodyTooLarge(t *testing.T) {
	f := newTransportFixture(t, false, WithMaxBodyBytes(4))
	handler := f.transport.Handler()

	req := httptest.NewRequest(http.MethodPost, "/echo/x", bytes.NewBufferString("0123456789"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestTransport_AddrBeforeStart(t *testing.T) {
	f := newTransportFixture(t, false)
	if got := f.transport.Addr(); got != "127.0.0.1:0" {
		t.Errorf("Addr() = %q", got)
	}
	if err := f.transport.Close(); err != nil {
		t.Errorf("Close() before Start = %v", err)
	}
}

func TestNewConnection(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	plain := newConnection(a)
	if plain.Secure {
		t.Error("plain connection reported secure")
	}
	secure := newConnection(tls.Server(b, &tls.Config{}))
	if !secure.Secure {
		t.Error("TLS connection reported insecure")
	}
	if plain.ID == "" || plain.ID == secure.ID {
		t.Errorf("connection IDs %q, %q must be unique", plain.ID, secure.ID)
	}
	if plain.ConnectedAt.IsZero() {
		t.Error("ConnectedAt not set")
	}
}
