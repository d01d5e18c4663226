package interceptor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "SESSIONID"

// Gauge is the subset of a metrics gauge the interceptors update.
type Gauge interface {
	Inc()
	Dec()
}

// ConnectionInterceptor binds the connection context on connect and tracks
// the number of live connections.
type ConnectionInterceptor struct {
	logger *slog.Logger
	live   Gauge
}

// NewConnectionInterceptor creates a ConnectionInterceptor. live may be nil.
func NewConnectionInterceptor(logger *slog.Logger, live Gauge) *ConnectionInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionInterceptor{logger: logger, live: live}
}

func (i *ConnectionInterceptor) Name() string { return "connection" }

// OnConnect binds conn into ctx.
func (i *ConnectionInterceptor) OnConnect(ctx context.Context, conn *connection.Context) (context.Context, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	if i.live != nil {
		i.live.Inc()
	}
	i.logger.Debug("connection opened",
		"conn_id", conn.ID,
		"remote", conn.RemoteAddr,
		"secure", conn.Secure,
	)
	return connection.NewContext(ctx, conn), nil
}

// OnDisconnect logs the connection lifetime.
func (i *ConnectionInterceptor) OnDisconnect(ctx context.Context, conn *connection.Context) error {
	if i.live != nil {
		i.live.Dec()
	}
	i.logger.Debug("connection closed",
		"conn_id", conn.ID,
		"duration", time.Since(conn.ConnectedAt),
	)
	return nil
}

// SessionInterceptor resolves the session ID presented by the client and
// binds a session.Binding into the request context. It never creates
// sessions.
type SessionInterceptor struct {
	store      session.Store
	cookieName string
	logger     *slog.Logger
}

// NewSessionInterceptor creates a SessionInterceptor reading cookieName
// from cookies and, failing that, from the query string.
func NewSessionInterceptor(store session.Store, cookieName string, logger *slog.Logger) *SessionInterceptor {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionInterceptor{store: store, cookieName: cookieName, logger: logger}
}

func (i *SessionInterceptor) Name() string { return "session" }

// CookieName returns the session cookie name.
func (i *SessionInterceptor) CookieName() string { return i.cookieName }

// OnRequestStart binds the requested session, touching it when live.
func (i *SessionInterceptor) OnRequestStart(ctx context.Context, raw *request.Raw) (context.Context, error) {
	id, source := i.requestedID(raw)

	var current *session.Session
	if id != "" {
		sess, err := i.store.Get(ctx, id)
		switch {
		case err == nil:
			if err := i.store.Touch(ctx, sess.ID()); err == nil {
				current = sess
			}
		case errors.Is(err, session.ErrSessionNotFound):
			i.logger.Debug("requested session not found", "source", source)
		default:
			return nil, err
		}
	}

	return session.NewContext(ctx, session.NewBinding(i.store, id, source, current)), nil
}

func (i *SessionInterceptor) requestedID(raw *request.Raw) (string, session.IDSource) {
	cookieReq := &http.Request{Header: http.Header{"Cookie": raw.Header.Values("Cookie")}}
	if c, err := cookieReq.Cookie(i.cookieName); err == nil && c.Value != "" {
		return c.Value, session.SourceCookie
	}

	_, query, ok := strings.Cut(raw.URI, "?")
	if !ok {
		return "", session.SourceNone
	}
	if hash := strings.IndexByte(query, '#'); hash >= 0 {
		query = query[:hash]
	}
	values, _ := url.ParseQuery(query)
	if v := values.Get(i.cookieName); v != "" {
		return v, session.SourceURL
	}
	return "", session.SourceNone
}

// Compile-time checks.
var (
	_ ConnectHook      = (*ConnectionInterceptor)(nil)
	_ DisconnectHook   = (*ConnectionInterceptor)(nil)
	_ RequestStartHook = (*SessionInterceptor)(nil)
)
