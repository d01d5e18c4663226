// Package ctxkey holds the request-scoped context keys shared by the
// transport, the bridge and the handlers. It imports no internal packages.
package ctxkey

import (
	"context"
	"log/slog"
)

// LoggerKey is the context key type for the request-scoped logger.
// The transport stores a logger enriched with request_id; the bridge and
// handlers read it back.
type LoggerKey struct{}

// RequestIDKey is the context key type for the request ID.
type RequestIDKey struct{}

// Logger returns the logger stored in ctx, or fallback.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey{}).(string)
	return id
}
