package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FormatError is returned when a header value cannot be parsed into the
// requested type.
type FormatError struct {
	Header string
	Value  string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("header %s: cannot parse %q: %v", e.Header, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// UnboundContextError is returned when a request accessor needs a binding
// (connection or session) that no interceptor established.
type UnboundContextError struct {
	// Binding names what is missing: "connection" or "session".
	Binding string
}

func (e *UnboundContextError) Error() string {
	return "no " + e.Binding + " bound to request context"
}

var errMissingBoundary = errors.New("multipart body without boundary")

// FieldError describes a single query or body field that failed to decode.
// It is reported, never returned.
type FieldError struct {
	// Source is "query", "form", "multipart" or "body".
	Source string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s field %q: %v", e.Source, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ErrorReporter receives non-fatal decode failures.
type ErrorReporter func(ctx context.Context, err error)

// LogReporter returns an ErrorReporter that logs at warn level.
func LogReporter(logger *slog.Logger) ErrorReporter {
	return func(ctx context.Context, err error) {
		logger.WarnContext(ctx, "dropped request field", "error", err)
	}
}
