// Package route maps request paths onto registered handler identities.
package route

import (
	"fmt"
	"strings"
)

// Route maps a path pattern to a handler identity.
type Route struct {
	// Pattern is an absolute path, either exact ("/app/login") or with a
	// single trailing wildcard ("/app/users/*").
	Pattern string
	// Handler names the application handler serving this route.
	Handler string
}

// IsWildcard reports whether the route matches a whole subtree.
func (r Route) IsWildcard() bool {
	return strings.HasSuffix(r.Pattern, "/*")
}

// Components is the result of resolving a request URI against a Table.
// All path fields hold raw (still percent-encoded) text.
type Components struct {
	// ContextPath is the deployment prefix, or empty when the request is
	// outside of it.
	ContextPath string
	// MatchedPath is the path prefix consumed by the matched route,
	// including the context path. Empty when no route matched.
	MatchedPath string
	// PathInfo is the remainder of the path after MatchedPath.
	// Empty when the match consumed the whole path.
	PathInfo string
	// QueryString is the raw query without the leading '?'.
	QueryString string
	// Route is the matched route, nil when nothing matched.
	Route *Route
}

// RoutePath returns MatchedPath without the context path.
// ContextPath + RoutePath() + PathInfo reproduces the request path.
func (c Components) RoutePath() string {
	if c.MatchedPath == "" {
		return ""
	}
	return strings.TrimPrefix(c.MatchedPath, c.ContextPath)
}

// Path returns the request path the components were resolved from.
func (c Components) Path() string {
	return c.ContextPath + c.RoutePath() + c.PathInfo
}

// Matched reports whether a route matched.
func (c Components) Matched() bool {
	return c.Route != nil
}

// MalformedURIError is returned when a request URI cannot be decoded or is
// structurally invalid.
type MalformedURIError struct {
	URI    string
	Reason string
	Err    error
}

func (e *MalformedURIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed request URI %q: %s: %v", e.URI, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed request URI %q: %s", e.URI, e.Reason)
}

func (e *MalformedURIError) Unwrap() error {
	return e.Err
}
