package route

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidPattern is returned for patterns the table cannot register.
var ErrInvalidPattern = errors.New("invalid route pattern")

// ErrDuplicatePattern is returned when a pattern is registered twice.
var ErrDuplicatePattern = errors.New("duplicate route pattern")

// entry is a registered route with its pattern pre-split into decoded segments.
type entry struct {
	route    Route
	segments []string // leading "" dropped; wildcard "*" dropped
	wildcard bool
}

// Table is the static route table. Register routes before the first Resolve;
// after that the table is read-only and safe for concurrent use.
type Table struct {
	contextPath string
	contextSegs []string
	entries     []entry
}

// NewTable creates a table for the given context path ("" or "/" for the
// root deployment) and registers the given routes.
func NewTable(contextPath string, routes ...Route) (*Table, error) {
	contextPath = strings.TrimSuffix(contextPath, "/")
	if contextPath != "" && !strings.HasPrefix(contextPath, "/") {
		return nil, fmt.Errorf("%w: context path %q must start with '/'", ErrInvalidPattern, contextPath)
	}
	segs, err := splitPattern(contextPath)
	if err != nil {
		return nil, err
	}

	t := &Table{
		contextPath: contextPath,
		contextSegs: segs,
	}
	for _, r := range routes {
		if err := t.Add(r.Pattern, r.Handler); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add registers a route.
func (t *Table) Add(pattern, handler string) error {
	if handler == "" {
		return fmt.Errorf("%w: %q has no handler", ErrInvalidPattern, pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidPattern, pattern)
	}

	wildcard := false
	base := pattern
	if pattern == "/*" {
		wildcard, base = true, ""
	} else if strings.HasSuffix(pattern, "/*") {
		wildcard, base = true, strings.TrimSuffix(pattern, "/*")
	}
	if strings.Contains(base, "*") {
		return fmt.Errorf("%w: %q may only end in a single '/*'", ErrInvalidPattern, pattern)
	}

	segs, err := splitPattern(base)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}

	if !hasPrefix(segs, t.contextSegs) {
		return fmt.Errorf("%w: %q is outside context path %q", ErrInvalidPattern, pattern, t.contextPath)
	}

	for _, e := range t.entries {
		if e.route.Pattern == pattern {
			return fmt.Errorf("%w: %q", ErrDuplicatePattern, pattern)
		}
	}

	t.entries = append(t.entries, entry{
		route:    Route{Pattern: pattern, Handler: handler},
		segments: segs,
		wildcard: wildcard,
	})

	// Most specific first: longer prefix, then exact before wildcard.
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if len(a.segments) != len(b.segments) {
			return len(a.segments) > len(b.segments)
		}
		return !a.wildcard && b.wildcard
	})
	return nil
}

// ContextPath returns the deployment prefix without a trailing slash.
func (t *Table) ContextPath() string {
	return t.contextPath
}

// Routes returns the registered routes, most specific first.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.route
	}
	return out
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	return len(t.entries)
}

// splitPattern splits an absolute pattern into decoded segments, dropping
// the empty segment before the leading '/'. "" yields no segments and "/"
// yields a single empty segment.
func splitPattern(p string) ([]string, error) {
	if p == "" {
		return nil, nil
	}
	parts := strings.Split(p, "/")[1:]
	for i, part := range parts {
		dec, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		parts[i] = dec
	}
	return parts, nil
}

// hasPrefix reports whether segs starts with prefix.
func hasPrefix(segs, prefix []string) bool {
	if len(segs) < len(prefix) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}
