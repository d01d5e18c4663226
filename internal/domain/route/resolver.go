package route

import (
	"net/url"
	"strings"
)

// Resolve splits a raw request URI into context path, matched route path,
// path info and query string using the route table.
//
// Matching works on percent-decoded segments while the returned components
// keep the raw text, so ContextPath + RoutePath() + PathInfo is always the
// request path byte for byte. A URI that matches no route still resolves;
// the caller decides whether that is a 404.
func Resolve(rawURI string, t *Table) (Components, error) {
	if rawURI == "" {
		return Components{}, &MalformedURIError{URI: rawURI, Reason: "empty request URI"}
	}

	target := stripAuthority(rawURI)
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	for i := 0; i < len(target); i++ {
		if c := target[i]; c < 0x20 || c == 0x7f {
			return Components{}, &MalformedURIError{URI: rawURI, Reason: "control character in request URI"}
		}
	}

	path, query, _ := strings.Cut(target, "?")
	if !strings.HasPrefix(path, "/") {
		return Components{}, &MalformedURIError{URI: rawURI, Reason: "path must start with '/'"}
	}

	rawSegs := strings.Split(path, "/")[1:]
	decSegs := make([]string, len(rawSegs))
	for i, seg := range rawSegs {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return Components{}, &MalformedURIError{URI: rawURI, Reason: "invalid percent-encoding", Err: err}
		}
		if strings.IndexByte(dec, 0) >= 0 {
			return Components{}, &MalformedURIError{URI: rawURI, Reason: "encoded NUL in path"}
		}
		decSegs[i] = dec
	}

	comps := Components{PathInfo: path, QueryString: query}
	if t == nil {
		return comps, nil
	}

	if !hasPrefix(decSegs, t.contextSegs) {
		return comps, nil
	}
	comps.ContextPath = joinRaw(rawSegs, len(t.contextSegs))
	comps.PathInfo = path[len(comps.ContextPath):]

	for i := range t.entries {
		e := &t.entries[i]
		if !e.matches(decSegs) {
			continue
		}
		matched := joinRaw(rawSegs, len(e.segments))
		r := e.route
		comps.MatchedPath = matched
		comps.PathInfo = path[len(matched):]
		comps.Route = &r
		return comps, nil
	}
	return comps, nil
}

func (e *entry) matches(segs []string) bool {
	if e.wildcard {
		return hasPrefix(segs, e.segments)
	}
	return len(segs) == len(e.segments) && hasPrefix(segs, e.segments)
}

// joinRaw rebuilds the raw path prefix covering the first n segments.
func joinRaw(rawSegs []string, n int) string {
	if n == 0 {
		return ""
	}
	return "/" + strings.Join(rawSegs[:n], "/")
}

// stripAuthority reduces an absolute-form target ("http://host/p?q") to
// its origin form ("/p?q"). Origin-form targets are returned unchanged.
func stripAuthority(target string) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok || !isScheme(scheme) {
		return target
	}
	i := strings.IndexAny(rest, "/?#")
	if i < 0 {
		return "/"
	}
	if rest[i] == '/' {
		return rest[i:]
	}
	return "/" + rest[i:]
}

func isScheme(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
