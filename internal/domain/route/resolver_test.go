package route

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func mustTable(t *testing.T, contextPath string, routes ...Route) *Table {
	t.Helper()
	table, err := NewTable(contextPath, routes...)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

func TestResolve_UsersScenario(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "/app", Route{Pattern: "/app/users/*", Handler: "users"})

	got, err := Resolve("/app/users/42?active=true", table)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ContextPath != "/app" {
		t.Errorf("ContextPath = %q, want /app", got.ContextPath)
	}
	if got.MatchedPath != "/app/users" {
		t.Errorf("MatchedPath = %q, want /app/users", got.MatchedPath)
	}
	if got.RoutePath() != "/users" {
		t.Errorf("RoutePath() = %q, want /users", got.RoutePath())
	}
	if got.PathInfo != "/42" {
		t.Errorf("PathInfo = %q, want /42", got.PathInfo)
	}
	if got.QueryString != "active=true" {
		t.Errorf("QueryString = %q, want active=true", got.QueryString)
	}
	if got.Route == nil || got.Route.Handler != "users" {
		t.Errorf("Route = %+v, want handler users", got.Route)
	}
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "",
		Route{Pattern: "/a/*", Handler: "a"},
		Route{Pattern: "/a/b/*", Handler: "ab"},
	)

	got, err := Resolve("/a/b/c", table)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Route == nil || got.Route.Pattern != "/a/b/*" {
		t.Fatalf("Route = %+v, want /a/b/*", got.Route)
	}
	if got.MatchedPath != "/a/b" || got.PathInfo != "/c" {
		t.Errorf("MatchedPath, PathInfo = %q, %q; want /a/b, /c", got.MatchedPath, got.PathInfo)
	}
}

func TestResolve_Matching(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "",
		Route{Pattern: "/*", Handler: "default"},
		Route{Pattern: "/docs", Handler: "docs-exact"},
		Route{Pattern: "/docs/*", Handler: "docs"},
		Route{Pattern: "/", Handler: "root"},
		Route{Pattern: "/files/*", Handler: "files"},
	)

	tests := []struct {
		name        string
		uri         string
		wantHandler string
		wantMatched string
		wantInfo    string
		wantQuery   string
	}{
		{name: "exact outranks wildcard of equal length", uri: "/docs", wantHandler: "docs-exact", wantMatched: "/docs"},
		{name: "wildcard below exact", uri: "/docs/intro", wantHandler: "docs", wantMatched: "/docs", wantInfo: "/intro"},
		{name: "trailing slash goes to wildcard", uri: "/docs/", wantHandler: "docs", wantMatched: "/docs", wantInfo: "/"},
		{name: "segment boundary respected", uri: "/documents", wantHandler: "default", wantInfo: "/documents"},
		{name: "root exact", uri: "/", wantHandler: "root", wantMatched: "/"},
		{name: "default mapping", uri: "/other/thing?x=1", wantHandler: "default", wantInfo: "/other/thing", wantQuery: "x=1"},
		{name: "encoded segment matches decoded pattern", uri: "/fil%65s/a%20b", wantHandler: "files", wantMatched: "/fil%65s", wantInfo: "/a%20b"},
		{name: "absolute form", uri: "http://example.com:8080/docs/x?y=2", wantHandler: "docs", wantMatched: "/docs", wantInfo: "/x", wantQuery: "y=2"},
		{name: "absolute form without path", uri: "http://example.com", wantHandler: "root", wantMatched: "/"},
		{name: "fragment dropped", uri: "/docs#top", wantHandler: "docs-exact", wantMatched: "/docs"},
		{name: "empty query kept empty", uri: "/docs?", wantHandler: "docs-exact", wantMatched: "/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.uri, table)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.uri, err)
			}
			if got.Route == nil {
				t.Fatalf("Resolve(%q) matched nothing", tt.uri)
			}
			if got.Route.Handler != tt.wantHandler {
				t.Errorf("handler = %q, want %q", got.Route.Handler, tt.wantHandler)
			}
			if got.MatchedPath != tt.wantMatched {
				t.Errorf("MatchedPath = %q, want %q", got.MatchedPath, tt.wantMatched)
			}
			if got.PathInfo != tt.wantInfo {
				t.Errorf("PathInfo = %q, want %q", got.PathInfo, tt.wantInfo)
			}
			if got.QueryString != tt.wantQuery {
				t.Errorf("QueryString = %q, want %q", got.QueryString, tt.wantQuery)
			}
		})
	}
}

func TestResolve_NoMatch(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "/app", Route{Pattern: "/app/users/*", Handler: "users"})

	tests := []struct {
		name        string
		uri         string
		wantContext string
		wantInfo    string
	}{
		{name: "inside context", uri: "/app/orders/1", wantContext: "/app", wantInfo: "/orders/1"},
		{name: "context root", uri: "/app", wantContext: "/app", wantInfo: ""},
		{name: "outside context", uri: "/static/site.css", wantContext: "", wantInfo: "/static/site.css"},
		{name: "context prefix but not segment", uri: "/apple", wantContext: "", wantInfo: "/apple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.uri, table)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Matched() {
				t.Errorf("Matched() = true, route %+v", got.Route)
			}
			if got.MatchedPath != "" {
				t.Errorf("MatchedPath = %q, want empty", got.MatchedPath)
			}
			if got.ContextPath != tt.wantContext {
				t.Errorf("ContextPath = %q, want %q", got.ContextPath, tt.wantContext)
			}
			if got.PathInfo != tt.wantInfo {
				t.Errorf("PathInfo = %q, want %q", got.PathInfo, tt.wantInfo)
			}
		})
	}
}

func TestResolve_Malformed(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "", Route{Pattern: "/*", Handler: "default"})

	tests := []struct {
		name string
		uri  string
	}{
		{name: "empty", uri: ""},
		{name: "relative", uri: "users/1"},
		{name: "bad escape", uri: "/users/%zz"},
		{name: "truncated escape", uri: "/users/%4"},
		{name: "encoded NUL", uri: "/users/%00"},
		{name: "control character", uri: "/users/\x01"},
		{name: "DEL in query", uri: "/users?a=\x7f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.uri, table)
			var malformed *MalformedURIError
			if !errors.As(err, &malformed) {
				t.Fatalf("Resolve(%q) error = %v, want *MalformedURIError", tt.uri, err)
			}
			if malformed.URI != tt.uri {
				t.Errorf("MalformedURIError.URI = %q, want %q", malformed.URI, tt.uri)
			}
		})
	}
}

func TestResolve_ReconstructsPath(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "/ctx",
		Route{Pattern: "/ctx/*", Handler: "all"},
		Route{Pattern: "/ctx/a/*", Handler: "a"},
		Route{Pattern: "/ctx/a/b", Handler: "ab"},
		Route{Pattern: "/ctx/c%2Fd/*", Handler: "cd"},
	)

	alphabet := []string{"ctx", "a", "b", "c", "c%2Fd", "%41", "", "x y", "%25", "~", "ctx%2F"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		n := rng.Intn(5)
		var sb strings.Builder
		for j := 0; j <= n; j++ {
			sb.WriteByte('/')
			sb.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		path := sb.String()

		got, err := Resolve(path+"?q=1", table)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", path, err)
		}
		if rebuilt := got.ContextPath + got.RoutePath() + got.PathInfo; rebuilt != path {
			t.Fatalf("Resolve(%q) rebuilt %q (context=%q matched=%q info=%q)",
				path, rebuilt, got.ContextPath, got.MatchedPath, got.PathInfo)
		}
		if got.Path() != path {
			t.Fatalf("Path() = %q, want %q", got.Path(), path)
		}
		if got.MatchedPath != "" && !strings.HasPrefix(got.MatchedPath, got.ContextPath) {
			t.Fatalf("MatchedPath %q does not start with ContextPath %q", got.MatchedPath, got.ContextPath)
		}
	}
}

func TestResolve_NilTable(t *testing.T) {
	t.Parallel()

	got, err := Resolve("/x/y?z", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Matched() || got.PathInfo != "/x/y" || got.QueryString != "z" {
		t.Errorf("Resolve() = %+v, want unmatched /x/y with query z", got)
	}
}
