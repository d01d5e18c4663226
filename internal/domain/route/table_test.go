package route

import (
	"errors"
	"testing"
)

func TestNewTable_InvalidPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contextPath string
		route       Route
		wantErr     error
	}{
		{name: "relative pattern", route: Route{Pattern: "users/*", Handler: "h"}, wantErr: ErrInvalidPattern},
		{name: "inner wildcard", route: Route{Pattern: "/a/*/b", Handler: "h"}, wantErr: ErrInvalidPattern},
		{name: "suffix wildcard without slash", route: Route{Pattern: "/a*", Handler: "h"}, wantErr: ErrInvalidPattern},
		{name: "missing handler", route: Route{Pattern: "/a"}, wantErr: ErrInvalidPattern},
		{name: "bad escape", route: Route{Pattern: "/a%zz", Handler: "h"}, wantErr: ErrInvalidPattern},
		{name: "outside context path", contextPath: "/app", route: Route{Pattern: "/other/*", Handler: "h"}, wantErr: ErrInvalidPattern},
		{name: "default outside context path", contextPath: "/app", route: Route{Pattern: "/*", Handler: "h"}, wantErr: ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.contextPath, tt.route)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTable_InvalidContextPath(t *testing.T) {
	t.Parallel()

	if _, err := NewTable("app"); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("NewTable(\"app\") error = %v, want ErrInvalidPattern", err)
	}
}

func TestTable_Add_Duplicate(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "", Route{Pattern: "/a/*", Handler: "one"})
	if err := table.Add("/a/*", "two"); !errors.Is(err, ErrDuplicatePattern) {
		t.Errorf("Add() error = %v, want ErrDuplicatePattern", err)
	}
}

func TestTable_RoutesOrderedBySpecificity(t *testing.T) {
	t.Parallel()

	table := mustTable(t, "/app/",
		Route{Pattern: "/app/*", Handler: "all"},
		Route{Pattern: "/app/a/*", Handler: "a-tree"},
		Route{Pattern: "/app/a", Handler: "a"},
		Route{Pattern: "/app/a/b/c", Handler: "abc"},
	)

	if table.ContextPath() != "/app" {
		t.Errorf("ContextPath() = %q, want /app", table.ContextPath())
	}

	want := []string{"/app/a/b/c", "/app/a", "/app/a/*", "/app/*"}
	got := table.Routes()
	if len(got) != len(want) {
		t.Fatalf("Routes() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Pattern != want[i] {
			t.Errorf("Routes()[%d] = %q, want %q", i, got[i].Pattern, want[i])
		}
	}
	if table.Len() != 4 {
		t.Errorf("Len() = %d, want 4", table.Len())
	}
}

func TestRoute_IsWildcard(t *testing.T) {
	t.Parallel()

	if !(Route{Pattern: "/a/*"}).IsWildcard() {
		t.Error("IsWildcard(/a/*) = false, want true")
	}
	if (Route{Pattern: "/a"}).IsWildcard() {
		t.Error("IsWildcard(/a) = true, want false")
	}
}
