package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{ContextPath: "/app"},
		Routes: []RouteConfig{
			{Pattern: "/app/users/*", Handler: "echo"},
			{Pattern: "/app/login", Handler: "session"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "no routes",
			mutate:  func(c *Config) { c.Routes = nil },
			wantErr: "Routes is required",
		},
		{
			name:    "relative pattern",
			mutate:  func(c *Config) { c.Routes[0].Pattern = "app/users" },
			wantErr: "must start with '/'",
		},
		{
			name:    "inner wildcard",
			mutate:  func(c *Config) { c.Routes[0].Pattern = "/app/*/x" },
			wantErr: "may only end in '/*'",
		},
		{
			name:    "missing handler",
			mutate:  func(c *Config) { c.Routes[1].Handler = "" },
			wantErr: "Handler is required",
		},
		{
			name:    "duplicate pattern",
			mutate:  func(c *Config) { c.Routes[1].Pattern = "/app/users/*" },
			wantErr: "duplicate route pattern",
		},
		{
			name:    "outside context path",
			mutate:  func(c *Config) { c.Routes[1].Pattern = "/other/login" },
			wantErr: "outside context path",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Session.TTL = "forever" },
			wantErr: "positive duration",
		},
		{
			name:    "sweep longer than ttl",
			mutate:  func(c *Config) { c.Session.TTL = "1m"; c.Session.SweepInterval = "2m" },
			wantErr: "must not exceed session.ttl",
		},
		{
			name:    "unknown charset",
			mutate:  func(c *Config) { c.Request.DefaultEncoding = "klingon-8" },
			wantErr: "character encoding",
		},
		{
			name:    "bad locale",
			mutate:  func(c *Config) { c.Request.DefaultLocale = "not a tag!" },
			wantErr: "BCP 47",
		},
		{
			name:    "bad cookie name",
			mutate:  func(c *Config) { c.Session.CookieName = "SESSION ID" },
			wantErr: "valid cookie name",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "must be one of",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "localhost" },
			wantErr: "valid host:port",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.Server.TLS.CertFile = "/etc/cert.pem" },
			wantErr: "KeyFile is required when CertFile is set",
		},
		{
			name:    "relative context path",
			mutate:  func(c *Config) { c.Server.ContextPath = "app" },
			wantErr: "ContextPath must start with '/'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_RootContextAcceptsAnyRoute(t *testing.T) {
	t.Parallel()

	cfg := &Config{Routes: []RouteConfig{{Pattern: "/*", Handler: "echo"}, {Pattern: "/a/b", Handler: "echo"}}}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_TLSBothSet(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.TLS = TLSConfig{CertFile: "/c.pem", KeyFile: "/k.pem"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if !cfg.Server.TLS.Enabled() {
		t.Error("TLS.Enabled() = false")
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	// Without defaults or routes, the zero config is rejected.
	var cfg Config
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() on zero config expected error")
	}
}
