// Package config provides configuration types for httpbridge.
//
// Configuration is file based (httpbridge.yaml) with environment overrides.
// Durations are kept as strings in the schema and parsed by the accessor
// methods once Validate has accepted them.
package config

import (
	"time"
)

// Config is the top-level configuration for httpbridge.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Session configures the session store and its watchdog.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Request configures defaults applied to every request view.
	Request RequestConfig `yaml:"request" mapstructure:"request"`

	// Routes is the static route table. Patterns must lie under
	// server.context_path. Required outside dev mode.
	Routes []RouteConfig `yaml:"routes" mapstructure:"routes" validate:"required,min=1,dive"`

	// Telemetry configures tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (debug logging, demo routes).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to localhost only.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ContextPath is the deployment prefix ("" or "/app").
	ContextPath string `yaml:"context_path" mapstructure:"context_path" validate:"omitempty,context_path"`

	// TLS enables HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// TLSConfig names the certificate and key files.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file" validate:"required_with=CertFile"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// SessionConfig configures session lifetime.
type SessionConfig struct {
	// TTL is the idle timeout (e.g., "30m").
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// SweepInterval is how often the watchdog looks for idle sessions.
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty,duration"`

	// CookieName is the session cookie, also accepted as a query parameter.
	CookieName string `yaml:"cookie_name" mapstructure:"cookie_name" validate:"omitempty,cookie_name"`
}

// TTLDuration returns the parsed TTL, or def when unset or invalid.
func (s SessionConfig) TTLDuration(def time.Duration) time.Duration {
	return parseDuration(s.TTL, def)
}

// SweepDuration returns the parsed sweep interval, or def when unset or invalid.
func (s SessionConfig) SweepDuration(def time.Duration) time.Duration {
	return parseDuration(s.SweepInterval, def)
}

// RequestConfig holds request view defaults.
type RequestConfig struct {
	// DefaultEncoding applies when neither the caller nor Content-Type
	// names a charset.
	DefaultEncoding string `yaml:"default_encoding" mapstructure:"default_encoding" validate:"omitempty,charset"`

	// DefaultLocale applies when Accept-Language is absent or unusable.
	DefaultLocale string `yaml:"default_locale" mapstructure:"default_locale" validate:"omitempty,locale"`

	// MaxBodyBytes caps the buffered request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"omitempty,min=1"`
}

// RouteConfig maps a path pattern to a registered handler name.
type RouteConfig struct {
	// Pattern is exact ("/app/login") or ends in "/*" ("/app/users/*").
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"required,route_pattern"`

	// Handler names a registered handler (e.g., "echo").
	Handler string `yaml:"handler" mapstructure:"handler" validate:"required"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// TraceStdout exports spans as JSON on stdout.
	TraceStdout bool `yaml:"trace_stdout" mapstructure:"trace_stdout"`

	// ServiceName is recorded on every span.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if c.Server.LogLevel == "" || c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}

	// Demo routes so `httpbridge start --dev` serves something useful.
	if len(c.Routes) == 0 {
		base := c.Server.ContextPath
		if base == "/" {
			base = ""
		}
		c.Routes = []RouteConfig{
			{Pattern: base + "/echo/*", Handler: "echo"},
			{Pattern: base + "/visits", Handler: "session"},
			{Pattern: base + "/logout", Handler: "logout"},
		}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless told otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Session.TTL == "" {
		c.Session.TTL = "30m"
	}
	if c.Session.SweepInterval == "" {
		c.Session.SweepInterval = "5s"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "SESSIONID"
	}

	if c.Request.DefaultEncoding == "" {
		c.Request.DefaultEncoding = "ISO-8859-1"
	}
	if c.Request.DefaultLocale == "" {
		c.Request.DefaultLocale = "en-US"
	}
	if c.Request.MaxBodyBytes == 0 {
		c.Request.MaxBodyBytes = 1 << 20
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "httpbridge"
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
