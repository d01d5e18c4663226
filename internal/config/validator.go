package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/language"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/route"
)

// RegisterCustomValidators registers httpbridge validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"route_pattern": validateRoutePattern,
		"context_path":  validateContextPath,
		"duration":      validateDuration,
		"charset":       validateCharset,
		"locale":        validateLocale,
		"cookie_name":   validateCookieName,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateRoutePattern accepts absolute patterns with at most one trailing
// "/*" wildcard and no other '*'.
func validateRoutePattern(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if !strings.HasPrefix(p, "/") {
		return false
	}
	base := strings.TrimSuffix(p, "/*")
	if p == "/*" {
		base = ""
	}
	return !strings.Contains(base, "*")
}

func validateContextPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return strings.HasPrefix(p, "/") && !strings.ContainsAny(p, "*?#")
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

func validateCharset(fl validator.FieldLevel) bool {
	_, err := htmlindex.Get(fl.Field().String())
	return err == nil
}

func validateLocale(fl validator.FieldLevel) bool {
	tag, err := language.Parse(fl.Field().String())
	return err == nil && tag != language.Und
}

// validateCookieName accepts RFC 7230 token characters only.
func validateCookieName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune(`()<>@,;:\"/[]?={}`, r) {
			return false
		}
	}
	return name != ""
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSweepWithinTTL(); err != nil {
		return err
	}

	// The route table enforces uniqueness and context-path containment;
	// building it here surfaces those errors at load time.
	if _, err := c.RouteTable(); err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	return nil
}

// validateSweepWithinTTL rejects watchdogs that would sweep less often than
// sessions expire.
func (c *Config) validateSweepWithinTTL() error {
	ttl := c.Session.TTLDuration(0)
	sweep := c.Session.SweepDuration(0)
	if ttl > 0 && sweep > ttl {
		return fmt.Errorf("session.sweep_interval (%s) must not exceed session.ttl (%s)", c.Session.SweepInterval, c.Session.TTL)
	}
	return nil
}

// RouteTable builds the route table described by the configuration.
func (c *Config) RouteTable() (*route.Table, error) {
	routes := make([]route.Route, len(c.Routes))
	for i, r := range c.Routes {
		routes[i] = route.Route{Pattern: r.Pattern, Handler: r.Handler}
	}
	return route.NewTable(c.Server.ContextPath, routes...)
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "route_pattern":
		return fmt.Sprintf("%s must start with '/' and may only end in '/*'", field)
	case "context_path":
		return fmt.Sprintf("%s must start with '/'", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30m\"", field)
	case "charset":
		return fmt.Sprintf("%s is not a known character encoding", field)
	case "locale":
		return fmt.Sprintf("%s must be a BCP 47 language tag", field)
	case "cookie_name":
		return fmt.Sprintf("%s must be a valid cookie name", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
