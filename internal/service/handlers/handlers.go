// Package handlers provides the built-in application handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
	"github.com/Sentinel-Gate/httpbridge/internal/service"
)

// Built-in handler names as used in the route table.
const (
	EchoName    = "echo"
	SessionName = "session"
	LogoutName  = "logout"
)

// visitsAttribute holds the per-session visit counter.
const visitsAttribute = "visits"

// RegisterBuiltins adds every built-in handler to reg.
func RegisterBuiltins(reg *service.Registry) error {
	builtins := map[string]service.Handler{
		EchoName:                service.HandlerFunc(Echo),
		SessionName:             service.HandlerFunc(Session),
		LogoutName:              service.HandlerFunc(Logout),
		service.NotFoundHandler: service.HandlerFunc(NotFound),
	}
	for name, h := range builtins {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// EchoResponse is the JSON view returned by Echo.
type EchoResponse struct {
	Method      string              `json:"method"`
	RequestURI  string              `json:"request_uri"`
	RequestURL  string              `json:"request_url,omitempty"`
	ContextPath string              `json:"context_path"`
	ServletPath string              `json:"servlet_path"`
	PathInfo    string              `json:"path_info"`
	QueryString string              `json:"query_string"`
	Parameters  map[string][]string `json:"parameters"`
	Headers     map[string][]string `json:"headers"`
	Cookies     []string            `json:"cookies"`
	Locales     []string            `json:"locales"`
	Encoding    string              `json:"character_encoding"`
	RemoteAddr  string              `json:"remote_addr,omitempty"`
	RemotePort  int                 `json:"remote_port,omitempty"`
	Secure      bool                `json:"secure"`
	SessionID   string              `json:"session_id,omitempty"`
}

// Echo returns a JSON dump of the request view. It never creates a session.
func Echo(w http.ResponseWriter, rc *request.Context) error {
	resp := EchoResponse{
		Method:      rc.Method(),
		RequestURI:  rc.RequestURI(),
		ContextPath: rc.ContextPath(),
		ServletPath: rc.ServletPath(),
		PathInfo:    rc.PathInfo(),
		QueryString: rc.QueryString(),
		Parameters:  rc.ParameterMap(),
		Headers:     make(map[string][]string),
		Encoding:    rc.CharacterEncoding(),
	}
	for _, name := range rc.HeaderNames() {
		resp.Headers[name] = rc.Headers(name)
	}
	for _, c := range rc.Cookies() {
		resp.Cookies = append(resp.Cookies, c.Name)
	}
	for _, tag := range rc.Locales() {
		resp.Locales = append(resp.Locales, tag.String())
	}

	// Connection projections fail only when no connection is bound; the
	// echo view then simply omits them.
	var unbound *request.UnboundContextError
	if url, err := rc.RequestURL(); err == nil {
		resp.RequestURL = url
	} else if !errors.As(err, &unbound) {
		return err
	}
	if addr, err := rc.RemoteAddr(); err == nil {
		resp.RemoteAddr = addr
		resp.RemotePort, _ = rc.RemotePort()
		resp.Secure, _ = rc.IsSecure()
	}

	if sess, err := rc.Session(false); err == nil && sess != nil {
		resp.SessionID = sess.ID()
	}

	return writeJSON(w, http.StatusOK, resp)
}

// SessionResponse is returned by Session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Visits    int    `json:"visits"`
	New       bool   `json:"new"`
}

// Session counts visits in the caller's session, creating it on first use.
func Session(w http.ResponseWriter, rc *request.Context) error {
	sess, err := rc.Session(true)
	if err != nil {
		return err
	}

	visits := 0
	v, ok, err := sess.Attribute(visitsAttribute)
	if err != nil {
		return err
	}
	if ok {
		visits, _ = v.(int)
	}
	visits++
	if err := sess.SetAttribute(visitsAttribute, visits); err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: sess.ID(),
		Visits:    visits,
		New:       visits == 1,
	})
}

// Logout invalidates the caller's session, if any.
func Logout(w http.ResponseWriter, rc *request.Context) error {
	sess, err := rc.Session(false)
	if err != nil {
		return err
	}
	invalidated := false
	if sess != nil {
		switch err := sess.Invalidate(); {
		case err == nil:
			invalidated = true
		case errors.Is(err, session.ErrSessionInvalidated), errors.Is(err, session.ErrSessionNotFound):
			// already gone
		default:
			return err
		}
	}
	return writeJSON(w, http.StatusOK, map[string]bool{"invalidated": invalidated})
}

// NotFound answers requests that matched no route.
func NotFound(w http.ResponseWriter, rc *request.Context) error {
	return writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  rc.RequestURI(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
