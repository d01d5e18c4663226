package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
)

// Handler serves requests routed to it.
type Handler interface {
	ServeBridge(w http.ResponseWriter, rc *request.Context) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as Handlers.
type HandlerFunc func(w http.ResponseWriter, rc *request.Context) error

// ServeBridge calls f(w, rc).
func (f HandlerFunc) ServeBridge(w http.ResponseWriter, rc *request.Context) error {
	return f(w, rc)
}

var _ Handler = HandlerFunc(nil)

// NotFoundHandler is the registry name consulted when no route matches.
const NotFoundHandler = "not-found"

// ErrDuplicateHandler is returned when a handler name is registered twice.
var ErrDuplicateHandler = errors.New("duplicate handler")

// Registry maps handler identities from the route table to Handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under name.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return errors.New("handler name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
