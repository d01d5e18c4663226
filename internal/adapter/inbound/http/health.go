package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
	"github.com/Sentinel-Gate/httpbridge/internal/service"
)

// staleSweeps is how many missed sweep intervals mark the watchdog unhealthy.
const staleSweeps = 3

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	store    session.Store
	watchdog *service.Watchdog
	version  string
	now      func() time.Time
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(store session.Store, watchdog *service.Watchdog, version string) *HealthChecker {
	return &HealthChecker{
		store:    store,
		watchdog: watchdog,
		version:  version,
		now:      time.Now,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		checks["session_store"] = fmt.Sprintf("ok: %d live", h.store.Size())
	} else {
		checks["session_store"] = "not configured"
	}

	// A watchdog that has not swept for several intervals is wedged or dead;
	// idle sessions would then never expire.
	if h.watchdog != nil {
		last := h.watchdog.LastSweep()
		switch {
		case last.IsZero():
			checks["watchdog"] = "pending"
		case h.now().Sub(last) > staleSweeps*h.watchdog.Interval():
			checks["watchdog"] = fmt.Sprintf("stale: last sweep %s ago", h.now().Sub(last).Round(time.Second))
			healthy = false
		default:
			checks["watchdog"] = "ok"
		}
	} else {
		checks["watchdog"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
