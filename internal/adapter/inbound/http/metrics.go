package http

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// Metrics holds all Prometheus metrics for httpbridge.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ActiveSessions      prometheus.Gauge
	SessionsCreated     prometheus.Counter
	SessionsDestroyed   *prometheus.CounterVec
	ActiveConnections   prometheus.Gauge
	InterceptorFailures *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpbridge",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "status"}, // status=2xx/4xx/5xx
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "httpbridge",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "httpbridge",
				Name:      "active_sessions",
				Help:      "Number of live sessions",
			},
		),
		SessionsCreated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "httpbridge",
				Name:      "sessions_created_total",
				Help:      "Total sessions created",
			},
		),
		SessionsDestroyed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpbridge",
				Name:      "sessions_destroyed_total",
				Help:      "Total sessions destroyed",
			},
			[]string{"reason"}, // expired/invalidated/shutdown
		),
		ActiveConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "httpbridge",
				Name:      "active_connections",
				Help:      "Number of open client connections",
			},
		),
		InterceptorFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpbridge",
				Name:      "interceptor_failures_total",
				Help:      "Total failing or panicking interceptor hooks",
			},
			[]string{"hook"},
		),
	}
}

// ObserveSessions keeps the session metrics in step with store.
func (m *Metrics) ObserveSessions(store session.Store) {
	store.OnCreate(func(context.Context, *session.Session) {
		m.SessionsCreated.Inc()
		m.ActiveSessions.Inc()
	})
	store.OnDestroy(func(_ context.Context, _ *session.Session, reason session.DestroyReason) error {
		m.SessionsDestroyed.WithLabelValues(string(reason)).Inc()
		m.ActiveSessions.Dec()
		return nil
	})
}

// ObserveSweep resynchronises the live-session gauge after a watchdog sweep.
func (m *Metrics) ObserveSweep(_, live int) {
	m.ActiveSessions.Set(float64(live))
}

// ObserveInterceptorFailure counts a failing interceptor hook.
func (m *Metrics) ObserveInterceptorFailure(hook, _ string) {
	m.InterceptorFailures.WithLabelValues(hook).Inc()
}
