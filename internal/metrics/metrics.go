// Package metrics exposes Prometheus instrumentation for the auth subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the broker auth/authz collectors.
type Metrics struct {
	authTotal            *prometheus.CounterVec
	authzTotal           *prometheus.CounterVec
	boundaryResponses    *prometheus.CounterVec
	sessionInvalidations prometheus.Counter
	cacheHits            prometheus.Counter
	cacheMisses          prometheus.Counter
	evalDuration         prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a registry with the standard Go collectors plus the auth
// subsystem metrics.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentication_total",
			Help:      "Authentication attempts by credential scheme and result",
		}, []string{"scheme", "result"}),
		authzTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_total",
			Help:      "Authorization decisions by result",
		}, []string{"result"}),
		boundaryResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_responses_total",
			Help:      "Admin/lookup responses by classification",
		}, []string{"class"}),
		sessionInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_invalidations_total",
			Help:      "Sessions invalidated after a backend-trust failure",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_hits_total",
			Help:      "Authorization decision cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_misses_total",
			Help:      "Authorization decision cache misses",
		}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authorization_duration_seconds",
			Help:      "Authorization evaluation latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.authTotal,
		m.authzTotal,
		m.boundaryResponses,
		m.sessionInvalidations,
		m.cacheHits,
		m.cacheMisses,
		m.evalDuration,
	)
	return m
}

// RecordAuthentication counts one authentication attempt.
func (m *Metrics) RecordAuthentication(scheme string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.authTotal.WithLabelValues(scheme, result).Inc()
}

// RecordAuthorization counts one decision.
func (m *Metrics) RecordAuthorization(allowed bool, seconds float64) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.authzTotal.WithLabelValues(result).Inc()
	m.evalDuration.Observe(seconds)
}

// RecordBoundaryResponse counts one classified response.
func (m *Metrics) RecordBoundaryResponse(class string) {
	m.boundaryResponses.WithLabelValues(class).Inc()
}

// RecordSessionInvalidation counts one invalidated session.
func (m *Metrics) RecordSessionInvalidation() {
	m.sessionInvalidations.Inc()
}

// RecordCacheHit counts a decision cache hit.
func (m *Metrics) RecordCacheHit() { m.cacheHits.Inc() }

// RecordCacheMiss counts a decision cache miss.
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Inc() }

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
