// Package metrics provides Prometheus metrics for the proposal agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec
	RequestDuration        *prometheus.HistogramVec
	ClassificationsTotal   *prometheus.CounterVec
	CacheLookupsTotal      *prometheus.CounterVec
	PatternsPromotedTotal  prometheus.Counter
	OutlineSectionsBuilt   prometheus.Counter
	ErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of agent requests by operation and status.",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_request_duration_seconds",
				Help:    "Request processing duration by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_classifications_total",
				Help: "Total classifications by top-ranked category.",
			},
			[]string{"category"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_cache_lookups_total",
				Help: "TTL cache lookups by namespace and result.",
			},
			[]string{"namespace", "result"},
		),
		PatternsPromotedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_patterns_promoted_total",
				Help: "Interaction patterns promoted into long-term memory.",
			},
		),
		OutlineSectionsBuilt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_outline_sections_built_total",
				Help: "Outline sections composed across all requests.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.ClassificationsTotal)
	reg.MustRegister(m.CacheLookupsTotal)
	reg.MustRegister(m.PatternsPromotedTotal)
	reg.MustRegister(m.OutlineSectionsBuilt)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(operation, status string) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// RecordClassification increments the classification counter.
func (m *Metrics) RecordClassification(category string) {
	m.ClassificationsTotal.WithLabelValues(category).Inc()
}

// RecordCacheLookup increments the cache lookup counter.
func (m *Metrics) RecordCacheLookup(namespace, result string) {
	m.CacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(operation string, seconds float64) {
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}
