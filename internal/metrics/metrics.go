// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge

	backendRequests *prometheus.CounterVec
	backendRetries  prometheus.Counter
	circuitState    prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by service, method, route and status.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Hosted backend requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		backendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backend_request_retries_total",
			Help: "Hosted backend request retries.",
		}),
		circuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backend_circuit_state",
			Help: "Backend circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.inFlight,
		m.backendRequests,
		m.backendRetries,
		m.circuitState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one completed request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.inFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.inFlight.Dec() }

// RecordBackendRequest records one hosted backend call.
func (m *Metrics) RecordBackendRequest(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.backendRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordBackendRetry records one retried backend call.
func (m *Metrics) RecordBackendRetry() { m.backendRetries.Inc() }

// SetCircuitState publishes the breaker state.
func (m *Metrics) SetCircuitState(state float64) { m.circuitState.Set(state) }
