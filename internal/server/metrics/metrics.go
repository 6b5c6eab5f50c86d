// Package metrics exposes the server's prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Metrics holds every instrument on a private registry, so that several
// servers (or tests) in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authAttempts  *prometheus.CounterVec
	transferBytes *prometheus.CounterVec
	transferFiles *prometheus.CounterVec
}

// New registers the instruments together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "depot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "auth_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved through upload and download.",
		}, []string{"direction"}),
		transferFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "transfer_files_total",
			Help:      "Files moved through upload and download.",
		}, []string{"direction"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.authAttempts,
		m.transferBytes,
		m.transferFiles,
	)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AuthAttempt counts one login attempt.
func (m *Metrics) AuthAttempt(outcome string) {
	m.authAttempts.WithLabelValues(outcome).Inc()
}

// Transfer counts one file and its size in the given direction.
func (m *Metrics) Transfer(direction string, bytes int64) {
	m.transferFiles.WithLabelValues(direction).Inc()
	m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
