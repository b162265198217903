// Package metrics exports registry activity to Prometheus. Metrics is an
// event sink for ledger notifications and an HTTP middleware for request
// counts and latencies.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

// Metrics holds the registry collectors
type Metrics struct {
	events       *prometheus.CounterVec
	paused       prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "media_registry_events_total",
			Help: "Ledger notifications emitted, by type.",
		}, []string{"type"}),
		paused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "media_registry_paused",
			Help: "1 while the registry is paused.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "media_registry_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "media_registry_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Publish implements mediaregistry.EventSink
func (m *Metrics) Publish(ctx context.Context, event mediaregistry.Event) error {
	m.events.WithLabelValues(string(event.Type)).Inc()
	switch event.Type {
	case mediaregistry.EventPaused:
		m.paused.Set(1)
	case mediaregistry.EventUnpaused:
		m.paused.Set(0)
	}
	return nil
}

// SetPaused seeds the paused gauge from the stored control state
func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

// Middleware records request counts and latency. Routes are labelled with
// the chi route pattern so handles and indices do not inflate cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
