// Package metrics owns the prometheus collectors of the service. Every
// method tolerates a nil *Metrics so tests can leave it unset.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ezf"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	useCases        *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	offerPool       prometheus.Gauge
}

// New registers all collectors on a fresh registry owned by the app.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		useCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "usecase_requests_total",
			Help: "Engine operations by outcome.",
		}, []string{"use_case", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Domain events accepted by the bus.",
		}, []string{"event"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_handler_failures_total",
			Help: "Event handler attempts that returned an error or panicked.",
		}, []string{"event"}),
		offerPool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "offer_pool_entries_total",
			Help: "Orders that entered the driver offer pool since start.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.useCases,
		m.eventsPublished, m.handlerFailures, m.offerPool,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// UseCase records the outcome of an engine operation ("ok" or an error code).
func (m *Metrics) UseCase(name, outcome string) {
	if m == nil {
		return
	}
	m.useCases.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) EventPublished(event string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(event).Inc()
}

func (m *Metrics) HandlerFailed(event string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) OfferPooled() {
	if m == nil {
		return
	}
	m.offerPool.Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
