package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	transitionsTotal *prometheus.CounterVec
	derivationsTotal *prometheus.CounterVec
	cascadeLevels    prometheus.Histogram
}

// NewMetrics initialises the registry with HTTP and sync engine metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewpact_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crewpact_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewpact_status_transitions_total",
		Help: "Status transitions applied by the sync engine, by entity kind and new status.",
	}, []string{"kind", "status"})
	derivations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewpact_status_derivations_total",
		Help: "Derived status changes persisted per hierarchy level.",
	}, []string{"kind"})
	cascade := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crewpact_sync_cascade_levels",
		Help:    "Hierarchy levels touched by one leaf transition.",
		Buckets: []float64{1, 2, 3},
	})
	registry.MustRegister(requests, duration, transitions, derivations, cascade)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		transitionsTotal: transitions,
		derivationsTotal: derivations,
		cascadeLevels:    cascade,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// TransitionApplied counts a status transition applied by the sync engine.
func (m *Metrics) TransitionApplied(kind, status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(kind, status).Inc()
}

// DerivationChanged counts a persisted derived status change.
func (m *Metrics) DerivationChanged(kind string) {
	if m == nil {
		return
	}
	m.derivationsTotal.WithLabelValues(kind).Inc()
}

// CascadeFanout observes how many hierarchy levels one transition touched.
func (m *Metrics) CascadeFanout(levels int) {
	if m == nil {
		return
	}
	m.cascadeLevels.Observe(float64(levels))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
