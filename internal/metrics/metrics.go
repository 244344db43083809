// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dailydeen/dailydeen/internal/rotation"
)

const namespace = "dailydeen"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	rotations    *prometheus.CounterVec
	stateWrites  *prometheus.CounterVec
	cycleResets  *prometheus.CounterVec
	lastRotation prometheus.Gauge

	cacheLookups *prometheus.CounterVec

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),

		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "rotations_total",
			Help:      "Rotation attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		stateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "state_writes_total",
			Help:      "Durable state writes by outcome.",
		}, []string{"outcome"}),
		cycleResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "cycle_resets_total",
			Help:      "Completed no-repeat cycles by kind.",
		}, []string{"kind"}),
		lastRotation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful rotation.",
		}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),

		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Requests to upstream providers by status code.",
		}, []string{"provider", "code"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream provider requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}, []string{"provider"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.rotations, m.stateWrites, m.cycleResets, m.lastRotation,
		m.cacheLookups,
		m.upstreamRequests, m.upstreamDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one handled request. route should be the router
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveRotation implements rotation.Recorder.
func (m *Metrics) ObserveRotation(kind string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, rotation.ErrStorageWriteFailed):
		outcome = "storage_error"
	case errors.Is(err, rotation.ErrContentFetchFailed):
		outcome = "fetch_error"
	default:
		outcome = "error"
	}
	m.rotations.WithLabelValues(kind, outcome).Inc()
	if err == nil || outcome == "storage_error" {
		m.lastRotation.SetToCurrentTime()
	}
}

// ObserveStateWrite implements rotation.Recorder.
func (m *Metrics) ObserveStateWrite(err error) {
	if err != nil {
		m.stateWrites.WithLabelValues("error").Inc()
		return
	}
	m.stateWrites.WithLabelValues("ok").Inc()
}

// ObserveCycleReset implements rotation.Recorder.
func (m *Metrics) ObserveCycleReset(kind string) {
	m.cycleResets.WithLabelValues(kind).Inc()
}

// ObserveCache implements cache.Recorder.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// InstrumentClient returns a copy of c whose transport records request counts
// and latency for provider.
func (m *Metrics) InstrumentClient(provider string, c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	labels := prometheus.Labels{"provider": provider}
	rt := promhttp.InstrumentRoundTripperCounter(m.upstreamRequests.MustCurryWith(labels),
		promhttp.InstrumentRoundTripperDuration(m.upstreamDuration.MustCurryWith(labels), base))
	out := *c
	out.Transport = rt
	return &out
}
