// Package metrics defines the Prometheus collectors used by the analytics
// service and serves them for scraping.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RecomputeRunsTotal   *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	MatrixLegislators    prometheus.Gauge
	MatrixIssues         prometheus.Gauge
	AxisVariance         *prometheus.GaugeVec
	PowerIterations      *prometheus.GaugeVec
	ProjectionsTotal     *prometheus.CounterVec
	FallbackTotal        *prometheus.CounterVec
	CacheLookupsTotal    *prometheus.CounterVec
	EventsTotal          *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RecomputeRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpa_recompute_runs_total",
				Help: "Batch recompute runs by outcome (published, insufficient_data, error).",
			},
			[]string{"status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vpa_stage_duration_seconds",
				Help:    "Duration of each batch stage in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		MatrixLegislators: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vpa_matrix_legislators",
				Help: "Legislators retained in the last batch matrix.",
			},
		),
		MatrixIssues: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vpa_matrix_issues",
				Help: "Issues retained in the last batch matrix.",
			},
		),
		AxisVariance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vpa_axis_variance",
				Help: "Variance captured by each axis in the last published run.",
			},
			[]string{"axis"},
		),
		PowerIterations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vpa_power_iterations",
				Help: "Power-iteration rounds used per axis in the last run.",
			},
			[]string{"axis"},
		),
		ProjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpa_projections_total",
				Help: "Projection requests by result (ok, stale, no_basis, error).",
			},
			[]string{"result"},
		),
		FallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpa_coordinates_served_total",
				Help: "Coordinate reads by source (stored, live).",
			},
			[]string{"source"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpa_cache_lookups_total",
				Help: "Cache lookups by kind and result (hit, miss).",
			},
			[]string{"kind", "result"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpa_events_total",
				Help: "Kafka events by direction and outcome.",
			},
			[]string{"direction", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RecomputeRunsTotal,
		m.StageDuration,
		m.MatrixLegislators,
		m.MatrixIssues,
		m.AxisVariance,
		m.PowerIterations,
		m.ProjectionsTotal,
		m.FallbackTotal,
		m.CacheLookupsTotal,
		m.EventsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveCache is a cache observer that counts lookups.
func (m *Metrics) ObserveCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveBreaker is a circuit breaker listener: 0 closed, 1 open, 2 half-open.
func (m *Metrics) ObserveBreaker(name string, _, to resilience.State) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}

// SetAxes records per-axis variance and iteration counts, clearing stale axes.
func (m *Metrics) SetAxes(variance []float64, iterations []int) {
	m.AxisVariance.Reset()
	m.PowerIterations.Reset()
	for c, v := range variance {
		m.AxisVariance.WithLabelValues(strconv.Itoa(c)).Set(v)
	}
	for c, n := range iterations {
		m.PowerIterations.WithLabelValues(strconv.Itoa(c)).Set(float64(n))
	}
}
