// Package metrics exposes Prometheus metrics for parent-side invocations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "confinity"

// Default histogram buckets for invocation duration (in seconds). A child
// process start dominates, so the range starts at 10ms.
var defaultBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Collector records invocation metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	boundaryMissing    *prometheus.CounterVec
	inFlight           prometheus.Gauge
}

// New creates a Collector. Nil or empty buckets use the defaults.
func New(buckets []float64) *Collector {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "invocations_total",
				Help:      "Total number of child-process invocations",
			},
			[]string{"target", "status"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of child-process invocations, including process start",
				Buckets:   buckets,
			},
			[]string{"target"},
		),

		boundaryMissing: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "boundary_missing_total",
				Help:      "Child processes that exited without a boundary envelope",
			},
			[]string{"target"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "invocations_in_flight",
				Help:      "Child processes currently running",
			},
		),
	}

	c.registry.MustRegister(
		c.invocationsTotal,
		c.invocationDuration,
		c.boundaryMissing,
		c.inFlight,
	)
	return c
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func (c *Collector) WithRuntimeCollectors() *Collector {
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Started marks an invocation as in flight. The returned func records its
// outcome and must be called exactly once.
func (c *Collector) Started(target string) func(status string, d time.Duration) {
	c.inFlight.Inc()
	return func(status string, d time.Duration) {
		c.inFlight.Dec()
		c.invocationsTotal.WithLabelValues(target, status).Inc()
		c.invocationDuration.WithLabelValues(target).Observe(d.Seconds())
	}
}

// BoundaryMissing counts a child that produced no envelope.
func (c *Collector) BoundaryMissing(target string) {
	c.boundaryMissing.WithLabelValues(target).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
