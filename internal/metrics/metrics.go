// Package metrics holds the Prometheus collectors for the execution service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeKilled  = "killed"
)

// Rejection reasons.
const (
	ReasonTooLarge    = "too_large"
	ReasonRateLimited = "rate_limited"
	ReasonBusy        = "busy"
)

// Metrics holds Prometheus metrics for execution admission and outcomes.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Executions *prometheus.CounterVec
	Duration   prometheus.Histogram
	InFlight   prometheus.Gauge
	Rejections *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg, together with the
// Go runtime and process collectors.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		registry: reg,
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma_calc",
			Name:      "executions_total",
			Help:      "Executions that ran, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "magma_calc",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of each execution.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "magma_calc",
			Name:      "executions_in_flight",
			Help:      "Executions currently holding a slot.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma_calc",
			Name:      "rejections_total",
			Help:      "Requests refused before execution, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.Executions,
		m.Duration,
		m.InFlight,
		m.Rejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveExecution records one finished execution.
func (m *Metrics) ObserveExecution(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
}

// Reject records a refused request.
func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

// Started marks a slot as taken. The returned func releases it.
func (m *Metrics) Started() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
