// Package metrics holds the Prometheus collectors for sessions and command
// executions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution modes.
const (
	ModeSend    = "send"
	ModeCapture = "capture"
)

// Execution outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeFallback  = "fallback"
)

type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsReaped  prometheus.Counter

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	Cancels           prometheus.Counter
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "termtools_sessions_active",
			Help: "Number of live named sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "termtools_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "termtools_sessions_reaped_total",
			Help: "Sessions dropped because their terminal went away",
		}),

		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termtools_executions_total",
				Help: "Commands sent to sessions",
			},
			[]string{"mode", "outcome"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termtools_execution_duration_seconds",
				Help:    "Wall time of captured executions",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
			},
			[]string{"outcome"},
		),
		Cancels: factory.NewCounter(prometheus.CounterOpts{
			Name: "termtools_cancels_total",
			Help: "Interrupts sent to sessions",
		}),
	}
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *Metrics) SessionReaped() {
	if m == nil {
		return
	}
	m.SessionsReaped.Inc()
}

func (m *Metrics) RecordExecution(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(mode, outcome).Inc()
	if mode == ModeCapture {
		m.ExecutionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) RecordCancel() {
	if m == nil {
		return
	}
	m.Cancels.Inc()
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
