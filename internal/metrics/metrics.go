// Package metrics exposes recovery counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

const namespace = "delegate_recovery"

// Outcome labels
const (
	OutcomeSucceeded = "succeeded"
	OutcomeNoop      = "noop"
	OutcomeFailed    = "failed"
)

// Metrics holds the service collectors on their own registry
type Metrics struct {
	registry *prometheus.Registry

	recoveries *prometheus.CounterVec
	failures   *prometheus.CounterVec
	states     *prometheus.CounterVec
	inspection prometheus.Histogram
	recovery   *prometheus.HistogramVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Recovery runs by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed recovery runs by error code.",
		}, []string{"code"}),
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observed_states_total",
			Help:      "Disruption states observed by inspections.",
		}, []string{"state"}),
		inspection: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inspection_duration_seconds",
			Help:      "Time to read the facts of one account.",
			Buckets:   prometheus.DefBuckets,
		}),
		recovery: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recovery_duration_seconds",
			Help:      "Time from inspection to verified recovery.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"strategy"}),
	}

	m.registry.MustRegister(
		m.recoveries,
		m.failures,
		m.states,
		m.inspection,
		m.recovery,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveInspection records one inspection and the state it classified
func (m *Metrics) ObserveInspection(state types.DisruptionState, took time.Duration) {
	m.inspection.Observe(took.Seconds())
	m.states.WithLabelValues(state.String()).Inc()
}

// ObserveRecovery records the result of one recovery run. strategy may be
// empty when the run failed before a strategy was chosen.
func (m *Metrics) ObserveRecovery(strategy types.Strategy, err error, noop bool, took time.Duration) {
	label := string(strategy)
	if label == "" {
		label = "unselected"
	}

	switch {
	case err != nil:
		m.recoveries.WithLabelValues(label, OutcomeFailed).Inc()
		m.failures.WithLabelValues(errorCode(err)).Inc()
	case noop:
		m.recoveries.WithLabelValues(label, OutcomeNoop).Inc()
	default:
		m.recoveries.WithLabelValues(label, OutcomeSucceeded).Inc()
		m.recovery.WithLabelValues(label).Observe(took.Seconds())
	}
}

func errorCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return apperrors.ErrCodeInternalError
}
