// Package metrics exposes Prometheus collectors for batch runs and approvals.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pension_sentinel"

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	Registry *prometheus.Registry

	batchRuns        *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	fundOutcomes     *prometheus.CounterVec
	proposalsCreated prometheus.Counter
	approvals        *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		batchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "runs_total",
				Help:      "Total number of batch runs by result.",
			},
			[]string{"result"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "run_duration_seconds",
				Help:      "Duration of batch runs.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
			},
		),
		fundOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "fund_outcomes_total",
				Help:      "Per-fund outcomes of batch runs.",
			},
			[]string{"outcome"},
		),
		proposalsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "proposals_created_total",
				Help:      "Total number of investment proposals created.",
			},
		),
		approvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "approval",
				Name:      "decisions_total",
				Help:      "Approval and rejection commands by action and result.",
			},
			[]string{"action", "result"},
		),
	}
	m.Registry.MustRegister(m.batchRuns, m.batchDuration, m.fundOutcomes, m.proposalsCreated, m.approvals)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(result).Inc()
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) FundOutcome(outcome string) {
	if m == nil {
		return
	}
	m.fundOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProposalsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.proposalsCreated.Add(float64(n))
}

func (m *Metrics) Decision(action, result string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(action, result).Inc()
}
