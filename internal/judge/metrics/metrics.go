// Package metrics exposes judge pipeline counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "judge"

var (
	// 10ms -> ~10min
	judgeBuckets = prometheus.ExponentialBuckets(0.01, 2, 16)
	// 1ms -> ~2min
	sandboxBuckets = prometheus.ExponentialBuckets(0.001, 2, 17)
)

// Metrics holds the collectors of one judge service.
type Metrics struct {
	judgeTotal       *prometheus.CounterVec
	judgeDuration    *prometheus.HistogramVec
	sandboxRuns      *prometheus.CounterVec
	sandboxDuration  *prometheus.HistogramVec
	inflight         prometheus.Gauge
	rejected         *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		judgeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "results_total",
			Help:      "Number of finished judging attempts by outcome kind",
		}, []string{"status", "kind"}),
		judgeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "duration_seconds",
			Help:      "Histogram for the time from running to terminal state",
			Buckets:   judgeBuckets,
		}, []string{"status"}),
		sandboxRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sandbox_runs_total",
			Help:      "Number of sandbox executions by result",
		}, []string{"result"}),
		sandboxDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sandbox_duration_seconds",
			Help:      "Histogram for the sandbox wall time",
			Buckets:   sandboxBuckets,
		}, []string{"result"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight",
			Help:      "Number of submissions currently holding a worker slot",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_total",
			Help:      "Number of judge requests rejected before running",
		}, []string{"reason"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Number of failed best-effort deliveries of a terminal result",
		}, []string{"target"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.judgeTotal, m.judgeDuration,
			m.sandboxRuns, m.sandboxDuration,
			m.inflight, m.rejected, m.deliveryFailures,
		)
	}
	return m
}

// ObserveResult records a terminal result.
func (m *Metrics) ObserveResult(status, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.judgeTotal.WithLabelValues(status, kind).Inc()
	m.judgeDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveSandboxRun implements sandbox.Observer.
func (m *Metrics) ObserveSandboxRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sandboxRuns.WithLabelValues(result).Inc()
	m.sandboxDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// IncInflight marks a submission as holding a worker slot.
func (m *Metrics) IncInflight() {
	if m != nil {
		m.inflight.Inc()
	}
}

// DecInflight releases what IncInflight marked.
func (m *Metrics) DecInflight() {
	if m != nil {
		m.inflight.Dec()
	}
}

// Rejected counts a request turned away before running, e.g. AlreadyJudging.
func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

// DeliveryFailed counts a failed persist, cache or notify step.
func (m *Metrics) DeliveryFailed(target string) {
	if m != nil {
		m.deliveryFailures.WithLabelValues(target).Inc()
	}
}
