// Package metrics holds the Prometheus instruments for the healing engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics.
type PrometheusMetrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	ErrorsDetected   *prometheus.CounterVec
	ErrorsHealed     prometheus.Counter
	EscalationsTotal *prometheus.CounterVec

	// Attempt metrics
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec

	// Oracle metrics
	OracleCallsTotal      *prometheus.CounterVec
	OracleLatency         prometheus.Histogram
	PredictionCacheHits   prometheus.Counter
	PredictionCacheMisses prometheus.Counter

	// Decision metrics
	DecisionsTotal *prometheus.CounterVec
	PatternUpdates prometheus.Counter

	// Circuit breaker metrics
	CircuitOpenTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new Prometheus metrics instance.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		CyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_cycles_total",
				Help: "Total number of healing cycles by outcome",
			},
			[]string{"outcome"},
		),

		CycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "healer_cycle_duration_seconds",
				Help:    "Healing cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		ErrorsDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_errors_detected_total",
				Help: "Total number of detected errors by category",
			},
			[]string{"category"},
		),

		ErrorsHealed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "healer_errors_healed_total",
				Help: "Total number of errors healed automatically",
			},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_escalations_total",
				Help: "Total number of escalations to a human by category",
			},
			[]string{"category"},
		),

		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_attempts_total",
				Help: "Total number of healing attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),

		AttemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healer_attempt_duration_seconds",
				Help:    "Healing attempt duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),

		OracleCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_oracle_calls_total",
				Help: "Total number of oracle calls by status",
			},
			[]string{"status"},
		),

		OracleLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "healer_oracle_latency_seconds",
				Help:    "Oracle round-trip latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		PredictionCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "healer_prediction_cache_hits_total",
				Help: "Total number of prediction cache hits",
			},
		),

		PredictionCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "healer_prediction_cache_misses_total",
				Help: "Total number of prediction cache misses",
			},
		),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_decisions_total",
				Help: "Total number of decision scoring calls by gating result",
			},
			[]string{"requires_user_input"},
		),

		PatternUpdates: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "healer_pattern_confidence_updates_total",
				Help: "Total number of pattern confidence updates applied",
			},
		),

		CircuitOpenTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healer_circuit_open_total",
				Help: "Total number of circuit breaker open transitions",
			},
			[]string{"breaker"},
		),
	}
}

// RecordCycle records one completed cycle.
func (m *PrometheusMetrics) RecordCycle(outcome string, duration time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// RecordAttempt records one healing attempt.
func (m *PrometheusMetrics) RecordAttempt(strategy, outcome string, duration time.Duration) {
	m.AttemptsTotal.WithLabelValues(strategy, outcome).Inc()
	m.AttemptDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordOracleCall records one oracle round trip.
func (m *PrometheusMetrics) RecordOracleCall(status string, duration time.Duration) {
	m.OracleCallsTotal.WithLabelValues(status).Inc()
	m.OracleLatency.Observe(duration.Seconds())
}
