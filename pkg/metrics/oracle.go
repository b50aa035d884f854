package metrics

import (
	"context"
	"time"

	"github.com/snow-ghost/healer/core"
)

// InstrumentedOracle records call counts and latency for every oracle
// round trip; it satisfies core.Oracle.
type InstrumentedOracle struct {
	inner   core.Oracle
	metrics *PrometheusMetrics
}

// NewInstrumentedOracle wraps inner with call metrics.
func NewInstrumentedOracle(inner core.Oracle, m *PrometheusMetrics) *InstrumentedOracle {
	return &InstrumentedOracle{inner: inner, metrics: m}
}

// Predict delegates to the wrapped oracle and records the outcome.
func (o *InstrumentedOracle) Predict(ctx context.Context, prompt string) (float64, error) {
	start := time.Now()
	score, err := o.inner.Predict(ctx, prompt)
	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordOracleCall(status, time.Since(start))
	return score, err
}
