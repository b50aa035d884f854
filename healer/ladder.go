// Package healer drives the per-error strategy ladder: bounded attempts
// through ordered remediation strategies, ending in Healed or Escalated.
package healer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snow-ghost/healer/core"
	"github.com/snow-ghost/healer/decision"
	"github.com/snow-ghost/healer/learner"
)

// Config bounds a ladder run.
type Config struct {
	MaxAttempts         int
	ConfidenceThreshold float64
	OracleTimeout       time.Duration
}

// DefaultConfig returns the standard ladder bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         3,
		ConfidenceThreshold: 0.7,
		OracleTimeout:       15 * time.Second,
	}
}

// Ladder is the per-error state machine. It is driven sequentially by the
// orchestrator; that sequencing is what protects the shared pattern
// counters, so the ladder itself holds no locks.
type Ladder struct {
	errors   core.ErrorStore
	patterns core.PatternStore
	learner  *learner.Learner
	oracle   core.Oracle
	scorer   *decision.Scorer
	fixes    *FixTable
	cfg      Config
}

// New creates a ladder. oracle and scorer may be nil: the oracle rung
// then fails closed and pattern selection falls back to highest
// confidence. fixes may be nil to use the built-in table.
func New(errors core.ErrorStore, patterns core.PatternStore, lrn *learner.Learner,
	oracle core.Oracle, scorer *decision.Scorer, fixes *FixTable, cfg Config) *Ladder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = DefaultConfig().OracleTimeout
	}
	if fixes == nil {
		fixes = DefaultFixTable()
	}
	return &Ladder{
		errors:   errors,
		patterns: patterns,
		learner:  lrn,
		oracle:   oracle,
		scorer:   scorer,
		fixes:    fixes,
		cfg:      cfg,
	}
}

// Heal runs the ladder for one error record to a terminal state. With
// autoApply false the run is a dry run: attempts are scored and recorded
// but the record is never resolved.
func (l *Ladder) Heal(ctx context.Context, rec core.ErrorRecord, autoApply bool) core.HealResult {
	result := core.HealResult{ErrorID: rec.ID}

	if rec.Status == core.StatusResolved {
		// resolved records must never be re-attempted; report a healed
		// no-op rather than running strategies against stale state
		result.State = core.HealStateHealed
		return result
	}

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		strategy, apply := l.selectStrategy(attempt)
		if apply == nil {
			break
		}

		start := time.Now()
		step := apply(ctx, rec)
		if step.Confidence < 0 || step.Confidence > 1 {
			// an engine bug, not an operational condition
			panic(fmt.Sprintf("strategy %s produced confidence %f out of [0,1]", strategy, step.Confidence))
		}

		attemptRec := core.HealingAttempt{
			ErrorID:       rec.ID,
			Strategy:      strategy,
			AttemptNumber: attempt,
			Outcome:       step.Outcome,
			Confidence:    step.Confidence,
			Description:   step.Description,
			Duration:      time.Since(start),
			Timestamp:     time.Now(),
		}
		result.Attempts = append(result.Attempts, attemptRec)

		if err := l.errors.AppendAttempt(ctx, attemptRec); err != nil {
			slog.WarnContext(ctx, "failed to persist attempt", "error_id", rec.ID, "error", err)
		}
		if l.learner != nil && step.PatternName != "" {
			success := step.Outcome == core.OutcomeSuccess
			if err := l.learner.RecordOutcome(ctx, step.PatternName, success); err != nil {
				slog.WarnContext(ctx, "failed to record pattern outcome",
					"pattern", step.PatternName, "error", err)
			}
		}

		slog.InfoContext(ctx, "healing attempt",
			"error_id", rec.ID,
			"strategy", strategy,
			"attempt", attempt,
			"outcome", step.Outcome,
			"confidence", step.Confidence)

		if step.Outcome == core.OutcomeSuccess && step.Confidence >= l.cfg.ConfidenceThreshold {
			if !autoApply {
				result.State = core.HealStateHealed
				result.WouldHeal = true
				return result
			}
			if err := l.errors.Resolve(ctx, rec.ID, step.Description); err != nil {
				slog.WarnContext(ctx, "failed to resolve record", "error_id", rec.ID, "error", err)
				continue // keep climbing; the record is still open
			}
			result.State = core.HealStateHealed
			return result
		}
	}

	reason := fmt.Sprintf("exhausted %d attempts without a confident remediation", len(result.Attempts))
	result.State = core.HealStateEscalated
	result.Escalation = &core.Escalation{
		ErrorID:           rec.ID,
		Category:          rec.Category,
		Reason:            reason,
		HumanActionNeeded: HumanAction(rec.Category),
		Attempts:          len(result.Attempts),
	}
	slog.WarnContext(ctx, "error escalated",
		"error_id", rec.ID, "category", rec.Category, "attempts", len(result.Attempts))
	return result
}
