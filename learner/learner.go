// Package learner updates persisted pattern confidence from observed
// healing outcomes.
package learner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/snow-ghost/healer/core"
)

const (
	// minSamples gates reconciliation: below this many recorded outcomes
	// the empirical success rate is too noisy to act on.
	minSamples = 5
	// rateWeight pulls confidence toward the empirical success rate;
	// the remainder keeps the old value.
	rateWeight = 0.8
	// hysteresis suppresses updates smaller than this delta.
	hysteresis = 0.1
)

// Learner records attempt outcomes against patterns and reconciles their
// confidence scores once per cycle.
type Learner struct {
	patterns core.PatternStore

	mu      sync.Mutex
	touched map[string]bool
}

// New creates a learner over the given pattern store.
func New(patterns core.PatternStore) *Learner {
	return &Learner{patterns: patterns, touched: make(map[string]bool)}
}

// RecordOutcome increments the pattern's outcome counters and marks it
// touched for the next reconciliation pass.
func (l *Learner) RecordOutcome(ctx context.Context, patternName string, success bool) error {
	if patternName == "" {
		return nil
	}
	if err := l.patterns.IncrementCounters(ctx, patternName, success); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	l.mu.Lock()
	l.touched[patternName] = true
	l.mu.Unlock()
	return nil
}

// Touched returns the names of patterns with outcomes recorded since the
// last reconciliation.
func (l *Learner) Touched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.touched))
	for name := range l.touched {
		names = append(names, name)
	}
	return names
}

// Reconcile recomputes confidence for every touched pattern with enough
// samples, then clears the touched set. It returns one human-readable
// learning per pattern whose confidence actually moved.
//
// The update is a damped pull toward the empirical success rate:
//
//	new = 0.8*successRate + 0.2*old
//
// applied only when |new-old| > 0.1, so small-sample churn is ignored.
func (l *Learner) Reconcile(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	touched := l.touched
	l.touched = make(map[string]bool)
	l.mu.Unlock()

	var learnings []string
	for name := range touched {
		p, err := l.patterns.Get(ctx, name)
		if err != nil {
			return learnings, fmt.Errorf("reconcile %s: %w", name, err)
		}
		if p == nil || p.Samples() < minSamples {
			continue
		}

		old := p.Confidence
		next := rateWeight*p.SuccessRate() + (1-rateWeight)*old
		next = math.Max(0, math.Min(1, next))
		if math.Abs(next-old) <= hysteresis {
			continue
		}

		p.Confidence = next
		if err := l.patterns.Upsert(ctx, *p); err != nil {
			return learnings, fmt.Errorf("reconcile %s: %w", name, err)
		}
		slog.InfoContext(ctx, "pattern confidence updated",
			"pattern", name, "old", old, "new", next,
			"success_rate", p.SuccessRate(), "samples", p.Samples())
		learnings = append(learnings, fmt.Sprintf(
			"pattern %s: confidence %.2f -> %.2f (success rate %.2f over %d samples)",
			name, old, next, p.SuccessRate(), p.Samples()))
	}
	return learnings, nil
}
