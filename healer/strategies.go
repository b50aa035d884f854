package healer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/snow-ghost/healer/core"
)

// stepResult is the discriminated outcome of one strategy application.
type stepResult struct {
	Outcome     core.Outcome
	Confidence  float64
	Description string
	// PatternName is set only by the pattern strategy so the learner can
	// attribute the outcome.
	PatternName string
}

// strategyFunc applies one rung of the ladder. Strategies degrade
// internally: collaborator failures become failed steps, never errors.
type strategyFunc func(ctx context.Context, rec core.ErrorRecord) stepResult

// strategyOrder is the fixed, total ladder order: attempt N uses
// strategyOrder[N-1].
var strategyOrder = []core.Strategy{
	core.StrategyPattern,
	core.StrategyDeterministic,
	core.StrategyOracle,
}

// patternStrategy selects the highest-confidence pattern for the error's
// category that clears the confidence threshold. Applying a pattern
// yields outcome confidence equal to the pattern's own score.
func (l *Ladder) patternStrategy(ctx context.Context, rec core.ErrorRecord) stepResult {
	patterns, err := l.patterns.FindByCategory(ctx, rec.Category)
	if err != nil {
		slog.WarnContext(ctx, "pattern lookup failed", "error_id", rec.ID, "error", err)
		return stepResult{Outcome: core.OutcomeFailure, Description: "pattern store unavailable"}
	}

	qualified := patterns[:0]
	for _, p := range patterns {
		if p.Confidence >= l.cfg.ConfidenceThreshold {
			qualified = append(qualified, p)
		}
	}
	if len(qualified) == 0 {
		return stepResult{Outcome: core.OutcomeFailure, Description: core.ErrNoPattern.Error()}
	}

	chosen := qualified[0]
	if len(qualified) > 1 && l.scorer != nil {
		if picked, ok := l.pickPattern(ctx, rec, qualified); ok {
			chosen = picked
		}
	}

	return stepResult{
		Outcome:     core.OutcomeSuccess,
		Confidence:  chosen.Confidence,
		Description: fmt.Sprintf("applied pattern %s: %s", chosen.Name, chosen.Description),
		PatternName: chosen.Name,
	}
}

// pickPattern ranks qualifying patterns with the decision scorer. Risk is
// derived from the learned confidence; effort stays low since patterns
// are pre-packaged remedies.
func (l *Ladder) pickPattern(ctx context.Context, rec core.ErrorRecord, qualified []core.Pattern) (core.Pattern, bool) {
	options := make([]core.DecisionOption, len(qualified))
	byID := make(map[string]core.Pattern, len(qualified))
	for i, p := range qualified {
		risk := core.RiskHigh
		switch {
		case p.Confidence >= 0.85:
			risk = core.RiskLow
		case p.Confidence >= 0.7:
			risk = core.RiskMedium
		}
		options[i] = core.DecisionOption{ID: p.Name, Effort: core.EffortLow, Risk: risk}
		byID[p.Name] = p
	}

	d, err := l.scorer.Score(ctx, options, core.DecisionContext{
		ScenarioCategory: "pattern-selection/" + string(rec.Category),
		RiskTolerance:    core.RiskLow,
		TimeConstraint:   core.EffortLow,
	})
	if err != nil {
		slog.WarnContext(ctx, "pattern selection scoring failed", "error_id", rec.ID, "error", err)
		return core.Pattern{}, false
	}
	p, ok := byID[d.Best.ID]
	return p, ok
}

// deterministicStrategy matches the message against the static fix table;
// confidence values are fixed constants, no learning involved.
func (l *Ladder) deterministicStrategy(ctx context.Context, rec core.ErrorRecord) stepResult {
	rule, ok := l.fixes.Match(rec)
	if !ok {
		return stepResult{Outcome: core.OutcomeFailure, Description: "no deterministic fix matches the message"}
	}
	return stepResult{
		Outcome:     core.OutcomeSuccess,
		Confidence:  rule.Confidence,
		Description: rule.Fix,
	}
}

// oracleStrategy requires a code or context snippet and makes one bounded
// oracle round trip. A missing snippet fails with confidence 0; a failed
// call degrades to the neutral 0.5 and never propagates.
func (l *Ladder) oracleStrategy(ctx context.Context, rec core.ErrorRecord) stepResult {
	snippet := rec.Context["code"]
	if snippet == "" {
		snippet = rec.Context["snippet"]
	}
	if snippet == "" || l.oracle == nil {
		return stepResult{Outcome: core.OutcomeFailure, Confidence: 0, Description: core.ErrNoSnippet.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.OracleTimeout)
	defer cancel()

	prompt := fmt.Sprintf("category=%s severity=%s message=%s\n%s", rec.Category, rec.Severity, rec.Message, snippet)
	score, err := l.oracle.Predict(callCtx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "oracle call failed, degrading to neutral",
			"error_id", rec.ID, "error", err)
		return stepResult{Outcome: core.OutcomeFailure, Confidence: 0.5, Description: "oracle unavailable"}
	}

	score = math.Max(0, math.Min(1, score))
	outcome := core.OutcomeFailure
	if score >= 0.5 {
		outcome = core.OutcomeSuccess
	}
	return stepResult{
		Outcome:     outcome,
		Confidence:  score,
		Description: fmt.Sprintf("oracle-assisted remediation scored %.2f", score),
	}
}

// selectStrategy is the closed dispatch table of the ladder. Attempts past
// the configured maximum map to escalation.
func (l *Ladder) selectStrategy(attempt int) (core.Strategy, strategyFunc) {
	if attempt < 1 || attempt > len(strategyOrder) || attempt > l.cfg.MaxAttempts {
		return core.StrategyEscalate, nil
	}
	switch strategyOrder[attempt-1] {
	case core.StrategyPattern:
		return core.StrategyPattern, l.patternStrategy
	case core.StrategyDeterministic:
		return core.StrategyDeterministic, l.deterministicStrategy
	case core.StrategyOracle:
		return core.StrategyOracle, l.oracleStrategy
	}
	return core.StrategyEscalate, nil
}
