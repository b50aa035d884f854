// Package decision ranks candidate options under uncertainty with a
// weighted multi-criteria score and human-in-the-loop gating.
package decision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/healer/core"
)

// Fixed component weights; they sum to 1 so the overall score stays in [0,1].
const (
	weightContextFit  = 0.40
	weightHistorical  = 0.30
	weightRiskFit     = 0.15
	weightEffortFit   = 0.10
	weightOracle      = 0.05
	neutralPrediction = 0.5
)

// Gates for requiring a human in the loop.
const (
	minOverallConfidence = 0.75
	minTopTwoGap         = 0.1
)

// riskFitTable maps (caller risk tolerance, option risk) to a fit score.
var riskFitTable = map[core.Risk]map[core.Risk]float64{
	core.RiskLow:    {core.RiskLow: 1.0, core.RiskMedium: 0.6, core.RiskHigh: 0.4},
	core.RiskMedium: {core.RiskLow: 0.8, core.RiskMedium: 1.0, core.RiskHigh: 0.7},
	core.RiskHigh:   {core.RiskLow: 0.6, core.RiskMedium: 0.8, core.RiskHigh: 1.0},
}

// effortFitTable maps (time constraint, option effort) to a fit score.
// The matrix is symmetric: mismatch costs the same in both directions.
var effortFitTable = map[core.Effort]map[core.Effort]float64{
	core.EffortLow:    {core.EffortLow: 1.0, core.EffortMedium: 0.7, core.EffortHigh: 0.4},
	core.EffortMedium: {core.EffortLow: 0.7, core.EffortMedium: 1.0, core.EffortHigh: 0.7},
	core.EffortHigh:   {core.EffortLow: 0.4, core.EffortMedium: 0.7, core.EffortHigh: 1.0},
}

// Predictor caches or fetches oracle likelihood estimates; failures are
// mapped to the neutral score by the scorer.
type Predictor interface {
	Predict(ctx context.Context, prompt string) (float64, error)
}

// Scorer ranks decision options and logs every call so future scores can
// lean on observed outcomes.
type Scorer struct {
	log       core.DecisionLog
	predictor Predictor
	observer  func(requiresUserInput bool)
}

// NewScorer creates a scorer. predictor may be nil; the oracle component
// then contributes its neutral default.
func NewScorer(log core.DecisionLog, predictor Predictor) *Scorer {
	return &Scorer{log: log, predictor: predictor}
}

// Observe registers a callback invoked after every Score call, e.g. to
// feed metrics counters.
func (s *Scorer) Observe(fn func(requiresUserInput bool)) {
	s.observer = fn
}

// Score ranks the options for the given context and logs the decision.
func (s *Scorer) Score(ctx context.Context, options []core.DecisionOption, dctx core.DecisionContext) (core.Decision, error) {
	if len(options) == 0 {
		return core.Decision{}, fmt.Errorf("no options to score")
	}

	historical, err := s.log.HistoricalWeights(ctx, dctx.ScenarioCategory)
	if err != nil {
		// degrade to neutral history rather than refusing to decide
		slog.WarnContext(ctx, "historical weights unavailable", "error", err)
		historical = map[string]float64{}
	}

	ranked := make([]core.ScoredOption, 0, len(options))
	for _, opt := range options {
		components := map[string]float64{
			"context_fit":        contextFit(opt, dctx),
			"historical_success": historicalSuccess(opt.ID, historical),
			"risk_fit":           riskFit(opt.Risk, dctx.RiskTolerance),
			"effort_fit":         effortFit(opt.Effort, dctx.TimeConstraint),
			"oracle_prediction":  s.oraclePrediction(ctx, opt, dctx),
		}
		overall := weightContextFit*components["context_fit"] +
			weightHistorical*components["historical_success"] +
			weightRiskFit*components["risk_fit"] +
			weightEffortFit*components["effort_fit"] +
			weightOracle*components["oracle_prediction"]

		scored := core.ScoredOption{
			DecisionOption: opt,
			OverallScore:   overall,
			Confidence:     math.Max(0, 1-stddev(components)),
			Components:     components,
		}
		scored.RecommendationTier = tier(overall)
		ranked = append(ranked, scored)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].OverallScore > ranked[j].OverallScore
	})

	// a lone option has no rival, so the gap gate does not apply
	gap := 1.0
	if len(ranked) > 1 {
		gap = ranked[0].OverallScore - ranked[1].OverallScore
	}
	overallConfidence := 0.6*math.Min(1, gap*5) + 0.4*ranked[0].Confidence

	decision := core.Decision{
		ID:                uuid.NewString(),
		Best:              &ranked[0],
		Ranked:            ranked,
		OverallConfidence: overallConfidence,
		RequiresUserInput: overallConfidence < minOverallConfidence || gap < minTopTwoGap,
	}

	entry := core.DecisionLogEntry{
		ID:               decision.ID,
		ScenarioCategory: dctx.ScenarioCategory,
		OptionIDs:        optionIDs(options),
		ChosenID:         ranked[0].ID,
		Confidence:       overallConfidence,
		Timestamp:        time.Now(),
	}
	if err := s.log.Insert(ctx, entry); err != nil {
		slog.WarnContext(ctx, "decision log insert failed", "decision_id", decision.ID, "error", err)
	}

	slog.InfoContext(ctx, "decision scored",
		"decision_id", decision.ID,
		"scenario", dctx.ScenarioCategory,
		"options", len(options),
		"choice", ranked[0].ID,
		"confidence", overallConfidence,
		"requires_user_input", decision.RequiresUserInput)
	if s.observer != nil {
		s.observer(decision.RequiresUserInput)
	}
	return decision, nil
}

// RecordChoice closes the feedback loop for an earlier Score call.
func (s *Scorer) RecordChoice(ctx context.Context, decisionID, chosenID string, wasSuccessful bool) error {
	return s.log.RecordOutcome(ctx, decisionID, chosenID, wasSuccessful)
}

// contextFit starts from a neutral baseline and rewards matches with the
// caller's stated preferences, capped at 1.
func contextFit(opt core.DecisionOption, dctx core.DecisionContext) float64 {
	fit := 0.5
	if dctx.RiskTolerance != "" && opt.Risk == dctx.RiskTolerance {
		fit += 0.2
	}
	if dctx.TimeConstraint != "" && opt.Effort == dctx.TimeConstraint {
		fit += 0.15
	}
	if (dctx.PreferSpeed && opt.Effort == core.EffortLow) ||
		(dctx.PreferQuality && opt.Effort == core.EffortHigh) {
		fit += 0.15
	}
	return math.Min(1, fit)
}

func historicalSuccess(optionID string, weights map[string]float64) float64 {
	if rate, ok := weights[optionID]; ok {
		return rate
	}
	return 0.5 // unseen options start neutral
}

func riskFit(optionRisk, tolerance core.Risk) float64 {
	if tolerance == "" {
		tolerance = core.RiskMedium
	}
	if optionRisk == "" {
		optionRisk = core.RiskMedium
	}
	return riskFitTable[tolerance][optionRisk]
}

func effortFit(optionEffort, constraint core.Effort) float64 {
	if constraint == "" {
		constraint = core.EffortMedium
	}
	if optionEffort == "" {
		optionEffort = core.EffortMedium
	}
	return effortFitTable[constraint][optionEffort]
}

// oraclePrediction makes one bounded call per option; any failure is
// fail-open to the neutral score.
func (s *Scorer) oraclePrediction(ctx context.Context, opt core.DecisionOption, dctx core.DecisionContext) float64 {
	if s.predictor == nil {
		return neutralPrediction
	}
	prompt := fmt.Sprintf("scenario=%s option=%s risk=%s effort=%s pros=%d cons=%d",
		dctx.ScenarioCategory, opt.ID, opt.Risk, opt.Effort, len(opt.Pros), len(opt.Cons))
	score, err := s.predictor.Predict(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "oracle prediction failed, using neutral score",
			"option", opt.ID, "error", err)
		return neutralPrediction
	}
	return math.Max(0, math.Min(1, score))
}

// stddev is the population standard deviation of the component scores;
// internally inconsistent signals lower per-option confidence even when
// the mean is high.
func stddev(components map[string]float64) float64 {
	n := float64(len(components))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range components {
		mean += v
	}
	mean /= n

	variance := 0.0
	for _, v := range components {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / n)
}

func tier(score float64) string {
	switch {
	case score >= 0.8:
		return "strong"
	case score >= 0.6:
		return "moderate"
	default:
		return "weak"
	}
}

func optionIDs(options []core.DecisionOption) []string {
	ids := make([]string, len(options))
	for i, opt := range options {
		ids[i] = opt.ID
	}
	return ids
}
