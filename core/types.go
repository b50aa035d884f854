package core

import (
	"fmt"
	"time"
)

// Category classifies an error record into one of the fixed scanning domains.
type Category string

const (
	CategoryRuntime     Category = "runtime"
	CategoryAuth        Category = "auth"
	CategoryBuild       Category = "build"
	CategoryIntegration Category = "integration"
	CategoryPerformance Category = "performance"
	CategoryDependency  Category = "dependency"
	CategoryNetwork     Category = "network"
)

// Categories lists every category in scan order.
func Categories() []Category {
	return []Category{
		CategoryRuntime,
		CategoryAuth,
		CategoryBuild,
		CategoryIntegration,
		CategoryPerformance,
		CategoryDependency,
		CategoryNetwork,
	}
}

// ParseCategory validates a category string at the store boundary.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryRuntime, CategoryAuth, CategoryBuild, CategoryIntegration,
		CategoryPerformance, CategoryDependency, CategoryNetwork:
		return c, nil
	}
	return "", fmt.Errorf("unknown error category %q", s)
}

// Severity ranks how urgent a finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the numeric priority weight used for ordering findings.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityHigh:
		return 75
	case SeverityMedium:
		return 50
	case SeverityLow:
		return 25
	default:
		return 0
	}
}

// Status tracks the lifecycle of an error record.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// ErrorRecord is a single detected error. Records are created externally,
// transitioned to resolved at most once by the healer, and never deleted.
type ErrorRecord struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Status    Status            `json:"status"`
}

// Strategy names one rung of the healing ladder.
type Strategy string

const (
	StrategyPattern       Strategy = "pattern"
	StrategyDeterministic Strategy = "deterministic"
	StrategyOracle        Strategy = "oracle"
	StrategyEscalate      Strategy = "escalate"
)

// Outcome is the result of a single healing attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// HealingAttempt is one immutable record of applying a strategy to an error.
type HealingAttempt struct {
	ErrorID       string        `json:"error_id"`
	Strategy      Strategy      `json:"strategy"`
	AttemptNumber int           `json:"attempt_number"`
	Outcome       Outcome       `json:"outcome"`
	Confidence    float64       `json:"confidence"`
	Description   string        `json:"description,omitempty"`
	Duration      time.Duration `json:"duration"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Pattern is a named remediation recipe with a learned confidence score.
type Pattern struct {
	Name         string    `json:"name"`
	Category     Category  `json:"category"`
	Description  string    `json:"description,omitempty"`
	Confidence   float64   `json:"confidence"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// Samples returns the total number of recorded outcomes.
func (p Pattern) Samples() int {
	return p.SuccessCount + p.FailureCount
}

// SuccessRate returns the empirical success ratio, 0 when unsampled.
func (p Pattern) SuccessRate() float64 {
	n := p.Samples()
	if n == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(n)
}

// Finding is what a scanner reports for one category.
type Finding struct {
	Category        Category      `json:"category"`
	Count           int           `json:"count"`
	Items           []ErrorRecord `json:"items"`
	Recommendations []string      `json:"recommendations,omitempty"`
	CriticalItems   []ErrorRecord `json:"critical_items,omitempty"`
}

// DetectionSummary merges the findings of all categories.
type DetectionSummary struct {
	Total      int              `json:"total"`
	Critical   int              `json:"critical"`
	ByCategory map[Category]int `json:"by_category"`
	Findings   []Finding        `json:"findings"`
}

// Escalation hands an unresolved error to a human with actionable guidance.
type Escalation struct {
	ErrorID           string   `json:"error_id"`
	Category          Category `json:"category"`
	Reason            string   `json:"reason"`
	HumanActionNeeded string   `json:"human_action_needed"`
	Attempts          int      `json:"attempts"`
}

// HealState is the terminal state of one ladder run.
type HealState string

const (
	HealStateHealed    HealState = "healed"
	HealStateEscalated HealState = "escalated"
)

// HealResult is the discriminated outcome of running the ladder for one error.
type HealResult struct {
	ErrorID    string           `json:"error_id"`
	State      HealState        `json:"state"`
	Attempts   []HealingAttempt `json:"attempts"`
	Escalation *Escalation      `json:"escalation,omitempty"`
	// WouldHeal is set instead of resolving the record when the cycle runs
	// in dry-run mode (autoApply=false).
	WouldHeal bool `json:"would_heal,omitempty"`
}

// CycleOutcome disambiguates an empty cycle from a productive one; the
// Success flag on CycleReport keeps the historical semantics.
type CycleOutcome string

const (
	CycleOutcomeNoOp       CycleOutcome = "noop"
	CycleOutcomeHealedSome CycleOutcome = "healed_some"
	CycleOutcomeEscalated  CycleOutcome = "escalated"
)

// CycleReport summarizes one detect -> prioritize -> heal -> learn cycle.
type CycleReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Detected  int           `json:"detected"`
	Healed    int           `json:"healed"`
	// WouldHeal counts heals that were withheld because the cycle ran in
	// dry-run mode; those records stay open.
	WouldHeal   int              `json:"would_heal,omitempty"`
	Attempts    []HealingAttempt `json:"attempts"`
	Escalations []Escalation     `json:"escalations"`
	Learnings   []string         `json:"learnings"`
	Success     bool             `json:"success"`
	Outcome     CycleOutcome     `json:"outcome"`
}

// DecisionOption is one candidate in a multi-criteria decision.
type DecisionOption struct {
	ID     string   `json:"id"`
	Pros   []string `json:"pros,omitempty"`
	Cons   []string `json:"cons,omitempty"`
	Effort Effort   `json:"effort"`
	Risk   Risk     `json:"risk"`
}

// Effort buckets the implementation cost of an option.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Risk buckets the downside exposure of an option.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ScoredOption is a DecisionOption with its computed scores attached.
type ScoredOption struct {
	DecisionOption
	OverallScore       float64            `json:"overall_score"`
	Confidence         float64            `json:"confidence"`
	RecommendationTier string             `json:"recommendation_tier"`
	Components         map[string]float64 `json:"components,omitempty"`
}

// DecisionContext carries the caller's stated preferences into scoring.
type DecisionContext struct {
	ScenarioCategory string `json:"scenario_category"`
	RiskTolerance    Risk   `json:"risk_tolerance,omitempty"`
	TimeConstraint   Effort `json:"time_constraint,omitempty"` // urgency expressed as acceptable effort
	PreferSpeed      bool   `json:"prefer_speed,omitempty"`
	PreferQuality    bool   `json:"prefer_quality,omitempty"`
	Snippet          string `json:"snippet,omitempty"`
}

// Decision is the result of scoring a set of options.
type Decision struct {
	ID                string         `json:"id"`
	Best              *ScoredOption  `json:"best,omitempty"`
	Ranked            []ScoredOption `json:"ranked"`
	OverallConfidence float64        `json:"overall_confidence"`
	RequiresUserInput bool           `json:"requires_user_input"`
}

// DecisionLogEntry records one scoring call so future historical lookups
// can weight options by observed success.
type DecisionLogEntry struct {
	ID               string    `json:"id"`
	ScenarioCategory string    `json:"scenario_category"`
	OptionIDs        []string  `json:"option_ids"`
	ChosenID         string    `json:"chosen_id"`
	Confidence       float64   `json:"confidence"`
	Successful       *bool     `json:"successful,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
