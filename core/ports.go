package core

import (
	"context"
	"errors"
)

// Sentinel conditions used by strategies; these signal normal fall-through,
// not engine failures.
var (
	ErrNoPattern    = errors.New("no qualifying pattern for category")
	ErrNoSnippet    = errors.New("no code snippet available for oracle")
	ErrNotFound     = errors.New("record not found")
	ErrAlreadyFinal = errors.New("error record already resolved")
)

// ErrorFilter narrows an error store query. Nil fields match everything.
type ErrorFilter struct {
	Category *Category
	Status   *Status
	Keyword  string // case-insensitive substring match on the message
}

// ErrorStore is the system of record for detected errors. The detector only
// reads; the healer reads and resolves.
type ErrorStore interface {
	Query(ctx context.Context, filter ErrorFilter) ([]ErrorRecord, error)
	Insert(ctx context.Context, rec ErrorRecord) (ErrorRecord, error)
	Resolve(ctx context.Context, id string, note string) error
	AppendAttempt(ctx context.Context, attempt HealingAttempt) error
}

// PatternStore persists remediation patterns and their outcome counters.
type PatternStore interface {
	Get(ctx context.Context, name string) (*Pattern, error)
	FindByCategory(ctx context.Context, category Category) ([]Pattern, error)
	Upsert(ctx context.Context, p Pattern) error
	IncrementCounters(ctx context.Context, name string, success bool) error
}

// DecisionLog persists scoring calls and their eventual outcomes.
type DecisionLog interface {
	Insert(ctx context.Context, entry DecisionLogEntry) error
	RecordOutcome(ctx context.Context, decisionID, chosenID string, successful bool) error
	// HistoricalWeights returns optionID -> success rate over past decisions
	// in the same scenario category.
	HistoricalWeights(ctx context.Context, scenarioCategory string) (map[string]float64, error)
}

// Oracle is an external predictor consulted for a bounded, stateless score.
// Failures must be mapped to a neutral score by callers, never propagated
// as fatal.
type Oracle interface {
	Predict(ctx context.Context, prompt string) (float64, error)
}
