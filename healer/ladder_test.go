package healer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/healer/core"
	"github.com/snow-ghost/healer/learner"
	"github.com/snow-ghost/healer/oracle/mock"
	"github.com/snow-ghost/healer/store/memory"
)

type fixture struct {
	errors   *memory.ErrorStore
	patterns *memory.PatternStore
	learner  *learner.Learner
	oracle   *mock.Oracle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	patterns := memory.NewEmptyPatternStore()
	return &fixture{
		errors:   memory.NewErrorStore(),
		patterns: patterns,
		learner:  learner.New(patterns),
		oracle:   mock.New(),
	}
}

func (f *fixture) ladder(cfg Config) *Ladder {
	return New(f.errors, f.patterns, f.learner, f.oracle, nil, nil, cfg)
}

func (f *fixture) insert(t *testing.T, rec core.ErrorRecord) core.ErrorRecord {
	t.Helper()
	out, err := f.errors.Insert(context.Background(), rec)
	require.NoError(t, err)
	return out
}

func TestHeal_PatternStrategyHealsOnFirstAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.patterns.Upsert(ctx, core.Pattern{
		Name: "network/retry-backoff.v1", Category: core.CategoryNetwork,
		Description: "retry with backoff", Confidence: 0.8,
	}))
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryNetwork, Severity: core.SeverityHigh, Message: "socket hang up"})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateHealed, result.State)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, core.StrategyPattern, result.Attempts[0].Strategy)
	assert.InDelta(t, 0.8, result.Attempts[0].Confidence, 1e-9)

	// outcome fed the learner
	p, err := f.patterns.Get(ctx, "network/retry-backoff.v1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.SuccessCount)

	// record resolved exactly once
	open := core.StatusOpen
	recs, err := f.errors.Query(ctx, core.ErrorFilter{Status: &open})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHeal_DeterministicFixOnSecondAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// no qualifying pattern: attempt 1 fails, attempt 2 matches the table
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryBuild, Severity: core.SeverityMedium, Message: "Cannot find module 'foo'"})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateHealed, result.State)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, core.StrategyPattern, result.Attempts[0].Strategy)
	assert.Equal(t, core.OutcomeFailure, result.Attempts[0].Outcome)
	assert.Equal(t, core.StrategyDeterministic, result.Attempts[1].Strategy)
	assert.Equal(t, core.OutcomeSuccess, result.Attempts[1].Outcome)
	assert.InDelta(t, 0.9, result.Attempts[1].Confidence, 1e-9)

	resolved := core.StatusResolved
	recs, err := f.errors.Query(ctx, core.ErrorFilter{Status: &resolved})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
}

func TestHeal_OracleAssistedThirdAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.SetScore("leaky goroutine", 0.9)
	rec := f.insert(t, core.ErrorRecord{
		Category: core.CategoryRuntime, Severity: core.SeverityHigh,
		Message: "worker pool starves under load",
		Context: map[string]string{"code": "for { go handle(conn) } // leaky goroutine"},
	})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateHealed, result.State)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, core.StrategyOracle, result.Attempts[2].Strategy)
	assert.InDelta(t, 0.9, result.Attempts[2].Confidence, 1e-9)
	assert.Equal(t, 1, f.oracle.Calls())
}

func TestHeal_AllStrategiesFailEscalates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// no pattern, no matching fix, no snippet for the oracle
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryIntegration, Severity: core.SeverityCritical, Message: "partner API rejects every request"})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateEscalated, result.State)
	require.NotNil(t, result.Escalation)
	assert.NotEmpty(t, result.Escalation.HumanActionNeeded)
	assert.Equal(t, 3, result.Escalation.Attempts)
	assert.Zero(t, f.oracle.Calls(), "oracle must not be called without a snippet")

	// attempt numbers strictly increase and stay within bounds
	for i, attempt := range result.Attempts {
		assert.Equal(t, i+1, attempt.AttemptNumber)
	}
	assert.LessOrEqual(t, len(result.Attempts), DefaultConfig().MaxAttempts)
}

func TestHeal_EscalationReasonCountsActualAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryIntegration, Severity: core.SeverityHigh, Message: "partner API rejects every request"})

	// more attempts allowed than ladder rungs: the run still stops at 3
	cfg := DefaultConfig()
	cfg.MaxAttempts = 5
	result := f.ladder(cfg).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateEscalated, result.State)
	require.NotNil(t, result.Escalation)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, 3, result.Escalation.Attempts)
	assert.Contains(t, result.Escalation.Reason, "exhausted 3 attempts")
}

func TestHeal_OracleFailureDegradesToNeutral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.Fail(errors.New("oracle unreachable"))
	rec := f.insert(t, core.ErrorRecord{
		Category: core.CategoryPerformance, Severity: core.SeverityMedium,
		Message: "p99 latency doubled",
		Context: map[string]string{"snippet": "SELECT * FROM events"},
	})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateEscalated, result.State)
	oracleAttempt := result.Attempts[len(result.Attempts)-1]
	assert.Equal(t, core.StrategyOracle, oracleAttempt.Strategy)
	assert.Equal(t, core.OutcomeFailure, oracleAttempt.Outcome)
	assert.InDelta(t, 0.5, oracleAttempt.Confidence, 1e-9)
}

func TestHeal_LowConfidenceSuccessKeepsClimbing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// oracle reports success likelihood above 0.5 but below the threshold
	f.oracle.SetScore("half-hearted", 0.6)
	rec := f.insert(t, core.ErrorRecord{
		Category: core.CategoryRuntime, Severity: core.SeverityLow,
		Message: "sporadic cache miss storm",
		Context: map[string]string{"code": "half-hearted fix candidate"},
	})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateEscalated, result.State)
	last := result.Attempts[len(result.Attempts)-1]
	assert.Equal(t, core.OutcomeSuccess, last.Outcome)
	assert.Less(t, last.Confidence, DefaultConfig().ConfidenceThreshold)
}

func TestHeal_DryRunDoesNotResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryDependency, Severity: core.SeverityHigh, Message: "cannot find module 'left-pad'"})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, false)

	assert.Equal(t, core.HealStateHealed, result.State)
	assert.True(t, result.WouldHeal)

	open := core.StatusOpen
	recs, err := f.errors.Query(ctx, core.ErrorFilter{Status: &open})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "dry run must leave the record open")
}

func TestHeal_ResolvedRecordIsNotReAttempted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryAuth, Severity: core.SeverityLow, Message: "token expired"})
	require.NoError(t, f.errors.Resolve(ctx, rec.ID, "manual"))
	rec.Status = core.StatusResolved

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.HealStateHealed, result.State)
	assert.Empty(t, result.Attempts)
	assert.Empty(t, f.errors.Attempts())
}

func TestHeal_PatternBelowThresholdIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.patterns.Upsert(ctx, core.Pattern{
		Name: "integration/wobbly.v1", Category: core.CategoryIntegration, Confidence: 0.5,
	}))
	rec := f.insert(t, core.ErrorRecord{Category: core.CategoryIntegration, Severity: core.SeverityMedium, Message: "webhook delivery flaky"})

	result := f.ladder(DefaultConfig()).Heal(ctx, rec, true)

	assert.Equal(t, core.OutcomeFailure, result.Attempts[0].Outcome)
	assert.Contains(t, result.Attempts[0].Description, "no qualifying pattern")
}
