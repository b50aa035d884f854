package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/healer/core"
)

func TestErrorStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	store := NewErrorStore()

	_, err := store.Insert(ctx, core.ErrorRecord{Category: core.CategoryNetwork, Severity: core.SeverityHigh, Message: "connection timeout to payments"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, core.ErrorRecord{Category: core.CategoryBuild, Severity: core.SeverityLow, Message: "cannot find module 'foo'"})
	require.NoError(t, err)

	t.Run("by category", func(t *testing.T) {
		cat := core.CategoryNetwork
		recs, err := store.Query(ctx, core.ErrorFilter{Category: &cat})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, core.CategoryNetwork, recs[0].Category)
	})

	t.Run("by keyword", func(t *testing.T) {
		recs, err := store.Query(ctx, core.ErrorFilter{Keyword: "Cannot Find Module"})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, core.CategoryBuild, recs[0].Category)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		_, err := store.Insert(ctx, core.ErrorRecord{Category: "cosmic-rays", Message: "bit flip"})
		require.Error(t, err)
	})
}

func TestErrorStore_ResolveOnce(t *testing.T) {
	ctx := context.Background()
	store := NewErrorStore()

	rec, err := store.Insert(ctx, core.ErrorRecord{Category: core.CategoryRuntime, Severity: core.SeverityMedium, Message: "panic in handler"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusOpen, rec.Status)

	require.NoError(t, store.Resolve(ctx, rec.ID, "restarted"))

	open := core.StatusOpen
	recs, err := store.Query(ctx, core.ErrorFilter{Status: &open})
	require.NoError(t, err)
	assert.Empty(t, recs)

	err = store.Resolve(ctx, rec.ID, "again")
	require.ErrorIs(t, err, core.ErrAlreadyFinal)
}

func TestErrorStore_AppendAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewErrorStore()

	rec, err := store.Insert(ctx, core.ErrorRecord{Category: core.CategoryAuth, Severity: core.SeverityHigh, Message: "token expired"})
	require.NoError(t, err)

	require.NoError(t, store.AppendAttempt(ctx, core.HealingAttempt{ErrorID: rec.ID, Strategy: core.StrategyPattern, AttemptNumber: 1, Outcome: core.OutcomeFailure}))
	assert.Len(t, store.Attempts(), 1)

	err = store.AppendAttempt(ctx, core.HealingAttempt{ErrorID: "missing", Strategy: core.StrategyPattern, AttemptNumber: 1})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPatternStore_FindByCategory(t *testing.T) {
	ctx := context.Background()
	store := NewEmptyPatternStore()

	require.NoError(t, store.Upsert(ctx, core.Pattern{Name: "network/low", Category: core.CategoryNetwork, Confidence: 0.4}))
	require.NoError(t, store.Upsert(ctx, core.Pattern{Name: "network/high", Category: core.CategoryNetwork, Confidence: 0.9}))
	require.NoError(t, store.Upsert(ctx, core.Pattern{Name: "build/other", Category: core.CategoryBuild, Confidence: 0.8}))

	patterns, err := store.FindByCategory(ctx, core.CategoryNetwork)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "network/high", patterns[0].Name)
	assert.Equal(t, "network/low", patterns[1].Name)
}

func TestPatternStore_IncrementCounters(t *testing.T) {
	ctx := context.Background()
	store := NewEmptyPatternStore()
	require.NoError(t, store.Upsert(ctx, core.Pattern{Name: "p", Category: core.CategoryRuntime, Confidence: 0.5}))

	require.NoError(t, store.IncrementCounters(ctx, "p", true))
	require.NoError(t, store.IncrementCounters(ctx, "p", false))

	p, err := store.Get(ctx, "p")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.SuccessCount)
	assert.Equal(t, 1, p.FailureCount)
	assert.False(t, p.LastUsedAt.IsZero())

	require.ErrorIs(t, store.IncrementCounters(ctx, "absent", true), core.ErrNotFound)
}

func TestPatternStore_RejectsOutOfRangeConfidence(t *testing.T) {
	ctx := context.Background()
	store := NewEmptyPatternStore()
	require.Error(t, store.Upsert(ctx, core.Pattern{Name: "bad", Category: core.CategoryRuntime, Confidence: 1.2}))
}

func TestPatternStore_Seeds(t *testing.T) {
	ctx := context.Background()
	store := NewPatternStore()
	for _, cat := range core.Categories() {
		patterns, err := store.FindByCategory(ctx, cat)
		require.NoError(t, err)
		assert.NotEmpty(t, patterns, "category %s has no seed pattern", cat)
	}
}

func TestDecisionLog_HistoricalWeights(t *testing.T) {
	ctx := context.Background()
	log := NewDecisionLog()

	yes, no := true, false
	require.NoError(t, log.Insert(ctx, core.DecisionLogEntry{ID: "d1", ScenarioCategory: "deploy", ChosenID: "a", Successful: &yes}))
	require.NoError(t, log.Insert(ctx, core.DecisionLogEntry{ID: "d2", ScenarioCategory: "deploy", ChosenID: "a", Successful: &no}))
	require.NoError(t, log.Insert(ctx, core.DecisionLogEntry{ID: "d3", ScenarioCategory: "deploy", ChosenID: "b", Successful: &yes}))
	// open decision, must not count
	require.NoError(t, log.Insert(ctx, core.DecisionLogEntry{ID: "d4", ScenarioCategory: "deploy", ChosenID: "b"}))
	// other scenario, must not count
	require.NoError(t, log.Insert(ctx, core.DecisionLogEntry{ID: "d5", ScenarioCategory: "scale", ChosenID: "a", Successful: &yes}))

	weights, err := log.HistoricalWeights(ctx, "deploy")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, weights["a"], 1e-9)
	assert.InDelta(t, 1.0, weights["b"], 1e-9)
	assert.NotContains(t, weights, "c")
}

func TestDecisionLog_RecordOutcome(t *testing.T) {
	ctx := context.Background()
	log := NewDecisionLog()
	require.NoError(t, log.Insert(ctx, core.DecisionLogEntry{ID: "d1", ScenarioCategory: "deploy"}))

	require.NoError(t, log.RecordOutcome(ctx, "d1", "a", true))
	weights, err := log.HistoricalWeights(ctx, "deploy")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, weights["a"], 1e-9)

	require.ErrorIs(t, log.RecordOutcome(ctx, "missing", "a", true), core.ErrNotFound)
}
