package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/healer/core"
	"github.com/snow-ghost/healer/detector"
	"github.com/snow-ghost/healer/healer"
	"github.com/snow-ghost/healer/learner"
	"github.com/snow-ghost/healer/oracle/mock"
	"github.com/snow-ghost/healer/store/memory"
)

type fixture struct {
	errors   *memory.ErrorStore
	patterns *memory.PatternStore
	engine   *Engine
}

func newFixture(t *testing.T, seeded bool) *fixture {
	t.Helper()

	errors := memory.NewErrorStore()
	patterns := memory.NewPatternStore()
	if !seeded {
		patterns = memory.NewEmptyPatternStore()
	}
	lrn := learner.New(patterns)
	ladder := healer.New(errors, patterns, lrn, mock.New(), nil, nil, healer.DefaultConfig())

	return &fixture{
		errors:   errors,
		patterns: patterns,
		engine:   New(detector.New(errors), ladder, lrn, nil, nil),
	}
}

func (f *fixture) insert(t *testing.T, category core.Category, severity core.Severity, message string) core.ErrorRecord {
	t.Helper()
	rec, err := f.errors.Insert(context.Background(), core.ErrorRecord{
		Category: category,
		Severity: severity,
		Message:  message,
	})
	require.NoError(t, err)
	return rec
}

func TestRunCycleNoErrors(t *testing.T) {
	f := newFixture(t, true)

	report := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})

	assert.True(t, report.Success)
	assert.Equal(t, core.CycleOutcomeNoOp, report.Outcome)
	assert.Zero(t, report.Detected)
	assert.Zero(t, report.Healed)
	assert.Empty(t, report.Attempts)
	assert.Empty(t, report.Escalations)
}

func TestRunCycleHealsWithSeededPatterns(t *testing.T) {
	f := newFixture(t, true)
	rec := f.insert(t, core.CategoryDependency, core.SeverityHigh, "module not installed")

	report := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})

	assert.True(t, report.Success)
	assert.Equal(t, core.CycleOutcomeHealedSome, report.Outcome)
	assert.Equal(t, 1, report.Detected)
	assert.Equal(t, 1, report.Healed)
	assert.Zero(t, report.WouldHeal)
	assert.Empty(t, report.Escalations)
	require.NotEmpty(t, report.Attempts)
	assert.Equal(t, rec.ID, report.Attempts[0].ErrorID)

	got, err := f.errors.Query(context.Background(), core.ErrorFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.StatusResolved, got[0].Status)
}

func TestRunCycleEscalatesUnhealable(t *testing.T) {
	f := newFixture(t, false) // no patterns, no fix-table match, no snippet

	rec := f.insert(t, core.CategoryAuth, core.SeverityCritical, "something inexplicable")

	report := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})

	assert.False(t, report.Success)
	assert.Equal(t, core.CycleOutcomeEscalated, report.Outcome)
	assert.Zero(t, report.Healed)
	require.Len(t, report.Escalations, 1)
	assert.Equal(t, rec.ID, report.Escalations[0].ErrorID)
	assert.NotEmpty(t, report.Escalations[0].HumanActionNeeded)
}

func TestRunCycleOrdersBySeverity(t *testing.T) {
	f := newFixture(t, true)

	low := f.insert(t, core.CategoryNetwork, core.SeverityLow, "timeout reaching upstream")
	crit := f.insert(t, core.CategoryDependency, core.SeverityCritical, "module not installed")

	report := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})

	require.GreaterOrEqual(t, len(report.Attempts), 2)
	assert.Equal(t, crit.ID, report.Attempts[0].ErrorID)
	last := report.Attempts[len(report.Attempts)-1]
	assert.Equal(t, low.ID, last.ErrorID)
}

func TestRunCycleCriticalsWinCapAcrossCategories(t *testing.T) {
	f := newFixture(t, true)

	// runtime scans before network; with a per-category dispatch the
	// runtime low would squeeze the network critical out of the cap
	runtimeCrit := f.insert(t, core.CategoryRuntime, core.SeverityCritical, "panic in request scheduler")
	runtimeLow := f.insert(t, core.CategoryRuntime, core.SeverityLow, "sporadic worker hiccup")
	networkCrit := f.insert(t, core.CategoryNetwork, core.SeverityCritical, "link flap on the edge uplink")

	report := f.engine.RunCycle(context.Background(), CycleOptions{MaxErrors: 2, AutoApply: true})

	attempted := make(map[string]bool)
	for _, a := range report.Attempts {
		attempted[a.ErrorID] = true
	}
	assert.True(t, attempted[runtimeCrit.ID])
	assert.True(t, attempted[networkCrit.ID])
	assert.False(t, attempted[runtimeLow.ID])
}

func TestRunCycleMaxErrorsCap(t *testing.T) {
	f := newFixture(t, true)

	for i := 0; i < 5; i++ {
		f.insert(t, core.CategoryDependency, core.SeverityMedium, fmt.Sprintf("module not installed #%d", i))
	}

	report := f.engine.RunCycle(context.Background(), CycleOptions{MaxErrors: 2, AutoApply: true})

	assert.Equal(t, 5, report.Detected)
	assert.Equal(t, 2, report.Healed)

	open, err := f.errors.Query(context.Background(), core.ErrorFilter{Status: statusPtr(core.StatusOpen)})
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestRunCycleCategoryFilter(t *testing.T) {
	f := newFixture(t, true)

	dep := f.insert(t, core.CategoryDependency, core.SeverityHigh, "module not installed")
	f.insert(t, core.CategoryNetwork, core.SeverityCritical, "connection refused by peer")

	report := f.engine.RunCycle(context.Background(), CycleOptions{
		TargetCategories: []core.Category{core.CategoryDependency},
		AutoApply:        true,
	})

	// detection still counts everything; only the targeted category is healed
	assert.Equal(t, 2, report.Detected)
	assert.Equal(t, 1, report.Healed)
	for _, a := range report.Attempts {
		assert.Equal(t, dep.ID, a.ErrorID)
	}
}

func TestRunCycleDryRunLeavesRecordsOpen(t *testing.T) {
	f := newFixture(t, true)
	f.insert(t, core.CategoryDependency, core.SeverityHigh, "module not installed")

	report := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: false})

	assert.Equal(t, 1, report.Healed)
	assert.Equal(t, 1, report.WouldHeal)

	open, err := f.errors.Query(context.Background(), core.ErrorFilter{Status: statusPtr(core.StatusOpen)})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestRunCycleIdempotent(t *testing.T) {
	f := newFixture(t, true)
	f.insert(t, core.CategoryDependency, core.SeverityHigh, "module not installed")

	first := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})
	assert.Equal(t, 1, first.Healed)

	second := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})
	assert.Zero(t, second.Healed)
	assert.Empty(t, second.Escalations)
	assert.True(t, second.Success)
	assert.Equal(t, core.CycleOutcomeNoOp, second.Outcome)
}

func TestRunCycleReportsLearnings(t *testing.T) {
	f := newFixture(t, true)

	// push the pattern over the sample floor so reconciliation has
	// something to say
	name := "dependency/reinstall.v1"
	for i := 0; i < 5; i++ {
		require.NoError(t, f.patterns.IncrementCounters(context.Background(), name, true))
	}

	f.insert(t, core.CategoryDependency, core.SeverityHigh, "module not installed")

	report := f.engine.RunCycle(context.Background(), CycleOptions{AutoApply: true})
	require.Equal(t, 1, report.Healed)
	require.NotEmpty(t, report.Learnings)
	assert.Contains(t, report.Learnings[0], name)

	p, err := f.patterns.Get(context.Background(), name)
	require.NoError(t, err)
	assert.Greater(t, p.Confidence, 0.85)
	assert.WithinDuration(t, time.Now(), p.LastUsedAt, time.Minute)
}

func statusPtr(s core.Status) *core.Status { return &s }
