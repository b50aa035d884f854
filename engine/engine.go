// Package engine orchestrates the detect -> prioritize -> heal -> learn cycle.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/snow-ghost/healer/core"
	"github.com/snow-ghost/healer/detector"
	"github.com/snow-ghost/healer/healer"
	"github.com/snow-ghost/healer/learner"
	"github.com/snow-ghost/healer/pkg/metrics"
	"github.com/snow-ghost/healer/pkg/tracing"
	"github.com/snow-ghost/healer/prioritize"
)

const defaultMaxErrors = 10

// CycleOptions tune a single cycle run.
type CycleOptions struct {
	// TargetCategories restricts healing to the listed categories.
	// Detection still scans everything so the report counts stay honest.
	TargetCategories []core.Category
	// MaxErrors caps how many errors one cycle attempts to heal.
	// Zero means the default cap.
	MaxErrors int
	// AutoApply applies fixes when true; otherwise the cycle reports
	// what it would heal without resolving anything.
	AutoApply bool
}

// Engine runs healing cycles over an error store.
type Engine struct {
	detector *detector.Detector
	ladder   *healer.Ladder
	learner  *learner.Learner
	metrics  *metrics.PrometheusMetrics
	tracer   *tracing.Tracer
}

// New creates an engine. Metrics and tracer are optional.
func New(det *detector.Detector, ladder *healer.Ladder, lrn *learner.Learner,
	m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *Engine {
	return &Engine{
		detector: det,
		ladder:   ladder,
		learner:  lrn,
		metrics:  m,
		tracer:   tracer,
	}
}

// RunCycle executes one full healing cycle and reports what happened.
// Errors are healed sequentially in priority order so earlier fixes can
// raise pattern confidence before later ones consult it.
func (e *Engine) RunCycle(ctx context.Context, opts CycleOptions) core.CycleReport {
	started := time.Now()

	maxErrors := opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrors
	}

	ctx, span := e.startCycleSpan(ctx, maxErrors)
	if span != nil {
		defer span()
	}

	summary := e.detector.DetectAll(ctx)
	report := core.CycleReport{
		StartedAt: started,
		Detected:  summary.Total,
	}
	if e.metrics != nil {
		for cat, n := range summary.ByCategory {
			e.metrics.ErrorsDetected.WithLabelValues(string(cat)).Add(float64(n))
		}
	}

	if summary.Total == 0 {
		report.Success = true
		report.Outcome = core.CycleOutcomeNoOp
		report.Duration = time.Since(started)
		e.finishCycle(ctx, report)
		return report
	}

	ordered := prioritize.Findings(summary.Findings)
	targets := collectTargets(ordered, opts.TargetCategories, maxErrors)

	for _, rec := range targets {
		result := e.ladder.Heal(ctx, rec, opts.AutoApply)
		report.Attempts = append(report.Attempts, result.Attempts...)
		if e.metrics != nil {
			for _, a := range result.Attempts {
				e.metrics.RecordAttempt(string(a.Strategy), string(a.Outcome), a.Duration)
			}
		}
		switch result.State {
		case core.HealStateHealed:
			report.Healed++
			if result.WouldHeal {
				report.WouldHeal++
			} else if e.metrics != nil {
				// dry-run heals don't move the applied-heal counter
				e.metrics.ErrorsHealed.Inc()
			}
		case core.HealStateEscalated:
			if result.Escalation != nil {
				report.Escalations = append(report.Escalations, *result.Escalation)
				if e.metrics != nil {
					e.metrics.EscalationsTotal.WithLabelValues(string(result.Escalation.Category)).Inc()
				}
			}
		}
	}

	learnings, err := e.learner.Reconcile(ctx)
	if err != nil {
		slog.WarnContext(ctx, "pattern reconciliation failed", "error", err)
	}
	report.Learnings = learnings
	if e.metrics != nil {
		e.metrics.PatternUpdates.Add(float64(len(learnings)))
	}

	report.Success = report.Healed > 0 || len(report.Escalations) == 0
	switch {
	case len(report.Escalations) > 0:
		report.Outcome = core.CycleOutcomeEscalated
	case report.Healed > 0:
		report.Outcome = core.CycleOutcomeHealedSome
	default:
		report.Outcome = core.CycleOutcomeNoOp
	}
	report.Duration = time.Since(started)

	e.finishCycle(ctx, report)
	return report
}

func (e *Engine) startCycleSpan(ctx context.Context, maxErrors int) (context.Context, func()) {
	if e.tracer == nil {
		return ctx, nil
	}
	ctx, span := e.tracer.StartCycleSpan(ctx, maxErrors)
	return ctx, func() { span.End() }
}

func (e *Engine) finishCycle(ctx context.Context, report core.CycleReport) {
	if e.metrics != nil {
		e.metrics.RecordCycle(string(report.Outcome), report.Duration)
	}
	slog.InfoContext(ctx, "healing cycle complete",
		"outcome", report.Outcome,
		"detected", report.Detected,
		"healed", report.Healed,
		"escalations", len(report.Escalations),
		"duration", report.Duration,
	)
}

// collectTargets flattens the wanted findings into one pool and orders
// it by severity before applying the cap, so a critical in any category
// is dispatched before lower-severity records everywhere else.
func collectTargets(findings []core.Finding, categories []core.Category, max int) []core.ErrorRecord {
	wanted := func(c core.Category) bool { return true }
	if len(categories) > 0 {
		set := make(map[core.Category]bool, len(categories))
		for _, c := range categories {
			set[c] = true
		}
		wanted = func(c core.Category) bool { return set[c] }
	}

	var pool []core.ErrorRecord
	for _, f := range findings {
		if !wanted(f.Category) {
			continue
		}
		for _, rec := range f.Items {
			if rec.Status != core.StatusOpen {
				continue
			}
			pool = append(pool, rec)
		}
	}

	targets := prioritize.Records(pool)
	if len(targets) > max {
		targets = targets[:max]
	}
	return targets
}
