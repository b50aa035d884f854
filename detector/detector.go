// Package detector scans the error store per category and merges the
// findings of all categories into one summary.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/healer/core"
)

// recommendationRule maps a message substring to operator guidance.
type recommendationRule struct {
	Substring      string `yaml:"substring"`
	Recommendation string `yaml:"recommendation"`
}

// defaultRules are matched case-insensitively against error messages.
var defaultRules = []recommendationRule{
	{"timeout", "retry with exponential backoff and review upstream timeouts"},
	{"connection refused", "check that the target service is running and reachable"},
	{"cannot find module", "install the missing dependency and verify the lockfile"},
	{"unauthorized", "refresh credentials and verify token scopes"},
	{"token expired", "rotate the expired token"},
	{"out of memory", "raise the memory limit or fix the leak"},
	{"slow query", "add an index or cache the hot path"},
	{"rate limit", "add client-side rate limiting with jitter"},
	{"version conflict", "pin the dependency to a compatible version"},
	{"certificate", "renew the TLS certificate and verify the chain"},
}

// categoryKeywords widen each scanner beyond its category label: open
// records whose message matches a keyword are picked up even when they
// were filed under another category.
var categoryKeywords = map[core.Category][]string{
	core.CategoryNetwork:     {"timeout", "connection refused", "dns"},
	core.CategoryAuth:        {"unauthorized", "forbidden", "token expired"},
	core.CategoryDependency:  {"cannot find module", "version conflict"},
	core.CategoryPerformance: {"out of memory", "slow query", "latency"},
}

// Detector runs read-only scans over the error store.
type Detector struct {
	store core.ErrorStore
	rules Rules
}

// New creates a detector over the given store with the built-in rules.
func New(store core.ErrorStore) *Detector {
	return NewWithRules(store, DefaultRules())
}

// NewWithRules creates a detector with custom scanner rules.
func NewWithRules(store core.ErrorStore, rules Rules) *Detector {
	if len(rules.Recommendations) == 0 {
		rules.Recommendations = defaultRules
	}
	if len(rules.Keywords) == 0 {
		rules.Keywords = categoryKeywords
	}
	return &Detector{store: store, rules: rules}
}

// Detect scans a single category: open records filed under the category
// plus open records matching the category's keywords, deduplicated by id.
func (d *Detector) Detect(ctx context.Context, category core.Category) (core.Finding, error) {
	open := core.StatusOpen
	records, err := d.store.Query(ctx, core.ErrorFilter{Category: &category, Status: &open})
	if err != nil {
		return core.Finding{}, fmt.Errorf("scan %s: %w", category, err)
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ID] = true
	}

	for _, keyword := range d.rules.Keywords[category] {
		matches, err := d.store.Query(ctx, core.ErrorFilter{Status: &open, Keyword: keyword})
		if err != nil {
			return core.Finding{}, fmt.Errorf("scan %s keyword %q: %w", category, keyword, err)
		}
		for _, rec := range matches {
			if !seen[rec.ID] {
				seen[rec.ID] = true
				records = append(records, rec)
			}
		}
	}

	finding := core.Finding{
		Category: category,
		Count:    len(records),
		Items:    records,
	}
	recSeen := make(map[string]bool)
	for _, rec := range records {
		if rec.Severity == core.SeverityCritical {
			finding.CriticalItems = append(finding.CriticalItems, rec)
		}
		msg := strings.ToLower(rec.Message)
		for _, rule := range d.rules.Recommendations {
			if strings.Contains(msg, rule.Substring) && !recSeen[rule.Recommendation] {
				recSeen[rule.Recommendation] = true
				finding.Recommendations = append(finding.Recommendations, rule.Recommendation)
			}
		}
	}
	return finding, nil
}

// DetectAll runs every category scanner concurrently and merges the
// results. A failed scanner contributes an empty finding with a
// diagnostic recommendation; it never aborts the other scanners.
func (d *Detector) DetectAll(ctx context.Context) core.DetectionSummary {
	categories := core.Categories()
	findings := make([]core.Finding, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			finding, err := d.Detect(gctx, category)
			if err != nil {
				slog.WarnContext(gctx, "category scan failed",
					"category", category, "error", err)
				finding = core.Finding{
					Category:        category,
					Recommendations: []string{fmt.Sprintf("scan failed, inspect the error store: %v", err)},
				}
			}
			findings[i] = finding
			return nil
		})
	}
	_ = g.Wait() // scanners never return errors, failures degrade in place

	summary := core.DetectionSummary{ByCategory: make(map[core.Category]int, len(categories))}
	merged := make(map[string]bool)
	for i := range findings {
		f := &findings[i]
		// a record matched by several scanners counts once in the aggregate
		kept := f.Items[:0]
		f.CriticalItems = nil
		for _, rec := range f.Items {
			if merged[rec.ID] {
				continue
			}
			merged[rec.ID] = true
			kept = append(kept, rec)
			if rec.Severity == core.SeverityCritical {
				f.CriticalItems = append(f.CriticalItems, rec)
			}
		}
		f.Items = kept
		f.Count = len(kept)
		summary.ByCategory[f.Category] = f.Count
		summary.Total += f.Count
		summary.Critical += len(f.CriticalItems)
		summary.Findings = append(summary.Findings, *f)
	}
	return summary
}
