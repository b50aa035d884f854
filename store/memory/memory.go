// Package memory provides in-memory implementations of the core stores,
// used in tests and in dev mode before a database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/healer/core"
)

// ErrorStore is an in-memory implementation of core.ErrorStore.
type ErrorStore struct {
	mu       sync.RWMutex
	records  map[string]core.ErrorRecord
	order    []string // insertion order for stable query results
	attempts []core.HealingAttempt
}

// NewErrorStore creates an empty in-memory error store.
func NewErrorStore() *ErrorStore {
	return &ErrorStore{records: make(map[string]core.ErrorRecord)}
}

// Query returns records matching the filter in insertion order.
func (s *ErrorStore) Query(ctx context.Context, filter core.ErrorFilter) ([]core.ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ErrorRecord, 0)
	keyword := strings.ToLower(filter.Keyword)
	for _, id := range s.order {
		rec := s.records[id]
		if filter.Category != nil && rec.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(rec.Message), keyword) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Insert stores a new record, assigning an id and defaults when missing.
func (s *ErrorStore) Insert(ctx context.Context, rec core.ErrorRecord) (core.ErrorRecord, error) {
	if _, err := core.ParseCategory(string(rec.Category)); err != nil {
		return core.ErrorRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = core.StatusOpen
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return core.ErrorRecord{}, fmt.Errorf("error record %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec, nil
}

// Resolve marks a record resolved. Resolving twice is an error: the
// open->resolved transition happens at most once.
func (s *ErrorStore) Resolve(ctx context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("resolve %s: %w", id, core.ErrNotFound)
	}
	if rec.Status == core.StatusResolved {
		return fmt.Errorf("resolve %s: %w", id, core.ErrAlreadyFinal)
	}
	rec.Status = core.StatusResolved
	if rec.Context == nil {
		rec.Context = make(map[string]string)
	}
	if note != "" {
		rec.Context["resolution_note"] = note
	}
	s.records[id] = rec
	return nil
}

// AppendAttempt records one healing attempt for audit.
func (s *ErrorStore) AppendAttempt(ctx context.Context, attempt core.HealingAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[attempt.ErrorID]; !ok {
		return fmt.Errorf("append attempt for %s: %w", attempt.ErrorID, core.ErrNotFound)
	}
	s.attempts = append(s.attempts, attempt)
	return nil
}

// Attempts returns a copy of all recorded attempts, in order.
func (s *ErrorStore) Attempts() []core.HealingAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.HealingAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// PatternStore is an in-memory implementation of core.PatternStore.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]core.Pattern
}

// NewPatternStore creates a pattern store seeded with the built-in
// remediation patterns so the pattern strategy works out of the box.
func NewPatternStore() *PatternStore {
	s := &PatternStore{patterns: make(map[string]core.Pattern)}
	for _, p := range SeedPatterns() {
		s.patterns[p.Name] = p
	}
	return s
}

// NewEmptyPatternStore creates a pattern store without seeds.
func NewEmptyPatternStore() *PatternStore {
	return &PatternStore{patterns: make(map[string]core.Pattern)}
}

// SeedPatterns returns the built-in per-category remediation recipes.
func SeedPatterns() []core.Pattern {
	return []core.Pattern{
		{Name: "runtime/restart-component.v1", Category: core.CategoryRuntime, Description: "restart the failing component with a clean state", Confidence: 0.75},
		{Name: "auth/refresh-credentials.v1", Category: core.CategoryAuth, Description: "refresh expired credentials and retry the request", Confidence: 0.8},
		{Name: "build/clean-rebuild.v1", Category: core.CategoryBuild, Description: "clear build cache and rebuild from scratch", Confidence: 0.7},
		{Name: "integration/resync-contract.v1", Category: core.CategoryIntegration, Description: "re-sync the integration contract and replay the call", Confidence: 0.65},
		{Name: "performance/add-cache.v1", Category: core.CategoryPerformance, Description: "cache the hot path result", Confidence: 0.6},
		{Name: "dependency/reinstall.v1", Category: core.CategoryDependency, Description: "reinstall dependencies from the lockfile", Confidence: 0.85},
		{Name: "network/retry-backoff.v1", Category: core.CategoryNetwork, Description: "retry with exponential backoff", Confidence: 0.8},
	}
}

// Get returns the named pattern or (nil, nil) when absent.
func (s *PatternStore) Get(ctx context.Context, name string) (*core.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[name]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

// FindByCategory returns the category's patterns sorted by confidence,
// highest first; ties break on name for determinism.
func (s *PatternStore) FindByCategory(ctx context.Context, category core.Category) ([]core.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Pattern, 0)
	for _, p := range s.patterns {
		if p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Upsert stores or replaces a pattern.
func (s *PatternStore) Upsert(ctx context.Context, p core.Pattern) error {
	if p.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s confidence %.3f out of [0,1]", p.Name, p.Confidence)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.Name] = p
	return nil
}

// IncrementCounters bumps the outcome counters and the last-used stamp.
func (s *PatternStore) IncrementCounters(ctx context.Context, name string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[name]
	if !ok {
		return fmt.Errorf("increment counters for %s: %w", name, core.ErrNotFound)
	}
	if success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	p.LastUsedAt = time.Now()
	s.patterns[name] = p
	return nil
}

// DecisionLog is an in-memory implementation of core.DecisionLog.
type DecisionLog struct {
	mu      sync.RWMutex
	entries []core.DecisionLogEntry
}

// NewDecisionLog creates an empty in-memory decision log.
func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

// Insert appends a decision log entry.
func (l *DecisionLog) Insert(ctx context.Context, entry core.DecisionLogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("decision log entry id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// RecordOutcome closes the feedback loop for a logged decision.
func (l *DecisionLog) RecordOutcome(ctx context.Context, decisionID, chosenID string, successful bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == decisionID {
			l.entries[i].ChosenID = chosenID
			ok := successful
			l.entries[i].Successful = &ok
			return nil
		}
	}
	return fmt.Errorf("record outcome for %s: %w", decisionID, core.ErrNotFound)
}

// HistoricalWeights computes per-option success rates from closed decisions
// in the given scenario category.
func (l *DecisionLog) HistoricalWeights(ctx context.Context, scenarioCategory string) (map[string]float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chosen := make(map[string]int)
	succeeded := make(map[string]int)
	for _, e := range l.entries {
		if e.ScenarioCategory != scenarioCategory || e.Successful == nil || e.ChosenID == "" {
			continue
		}
		chosen[e.ChosenID]++
		if *e.Successful {
			succeeded[e.ChosenID]++
		}
	}

	weights := make(map[string]float64, len(chosen))
	for id, n := range chosen {
		weights[id] = float64(succeeded[id]) / float64(n)
	}
	return weights, nil
}
