// Package mock provides a deterministic oracle for tests and for running
// the engine without a configured provider.
package mock

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// Oracle returns deterministic scores derived from the prompt, so tests
// and dev runs are reproducible. Fixed responses can be registered per
// prompt substring.
type Oracle struct {
	mu     sync.RWMutex
	fixed  map[string]float64
	err    error
	called int
}

// New creates a mock oracle.
func New() *Oracle {
	return &Oracle{fixed: make(map[string]float64)}
}

// SetScore pins the score returned for prompts containing substr.
func (o *Oracle) SetScore(substr string, score float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fixed[substr] = score
}

// Fail makes every Predict call return err until reset with Fail(nil).
func (o *Oracle) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Calls returns how many times Predict ran.
func (o *Oracle) Calls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.called
}

// Predict returns a pinned score when a registered substring matches,
// otherwise a stable hash-derived score in [0,1].
func (o *Oracle) Predict(ctx context.Context, prompt string) (float64, error) {
	o.mu.Lock()
	o.called++
	err := o.err
	var pinned *float64
	for substr, score := range o.fixed {
		if substr != "" && strings.Contains(prompt, substr) {
			s := score
			pinned = &s
			break
		}
	}
	o.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if pinned != nil {
		return *pinned, nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return float64(h.Sum32()%1000) / 999.0, nil
}
