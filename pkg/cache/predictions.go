// Package cache provides a TTL-bounded LRU cache for oracle predictions,
// so repeated scoring of the same option avoids a network round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snow-ghost/healer/core"
)

type entry struct {
	score     float64
	expiresAt time.Time
}

// Config holds cache configuration.
type Config struct {
	MaxSize int
	TTL     time.Duration
	// Observer, when set, is called with true on a hit and false on a
	// miss, e.g. to feed metrics counters.
	Observer func(hit bool)
}

// DefaultConfig returns the standard prediction cache settings.
func DefaultConfig() Config {
	return Config{MaxSize: 1024, TTL: 5 * time.Minute}
}

// Stats counts cache effectiveness.
type Stats struct {
	Hits   int64
	Misses int64
}

// Predictions caches oracle scores keyed by a prompt digest and falls
// back to the wrapped oracle on a miss. It satisfies core.Oracle.
type Predictions struct {
	inner    core.Oracle
	cache    *lru.Cache[string, entry]
	ttl      time.Duration
	observer func(hit bool)

	mu    sync.Mutex
	stats Stats
}

// NewPredictions wraps inner with a prediction cache.
func NewPredictions(inner core.Oracle, cfg Config) (*Predictions, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	c, err := lru.New[string, entry](cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Predictions{inner: inner, cache: c, ttl: cfg.TTL, observer: cfg.Observer}, nil
}

// Predict returns the cached score when fresh, otherwise consults the
// wrapped oracle and caches the result. Errors are never cached.
func (p *Predictions) Predict(ctx context.Context, prompt string) (float64, error) {
	key := digest(prompt)

	if e, ok := p.cache.Get(key); ok && time.Now().Before(e.expiresAt) {
		p.count(true)
		return e.score, nil
	}
	p.count(false)

	score, err := p.inner.Predict(ctx, prompt)
	if err != nil {
		return 0, err
	}
	p.cache.Add(key, entry{score: score, expiresAt: time.Now().Add(p.ttl)})
	return score, nil
}

// Stats returns a snapshot of hit/miss counts.
func (p *Predictions) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Predictions) count(hit bool) {
	p.mu.Lock()
	if hit {
		p.stats.Hits++
	} else {
		p.stats.Misses++
	}
	p.mu.Unlock()
	if p.observer != nil {
		p.observer(hit)
	}
}

func digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:16])
}
