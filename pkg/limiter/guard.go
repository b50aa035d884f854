// Package limiter protects the oracle dependency with a rate limiter and
// a circuit breaker. An open breaker or an exhausted limiter surfaces as
// an oracle error, which callers map to a neutral score.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/snow-ghost/healer/core"
)

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig returns the standard oracle breaker settings.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// open when failure rate >= 50% over at least 5 requests
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
}

// StateChangeFunc observes breaker transitions, e.g. for metrics.
type StateChangeFunc func(name string, from, to gobreaker.State)

// GuardedOracle wraps a core.Oracle with rate limiting and a circuit
// breaker; it satisfies core.Oracle itself.
type GuardedOracle struct {
	inner   core.Oracle
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedOracle wraps inner. requestsPerMinute <= 0 disables rate
// limiting; onStateChange may be nil.
func NewGuardedOracle(inner core.Oracle, cfg BreakerConfig, requestsPerMinute float64, onStateChange StateChangeFunc) *GuardedOracle {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	})

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		burst := int(requestsPerMinute / 10)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burst)
	}

	return &GuardedOracle{inner: inner, breaker: breaker, limiter: limiter}
}

// Predict runs one guarded oracle round trip.
func (g *GuardedOracle) Predict(ctx context.Context, prompt string) (float64, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Predict(ctx, prompt)
	})
	if err != nil {
		return 0, fmt.Errorf("oracle call failed: %w", err)
	}
	return result.(float64), nil
}

// State returns the current breaker state.
func (g *GuardedOracle) State() gobreaker.State {
	return g.breaker.State()
}

// Counts returns the breaker's request counts.
func (g *GuardedOracle) Counts() gobreaker.Counts {
	return g.breaker.Counts()
}
