// Package circuitbreaker wraps sony/gobreaker with typed results and shared defaults.
//
// These breakers guard RPC-facing infrastructure (pool fetcher, gas oracle,
// sensors). The trading admission breaker in business/safety has its own
// loss-aware configuration on top of the same library.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config holds circuit breaker configuration.
type Config struct {
	Name          string
	MaxRequests   uint32        // Requests allowed through in half-open
	Interval      time.Duration // Window for clearing counts while closed
	Timeout       time.Duration // Open -> half-open cooldown
	FailureCount  uint32        // Consecutive failures to trip
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns the defaults used by infrastructure adapters.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureCount: 5,
	}
}

// CircuitBreaker is a typed circuit breaker for a single operation class.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a breaker from the given config.
func New[T any](cfg Config) *CircuitBreaker[T] {
	failureCount := cfg.FailureCount
	if failureCount == 0 {
		failureCount = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureCount
		},
		OnStateChange: cfg.OnStateChange,
	}

	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	return c.cb.Execute(fn)
}

// State returns the current breaker state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the breaker name.
func (c *CircuitBreaker[T]) Name() string {
	return c.cb.Name()
}
