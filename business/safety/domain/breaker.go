// Package domain contains the trading safety primitives: the loss-aware
// circuit breaker, the position sizer, and the action policy.
package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds trading breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int             // consecutive failures that trip
	FailureRateLimit float64         // failure rate over the window that trips
	FailureWindow    time.Duration   // closed-state counting window
	Cooldown         time.Duration   // open -> half-open
	SuccessThreshold int             // half-open successes to close
	MaxLossAbsolute  decimal.Decimal // cumulative loss ceiling, asset units
	MaxLossPct       decimal.Decimal // cumulative loss ceiling, fraction of capital
	Capital          decimal.Decimal
	OnStateChange    func(from, to gobreaker.State)
}

// minRateSamples is the minimum number of requests before the failure
// rate condition is considered, so one early loss cannot trip the rate.
const minRateSamples = 5

// Breaker is the trading admission breaker. It trips on whichever fires
// first: N consecutive failures, the failure rate over the window, or
// cumulative realized loss beyond the absolute or percent-of-capital
// ceiling. After the cooldown it goes half-open and needs K successes to
// close; closing resets the loss accumulator.
type Breaker struct {
	config BreakerConfig

	mu   sync.Mutex
	loss decimal.Decimal // cumulative realized loss since last close

	cb *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker creates a trading breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{config: cfg, loss: decimal.Zero}

	lossCeiling := cfg.MaxLossAbsolute
	pctCeiling := cfg.Capital.Mul(cfg.MaxLossPct)
	if pctCeiling.IsPositive() && (lossCeiling.IsZero() || pctCeiling.LessThan(lossCeiling)) {
		lossCeiling = pctCeiling
	}

	settings := gobreaker.Settings{
		Name:        "trading-gate",
		MaxRequests: uint32(cfg.SuccessThreshold),
		Interval:    cfg.FailureWindow,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold) {
				return true
			}
			if counts.Requests >= minRateSamples {
				rate := float64(counts.TotalFailures) / float64(counts.Requests)
				if rate >= cfg.FailureRateLimit {
					return true
				}
			}
			b.mu.Lock()
			defer b.mu.Unlock()
			return lossCeiling.IsPositive() && b.loss.GreaterThanOrEqual(lossCeiling)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				b.mu.Lock()
				b.loss = decimal.Zero
				b.mu.Unlock()
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(from, to)
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[struct{}](settings)
	return b
}

// Allow reports whether trading is currently admitted.
func (b *Breaker) Allow() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// State returns the underlying breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// RecordSuccess feeds a successful trade outcome.
func (b *Breaker) RecordSuccess() {
	b.cb.Execute(func() (struct{}, error) { return struct{}{}, nil })
}

// RecordFailure feeds a failed trade and its realized loss (zero when the
// trade failed before committing funds).
func (b *Breaker) RecordFailure(loss decimal.Decimal) {
	b.mu.Lock()
	if loss.IsPositive() {
		b.loss = b.loss.Add(loss)
	}
	b.mu.Unlock()

	b.cb.Execute(func() (struct{}, error) { return struct{}{}, errTradeFailed })
}

// CumulativeLoss returns the loss accumulated since the breaker last closed.
func (b *Breaker) CumulativeLoss() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loss
}

type tradeFailedError struct{}

func (tradeFailedError) Error() string { return "trade failed" }

var errTradeFailed = tradeFailedError{}
