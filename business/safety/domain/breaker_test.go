package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

func breakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		FailureRateLimit: 1.1, // rate condition disabled
		FailureWindow:    time.Minute,
		Cooldown:         30 * time.Millisecond,
		SuccessThreshold: 2,
		MaxLossAbsolute:  decimal.NewFromInt(1000), // loss condition effectively off
		MaxLossPct:       decimal.NewFromInt(1),
		Capital:          decimal.NewFromInt(1000),
	}
}

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	b := NewBreaker(breakerConfig())

	for i := 0; i < 4; i++ {
		b.RecordFailure(decimal.Zero)
		if !b.Allow() {
			t.Fatalf("breaker tripped after %d failures, threshold is 5", i+1)
		}
	}

	b.RecordFailure(decimal.Zero)
	if b.Allow() {
		t.Fatal("breaker must be open after 5 consecutive failures")
	}
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b := NewBreaker(breakerConfig())

	for i := 0; i < 4; i++ {
		b.RecordFailure(decimal.Zero)
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure(decimal.Zero)
	}

	if !b.Allow() {
		t.Fatal("a success between failures must reset the consecutive count")
	}
}

func TestBreakerTripsOnFailureRate(t *testing.T) {
	cfg := breakerConfig()
	cfg.FailureThreshold = 100 // consecutive condition off
	cfg.FailureRateLimit = 0.5
	b := NewBreaker(cfg)

	b.RecordSuccess()
	b.RecordFailure(decimal.Zero)
	b.RecordSuccess()
	b.RecordFailure(decimal.Zero)
	// 5th sample: 3 failures / 5 requests = 0.6 >= 0.5
	b.RecordFailure(decimal.Zero)

	if b.Allow() {
		t.Fatal("breaker must trip once the failure rate crosses the limit")
	}
}

func TestBreakerTripsOnLossCeiling(t *testing.T) {
	cfg := breakerConfig()
	cfg.FailureThreshold = 100
	cfg.MaxLossAbsolute = decimal.NewFromInt(1)
	cfg.MaxLossPct = decimal.RequireFromString("0.05") // 50 of capital, absolute wins
	b := NewBreaker(cfg)

	b.RecordFailure(decimal.RequireFromString("0.6"))
	if !b.Allow() {
		t.Fatal("0.6 loss is below the 1.0 ceiling")
	}

	b.RecordFailure(decimal.RequireFromString("0.6"))
	if b.Allow() {
		t.Fatal("cumulative loss 1.2 must trip the 1.0 absolute ceiling")
	}
}

func TestBreakerPctCeilingWhenTighter(t *testing.T) {
	cfg := breakerConfig()
	cfg.FailureThreshold = 100
	cfg.MaxLossAbsolute = decimal.NewFromInt(100)
	cfg.MaxLossPct = decimal.RequireFromString("0.001") // 1.0 of capital, tighter
	b := NewBreaker(cfg)

	b.RecordFailure(decimal.RequireFromString("1.5"))
	if b.Allow() {
		t.Fatal("pct-of-capital ceiling must trip when it is the tighter bound")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker(breakerConfig())

	for i := 0; i < 5; i++ {
		b.RecordFailure(decimal.RequireFromString("0.1"))
	}
	if b.Allow() {
		t.Fatal("breaker must be open")
	}

	time.Sleep(50 * time.Millisecond) // past cooldown

	if b.State() != gobreaker.StateHalfOpen {
		t.Fatalf("state = %s, want half-open after cooldown", b.State())
	}

	b.RecordSuccess()
	b.RecordSuccess() // K = 2

	if b.State() != gobreaker.StateClosed {
		t.Fatalf("state = %s, want closed after %d successes", b.State(), 2)
	}
	if !b.CumulativeLoss().IsZero() {
		t.Errorf("loss accumulator = %s, want reset on close", b.CumulativeLoss())
	}
}
