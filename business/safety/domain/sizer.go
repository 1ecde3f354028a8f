package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// SizerConfig holds position sizing limits.
type SizerConfig struct {
	Capital        decimal.Decimal
	MaxAbsolute    decimal.Decimal // per-trade absolute cap
	PctPerTrade    decimal.Decimal // per-trade fraction of capital
	MaxExposurePct decimal.Decimal // aggregate open notional cap, fraction of capital
	StreakStep     decimal.Decimal // pct adjustment per win/loss streak step
	PctFloor       decimal.Decimal // streak-scaled pct lower bound
	PctCeiling     decimal.Decimal // streak-scaled pct upper bound
}

// Sizer bounds per-trade size and aggregate exposure. Sizing and the
// exposure check happen under one lock, so concurrent reservations can
// never overshoot the ceiling. Reservations are idempotent per
// opportunity: re-sizing the same ID returns the original reservation.
type Sizer struct {
	config SizerConfig

	mu           sync.Mutex
	exposure     decimal.Decimal
	streak       int // positive = consecutive wins, negative = losses
	reservations map[string]decimal.Decimal
}

// NewSizer creates a position sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{
		config:       cfg,
		exposure:     decimal.Zero,
		reservations: make(map[string]decimal.Decimal),
	}
}

// Reserve sizes a trade for the given opportunity and reserves exposure
// for it. The approved amount is min(requested, absolute cap, streak-scaled
// percent of capital), then clipped to the remaining aggregate headroom.
// Zero means no headroom.
func (s *Sizer) Reserve(opportunityID string, requested decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.reservations[opportunityID]; ok {
		return prior
	}

	size := decimal.Min(requested, s.config.MaxAbsolute, s.config.Capital.Mul(s.scaledPct()))

	headroom := s.config.Capital.Mul(s.config.MaxExposurePct).Sub(s.exposure)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}
	if size.GreaterThan(headroom) {
		size = headroom
	}
	if !size.IsPositive() {
		return decimal.Zero
	}

	s.exposure = s.exposure.Add(size)
	s.reservations[opportunityID] = size
	return size
}

// Release frees the exposure reserved for an opportunity. Safe to call
// more than once.
func (s *Sizer) Release(opportunityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount, ok := s.reservations[opportunityID]; ok {
		s.exposure = s.exposure.Sub(amount)
		delete(s.reservations, opportunityID)
	}
}

// RecordWin extends the win streak, growing the per-trade percentage up
// to the ceiling.
func (s *Sizer) RecordWin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streak < 0 {
		s.streak = 0
	}
	s.streak++
}

// RecordLoss extends the loss streak, shrinking the per-trade percentage
// down to the floor.
func (s *Sizer) RecordLoss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streak > 0 {
		s.streak = 0
	}
	s.streak--
}

// Exposure returns the current aggregate reserved notional.
func (s *Sizer) Exposure() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure
}

// scaledPct applies the streak adjustment, bounded by floor and ceiling.
// Callers hold s.mu.
func (s *Sizer) scaledPct() decimal.Decimal {
	pct := s.config.PctPerTrade.Add(s.config.StreakStep.Mul(decimal.NewFromInt(int64(s.streak))))
	if pct.LessThan(s.config.PctFloor) {
		return s.config.PctFloor
	}
	if pct.GreaterThan(s.config.PctCeiling) {
		return s.config.PctCeiling
	}
	return pct
}
