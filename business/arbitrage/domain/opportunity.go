// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
)

// Type classifies how an opportunity was found.
type Type string

const (
	TypeSpatial    Type = "spatial"
	TypeTriangular Type = "triangular"
	TypeMultiHop   Type = "multi-hop"
)

// ActionCategory is a closed set of action shapes checked against the
// policy table. Detectors tag every opportunity; free-text matching is
// deliberately not supported.
type ActionCategory string

const (
	ActionCycleSwap      ActionCategory = "cycle-swap"
	ActionCrossVenueSwap ActionCategory = "cross-venue-swap"
	ActionLiquidation    ActionCategory = "liquidation"
	ActionSandwich       ActionCategory = "sandwich" // deny-listed by default policy
)

// Status is the opportunity lifecycle state.
type Status string

const (
	StatusIdentified Status = "identified"
	StatusValidated  Status = "validated"
	StatusPrepared   Status = "prepared"
	StatusSubmitted  Status = "submitted"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// validTransitions encodes the forward-only lifecycle. Terminal states have
// no outgoing edges.
var validTransitions = map[Status][]Status{
	StatusIdentified: {StatusValidated, StatusRejected, StatusFailed},
	StatusValidated:  {StatusPrepared, StatusRejected, StatusFailed},
	StatusPrepared:   {StatusSubmitted, StatusFailed},
	StatusSubmitted:  {StatusConfirmed, StatusFailed},
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusRejected
}

// SwapStep is one hop of the trade path.
type SwapStep struct {
	PoolAddress string
	Venue       marketDomain.Venue
	TokenIn     asset.AssetID
	TokenOut    asset.AssetID
	AmountIn    decimal.Decimal
	ExpectedOut decimal.Decimal
	MinOut      decimal.Decimal // set at preparation from slippage tolerance
	FeeBps      decimal.Decimal
}

// Opportunity is a detected arbitrage trade. Created by a detector with
// status Identified; mutated only by the execution pipeline; terminal
// states are immutable.
type Opportunity struct {
	ID           string
	Type         Type
	Action       ActionCategory
	Steps        []SwapStep
	BorrowAsset  asset.AssetID
	BorrowAmount decimal.Decimal
	GrossProfit  decimal.Decimal // in the borrow asset, before risk adjustment
	ProfitBps    decimal.Decimal
	GasEstimate  uint64
	DiscoveredAt time.Time
	Generation   uint64 // pool refresh generation all steps were priced from
	Status       Status
}

// NewOpportunity creates an opportunity in the Identified state.
func NewOpportunity(typ Type, action ActionCategory, steps []SwapStep, borrowAsset asset.AssetID, borrowAmount decimal.Decimal, generation uint64) *Opportunity {
	return &Opportunity{
		ID:           uuid.NewString(),
		Type:         typ,
		Action:       action,
		Steps:        steps,
		BorrowAsset:  borrowAsset,
		BorrowAmount: borrowAmount,
		DiscoveredAt: time.Now(),
		Generation:   generation,
		Status:       StatusIdentified,
	}
}

// TransitionTo advances the lifecycle. Backward or out-of-order transitions
// and any transition out of a terminal state are rejected.
func (o *Opportunity) TransitionTo(next Status) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("opportunity %s is terminal in %s, cannot move to %s", o.ID, o.Status, next)
	}
	for _, allowed := range validTransitions[o.Status] {
		if next == allowed {
			o.Status = next
			return nil
		}
	}
	return fmt.Errorf("opportunity %s: invalid transition %s -> %s", o.ID, o.Status, next)
}

// ValidateStructure checks path well-formedness: non-empty steps, token
// continuity between consecutive steps, a closed loop back to the borrow
// asset, and positive amounts.
func (o *Opportunity) ValidateStructure() error {
	if len(o.Steps) == 0 {
		return fmt.Errorf("opportunity %s has no steps", o.ID)
	}
	if !o.BorrowAmount.IsPositive() {
		return fmt.Errorf("opportunity %s has non-positive borrow amount", o.ID)
	}
	if !o.Steps[0].TokenIn.Equals(o.BorrowAsset) {
		return fmt.Errorf("opportunity %s: first step does not consume the borrow asset", o.ID)
	}
	for i := 1; i < len(o.Steps); i++ {
		if !o.Steps[i].TokenIn.Equals(o.Steps[i-1].TokenOut) {
			return fmt.Errorf("opportunity %s: step %d breaks token continuity", o.ID, i)
		}
	}
	last := o.Steps[len(o.Steps)-1]
	if !last.TokenOut.Equals(o.BorrowAsset) {
		return fmt.Errorf("opportunity %s: path does not close back to the borrow asset", o.ID)
	}
	for i, s := range o.Steps {
		if !s.AmountIn.IsPositive() || !s.ExpectedOut.IsPositive() {
			return fmt.Errorf("opportunity %s: step %d has non-positive amounts", o.ID, i)
		}
	}
	return nil
}

// Hops returns the number of swap steps.
func (o *Opportunity) Hops() int {
	return len(o.Steps)
}

// TotalFeeBps sums the pool fee of every step.
func (o *Opportunity) TotalFeeBps() decimal.Decimal {
	total := decimal.Zero
	for _, s := range o.Steps {
		total = total.Add(s.FeeBps)
	}
	return total
}

// ExpectedOut returns the simulated final output in the borrow asset.
func (o *Opportunity) ExpectedOut() decimal.Decimal {
	if len(o.Steps) == 0 {
		return decimal.Zero
	}
	return o.Steps[len(o.Steps)-1].ExpectedOut
}

var venueRiskWeights = map[marketDomain.Venue]decimal.Decimal{
	marketDomain.VenueUniswapV2: decimal.NewFromFloat(0.02),
	marketDomain.VenueUniswapV3: decimal.NewFromFloat(0.03),
	marketDomain.VenueSushiswap: decimal.NewFromFloat(0.04),
	marketDomain.VenueBalancer:  decimal.NewFromFloat(0.04),
	marketDomain.VenueCEX:       decimal.NewFromFloat(0.10),
}

// RiskScore is a cheap structural score in [0,1]: longer paths, riskier
// venues, and flash-loan usage all raise it. The full risk model refines
// this with live network signals.
func (o *Opportunity) RiskScore() decimal.Decimal {
	score := decimal.NewFromFloat(0.1)

	if o.Hops() > 2 {
		pathPenalty := decimal.NewFromFloat(0.05).Mul(decimal.NewFromInt(int64(o.Hops() - 2)))
		score = score.Add(pathPenalty)
	}

	for _, s := range o.Steps {
		if w, ok := venueRiskWeights[s.Venue]; ok {
			score = score.Add(w)
		}
	}

	if o.BorrowAmount.IsPositive() {
		score = score.Add(decimal.NewFromFloat(0.1)) // flash-loan surcharge
	}

	one := decimal.NewFromInt(1)
	if score.GreaterThan(one) {
		return one
	}
	return score
}
