package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
)

var (
	tokenA = asset.NewTokenAssetID(1, common.HexToAddress("0xA1"))
	tokenB = asset.NewTokenAssetID(1, common.HexToAddress("0xB1"))
	tokenC = asset.NewTokenAssetID(1, common.HexToAddress("0xC1"))
)

func step(in, out asset.AssetID, amountIn, expectedOut string) SwapStep {
	return SwapStep{
		PoolAddress: "0x01",
		Venue:       marketDomain.VenueUniswapV2,
		TokenIn:     in,
		TokenOut:    out,
		AmountIn:    decimal.RequireFromString(amountIn),
		ExpectedOut: decimal.RequireFromString(expectedOut),
	}
}

func validOpportunity() *Opportunity {
	steps := []SwapStep{
		step(tokenA, tokenB, "10", "19.7"),
		step(tokenB, tokenC, "19.7", "19.3"),
		step(tokenC, tokenA, "19.3", "16.9"),
	}
	return NewOpportunity(TypeTriangular, ActionCycleSwap, steps, tokenA, decimal.NewFromInt(10), 1)
}

func TestLifecycleForwardOnly(t *testing.T) {
	o := validOpportunity()

	path := []Status{StatusValidated, StatusPrepared, StatusSubmitted, StatusConfirmed}
	for _, next := range path {
		if err := o.TransitionTo(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	// Terminal is immutable.
	if err := o.TransitionTo(StatusFailed); err == nil {
		t.Error("transition out of terminal state must fail")
	}
}

func TestLifecycleRejectsBackward(t *testing.T) {
	o := validOpportunity()
	if err := o.TransitionTo(StatusValidated); err != nil {
		t.Fatal(err)
	}
	if err := o.TransitionTo(StatusIdentified); err == nil {
		t.Error("backward transition must fail")
	}
	if err := o.TransitionTo(StatusSubmitted); err == nil {
		t.Error("skipping Prepared must fail")
	}
}

func TestLifecycleRejectFromAnyActiveState(t *testing.T) {
	o := validOpportunity()
	if err := o.TransitionTo(StatusRejected); err != nil {
		t.Fatalf("Identified -> Rejected: %v", err)
	}
	if !o.Status.IsTerminal() {
		t.Error("Rejected must be terminal")
	}
}

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Opportunity)
		wantErr bool
	}{
		{"valid", func(o *Opportunity) {}, false},
		{"no steps", func(o *Opportunity) { o.Steps = nil }, true},
		{"broken continuity", func(o *Opportunity) { o.Steps[1].TokenIn = tokenC }, true},
		{"open loop", func(o *Opportunity) { o.Steps[2].TokenOut = tokenB }, true},
		{"wrong entry token", func(o *Opportunity) { o.Steps[0].TokenIn = tokenB }, true},
		{"zero amount", func(o *Opportunity) { o.Steps[1].AmountIn = decimal.Zero }, true},
		{"zero borrow", func(o *Opportunity) { o.BorrowAmount = decimal.Zero }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOpportunity()
			tt.mutate(o)
			err := o.ValidateStructure()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStructure() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRiskScoreGrowsWithPathLength(t *testing.T) {
	short := validOpportunity()
	long := validOpportunity()
	long.Steps = append(long.Steps,
		step(tokenA, tokenB, "1", "1"),
		step(tokenB, tokenA, "1", "1"),
	)

	if !long.RiskScore().GreaterThan(short.RiskScore()) {
		t.Errorf("longer path must score riskier: %s vs %s", long.RiskScore(), short.RiskScore())
	}

	one := decimal.NewFromInt(1)
	if long.RiskScore().GreaterThan(one) {
		t.Errorf("risk score must be capped at 1, got %s", long.RiskScore())
	}
}
