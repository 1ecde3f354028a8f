package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	riskDomain "github.com/fd1az/flasharb/business/risk/domain"
	"github.com/fd1az/flasharb/business/safety/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

func testGate(t *testing.T) *Gate {
	t.Helper()

	breaker := domain.NewBreaker(domain.BreakerConfig{
		FailureThreshold: 3,
		FailureRateLimit: 1.1,
		FailureWindow:    time.Minute,
		Cooldown:         time.Minute,
		SuccessThreshold: 2,
		MaxLossAbsolute:  decimal.NewFromInt(1000),
		MaxLossPct:       decimal.NewFromInt(1),
		Capital:          decimal.NewFromInt(100),
	})
	sizer := domain.NewSizer(domain.SizerConfig{
		Capital:        decimal.NewFromInt(100),
		MaxAbsolute:    decimal.NewFromInt(10),
		PctPerTrade:    decimal.RequireFromString("0.10"),
		MaxExposurePct: decimal.RequireFromString("0.50"),
		StreakStep:     decimal.RequireFromString("0.01"),
		PctFloor:       decimal.RequireFromString("0.02"),
		PctCeiling:     decimal.RequireFromString("0.25"),
	})
	policy := domain.NewPolicy([]arbDomain.ActionCategory{arbDomain.ActionSandwich})

	gate, err := NewGate(breaker, sizer, policy, logger.New(io.Discard, logger.LevelInfo, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	return gate
}

func testOpportunity(action arbDomain.ActionCategory, borrow string) *arbDomain.Opportunity {
	token := asset.NewTokenAssetID(1, common.HexToAddress("0xA1"))
	counter := asset.NewTokenAssetID(1, common.HexToAddress("0xB1"))
	amount := decimal.RequireFromString(borrow)
	steps := []arbDomain.SwapStep{
		{PoolAddress: "0x01", Venue: marketDomain.VenueUniswapV2, TokenIn: token, TokenOut: counter, AmountIn: amount, ExpectedOut: amount},
		{PoolAddress: "0x02", Venue: marketDomain.VenueSushiswap, TokenIn: counter, TokenOut: token, AmountIn: amount, ExpectedOut: amount},
	}
	return arbDomain.NewOpportunity(arbDomain.TypeSpatial, action, steps, token, amount, 1)
}

func viableAssessment(id string) *riskDomain.RiskAssessment {
	return &riskDomain.RiskAssessment{
		OpportunityID: id,
		Risk:          decimal.RequireFromString("0.01"),
		AdjustedNet:   decimal.RequireFromString("0.5"),
		AssessedAt:    time.Now(),
	}
}

func TestGateAdmitsViableOpportunity(t *testing.T) {
	gate := testGate(t)
	opp := testOpportunity(arbDomain.ActionCycleSwap, "5")

	approval, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID))
	if err != nil {
		t.Fatal(err)
	}
	if !approval.Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("approved %s, want 5", approval.Amount)
	}
	if approval.Partial {
		t.Error("full approval flagged partial")
	}
}

func TestGatePartialApproval(t *testing.T) {
	gate := testGate(t)
	opp := testOpportunity(arbDomain.ActionCycleSwap, "50")

	approval, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID))
	if err != nil {
		t.Fatal(err)
	}
	if !approval.Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("approved %s, want absolute cap 10", approval.Amount)
	}
	if !approval.Partial {
		t.Error("clipped approval must be flagged partial")
	}
}

func TestGateVetoesDeniedAction(t *testing.T) {
	gate := testGate(t)
	opp := testOpportunity(arbDomain.ActionSandwich, "5")

	_, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID))
	if apperror.GetCode(err) != apperror.CodePolicyViolation {
		t.Fatalf("error = %v, want policy violation", err)
	}
}

func TestGateRejectsNonViableAssessment(t *testing.T) {
	gate := testGate(t)
	opp := testOpportunity(arbDomain.ActionCycleSwap, "5")

	assessment := viableAssessment(opp.ID)
	assessment.AdjustedNet = decimal.RequireFromString("-0.1")

	_, err := gate.Admit(context.Background(), opp, assessment)
	if apperror.GetCode(err) != apperror.CodeRiskRejected {
		t.Fatalf("error = %v, want risk rejection", err)
	}
}

func TestGateRejectsWhenBreakerOpen(t *testing.T) {
	gate := testGate(t)

	for i := 0; i < 3; i++ {
		gate.RecordOutcome(context.Background(), "prior", false, decimal.RequireFromString("-0.1"))
	}

	opp := testOpportunity(arbDomain.ActionCycleSwap, "5")
	_, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID))
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Fatalf("error = %v, want circuit open", err)
	}
}

func TestGateOutcomeReleasesExposure(t *testing.T) {
	gate := testGate(t)
	opp := testOpportunity(arbDomain.ActionCycleSwap, "5")

	if _, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID)); err != nil {
		t.Fatal(err)
	}
	if gate.Exposure().IsZero() {
		t.Fatal("admission must reserve exposure")
	}

	gate.RecordOutcome(context.Background(), opp.ID, true, decimal.RequireFromString("0.5"))
	if !gate.Exposure().IsZero() {
		t.Errorf("exposure = %s, want 0 after outcome", gate.Exposure())
	}
}

func TestGateExposureRejection(t *testing.T) {
	gate := testGate(t)

	// Fill the 50-unit ceiling with five 10-unit admissions.
	for i := 0; i < 5; i++ {
		opp := testOpportunity(arbDomain.ActionCycleSwap, "10")
		if _, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID)); err != nil {
			t.Fatal(err)
		}
	}

	opp := testOpportunity(arbDomain.ActionCycleSwap, "10")
	_, err := gate.Admit(context.Background(), opp, viableAssessment(opp.ID))
	if apperror.GetCode(err) != apperror.CodeExposureExceeded {
		t.Fatalf("error = %v, want exposure exceeded", err)
	}
}
