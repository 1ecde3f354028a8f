package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/funding/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/logger"
)

// tableLiquidity serves liquidity from a fixed table keyed by source name.
type tableLiquidity struct {
	balances map[string]decimal.Decimal
	err      error
}

func (l *tableLiquidity) Available(ctx context.Context, source *domain.Source, symbol string) (decimal.Decimal, error) {
	if l.err != nil {
		return decimal.Zero, l.err
	}
	return l.balances[source.Name], nil
}

func testSources() []*domain.Source {
	mainnet := map[uint64]bool{1: true}
	return []*domain.Source{
		{Name: "balancer", FeeBps: decimal.Zero, Assets: map[string]bool{"WETH": true}, ChainIDs: mainnet, Priority: 0},
		{Name: "dydx", FeeBps: decimal.Zero, Assets: map[string]bool{"WETH": true, "USDC": true}, ChainIDs: mainnet, Priority: 1},
		{Name: "aave-v3", FeeBps: decimal.NewFromInt(9), ChainIDs: mainnet, Priority: 2},
	}
}

func newTestSelector(t *testing.T, liquidity LiquidityReader) *Selector {
	t.Helper()
	s, err := NewSelector(SelectorConfig{
		HybridThreshold:  decimal.NewFromInt(1000),
		LiquidityTimeout: time.Second,
	}, testSources(), liquidity, logger.New(io.Discard, logger.LevelInfo, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSelectorPrefersZeroFeeSource(t *testing.T) {
	s := newTestSelector(t, &tableLiquidity{balances: map[string]decimal.Decimal{
		"balancer": decimal.NewFromInt(100),
		"aave-v3":  decimal.NewFromInt(100),
	}})

	plan, err := s.Select(context.Background(), "WETH", decimal.NewFromInt(50), 1)
	if err != nil {
		t.Fatal(err)
	}
	if plan.PrimarySource() != "balancer" {
		t.Errorf("source = %s, want balancer", plan.PrimarySource())
	}
	if !plan.TotalFee().IsZero() {
		t.Errorf("fee = %s, want 0", plan.TotalFee())
	}
	if plan.Hybrid {
		t.Error("single-source plan flagged hybrid")
	}
}

func TestSelectorFallsBackToFeeBearing(t *testing.T) {
	// Zero-fee sources are dry; only Aave can cover.
	s := newTestSelector(t, &tableLiquidity{balances: map[string]decimal.Decimal{
		"aave-v3": decimal.NewFromInt(1000),
	}})

	plan, err := s.Select(context.Background(), "WETH", decimal.NewFromInt(50), 1)
	if err != nil {
		t.Fatal(err)
	}
	if plan.PrimarySource() != "aave-v3" {
		t.Errorf("source = %s, want aave-v3", plan.PrimarySource())
	}
	// 50 * 9bps = 0.045
	if !plan.TotalFee().Equal(decimal.RequireFromString("0.045")) {
		t.Errorf("fee = %s, want 0.045", plan.TotalFee())
	}
}

func TestSelectorRespectsAssetSupport(t *testing.T) {
	// Balancer does not lend USDC; dydx does.
	s := newTestSelector(t, &tableLiquidity{balances: map[string]decimal.Decimal{
		"balancer": decimal.NewFromInt(1000),
		"dydx":     decimal.NewFromInt(1000),
	}})

	plan, err := s.Select(context.Background(), "USDC", decimal.NewFromInt(50), 1)
	if err != nil {
		t.Fatal(err)
	}
	if plan.PrimarySource() != "dydx" {
		t.Errorf("source = %s, want dydx", plan.PrimarySource())
	}
}

func TestSelectorHybridSplitForLargeNotional(t *testing.T) {
	// 2000 requested: balancer covers 1500 free, Aave the 500 remainder.
	s := newTestSelector(t, &tableLiquidity{balances: map[string]decimal.Decimal{
		"balancer": decimal.NewFromInt(1500),
		"aave-v3":  decimal.NewFromInt(10000),
	}})

	plan, err := s.Select(context.Background(), "WETH", decimal.NewFromInt(2000), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Hybrid {
		t.Fatal("expected a hybrid plan")
	}
	if len(plan.Legs) != 2 {
		t.Fatalf("legs = %d, want 2", len(plan.Legs))
	}
	if plan.Legs[0].Source != "balancer" || !plan.Legs[0].Amount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("free leg = %+v", plan.Legs[0])
	}
	if plan.Legs[1].Source != "aave-v3" || !plan.Legs[1].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("fee leg = %+v", plan.Legs[1])
	}
	// Fee only on the 500 remainder: 0.45, cheaper than 1.8 on the full 2000.
	if !plan.TotalFee().Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("fee = %s, want 0.45", plan.TotalFee())
	}
}

func TestSelectorSingleWhenHybridNotCheaper(t *testing.T) {
	// Below threshold and Aave covers fully; hybrid not considered.
	s := newTestSelector(t, &tableLiquidity{balances: map[string]decimal.Decimal{
		"balancer": decimal.NewFromInt(10),
		"aave-v3":  decimal.NewFromInt(1000),
	}})

	plan, err := s.Select(context.Background(), "WETH", decimal.NewFromInt(100), 1)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Hybrid {
		t.Error("plan below the hybrid threshold must stay single-source")
	}
}

func TestSelectorNoFunding(t *testing.T) {
	s := newTestSelector(t, &tableLiquidity{balances: map[string]decimal.Decimal{}})

	_, err := s.Select(context.Background(), "WETH", decimal.NewFromInt(50), 1)
	if apperror.GetCode(err) != apperror.CodeFundingUnavailable {
		t.Fatalf("error = %v, want funding unavailable", err)
	}
}

func TestSelectorLiquidityErrorTreatedAsEmpty(t *testing.T) {
	s := newTestSelector(t, &tableLiquidity{err: errors.New("rpc down")})

	_, err := s.Select(context.Background(), "WETH", decimal.NewFromInt(50), 1)
	if apperror.GetCode(err) != apperror.CodeFundingUnavailable {
		t.Fatalf("error = %v, want funding unavailable", err)
	}
}
