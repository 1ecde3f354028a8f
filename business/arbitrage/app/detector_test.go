package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

var (
	tokenA = asset.NewTokenAssetID(1, common.HexToAddress("0xA1"))
	tokenB = asset.NewTokenAssetID(1, common.HexToAddress("0xB1"))
	tokenC = asset.NewTokenAssetID(1, common.HexToAddress("0xC1"))
)

// fixedGas prices gas at a constant amount of any token.
type fixedGas struct {
	cost decimal.Decimal
	err  error
}

func (g *fixedGas) CostInToken(ctx context.Context, token asset.AssetID, gasUnits uint64) (decimal.Decimal, error) {
	if g.err != nil {
		return decimal.Zero, g.err
	}
	return g.cost, nil
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelInfo, "test", nil)
}

func testPool(addr string, t0, t1 asset.AssetID, r0, r1 string, venue marketDomain.Venue) *marketDomain.Pool {
	return &marketDomain.Pool{
		Address:        common.HexToAddress(addr),
		Venue:          venue,
		Token0:         t0,
		Token1:         t1,
		Reserve0:       decimal.RequireFromString(r0),
		Reserve1:       decimal.RequireFromString(r1),
		FeeBps:         decimal.NewFromInt(30),
		BlockTimestamp: time.Now(),
		Generation:     1,
	}
}

func detectorConfig() DetectorConfig {
	return DetectorConfig{
		MinProfitBps:  decimal.NewFromInt(10),
		MaxHops:       4,
		TradeSizes:    []decimal.Decimal{decimal.NewFromInt(10)},
		StartTokens:   []asset.AssetID{tokenA},
		FlashFeeBps:   decimal.NewFromInt(9),
		GasBase:       100_000,
		GasFlashExtra: 150_000,
		GasPerSwap:    120_000,
	}
}

func triangleGraph() *marketDomain.Graph {
	pools := []*marketDomain.Pool{
		testPool("0x01", tokenA, tokenB, "1000", "2000", marketDomain.VenueUniswapV2),
		testPool("0x02", tokenB, tokenC, "1000", "1000", marketDomain.VenueUniswapV2),
		testPool("0x03", tokenC, tokenA, "1000", "900", marketDomain.VenueUniswapV2),
	}
	return marketDomain.NewGraph(pools, 1)
}

func TestCycleDetectorEmitsProfitableTriangle(t *testing.T) {
	// The reference path simulates 10 A -> ~16.99 A. With gas priced at
	// 1 A and a 9 bps flash fee the path clears break-even comfortably.
	d, err := NewCycleDetector(detectorConfig(), &fixedGas{cost: decimal.NewFromInt(1)}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	opps := d.Detect(context.Background(), triangleGraph())
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	o := opps[0]
	if o.Hops() != 3 {
		t.Errorf("expected 3 hops, got %d", o.Hops())
	}
	if err := o.ValidateStructure(); err != nil {
		t.Errorf("emitted opportunity fails structural validation: %v", err)
	}
	if !o.GrossProfit.IsPositive() {
		t.Errorf("emitted opportunity has non-positive profit: %s", o.GrossProfit)
	}
	if o.Generation != 1 {
		t.Errorf("opportunity generation = %d, want 1", o.Generation)
	}

	// Net-of-fee output strictly exceeds input + flash fee + gas.
	flashFee := o.BorrowAmount.Mul(decimal.NewFromInt(9)).Div(decimal.NewFromInt(10000))
	breakEven := o.BorrowAmount.Add(flashFee).Add(decimal.NewFromInt(1))
	if !o.ExpectedOut().GreaterThan(breakEven) {
		t.Errorf("output %s does not clear break-even %s", o.ExpectedOut(), breakEven)
	}
}

func TestCycleDetectorSuppressesWhenGasDominates(t *testing.T) {
	// Same path, but gas priced at 10 A swallows the ~7 A edge.
	d, err := NewCycleDetector(detectorConfig(), &fixedGas{cost: decimal.NewFromInt(10)}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if opps := d.Detect(context.Background(), triangleGraph()); len(opps) != 0 {
		t.Fatalf("expected no opportunities, got %d", len(opps))
	}
}

func TestCycleDetectorNeverEmitsLossPath(t *testing.T) {
	// A flat triangle: every pool balanced, so fees guarantee a loss.
	pools := []*marketDomain.Pool{
		testPool("0x01", tokenA, tokenB, "1000", "1000", marketDomain.VenueUniswapV2),
		testPool("0x02", tokenB, tokenC, "1000", "1000", marketDomain.VenueUniswapV2),
		testPool("0x03", tokenC, tokenA, "1000", "1000", marketDomain.VenueUniswapV2),
	}
	g := marketDomain.NewGraph(pools, 1)

	d, err := NewCycleDetector(detectorConfig(), &fixedGas{cost: decimal.Zero}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for _, o := range d.Detect(context.Background(), g) {
		if !o.ExpectedOut().GreaterThan(o.BorrowAmount) {
			t.Errorf("detector emitted a guaranteed-loss path: in %s out %s",
				o.BorrowAmount, o.ExpectedOut())
		}
	}
}

func TestCycleDetectorSkipsOnGasFailure(t *testing.T) {
	d, err := NewCycleDetector(detectorConfig(), &fixedGas{err: errors.New("oracle down")}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if opps := d.Detect(context.Background(), triangleGraph()); len(opps) != 0 {
		t.Fatalf("expected no opportunities without gas pricing, got %d", len(opps))
	}
}

func TestSpatialDetectorFindsCrossVenueSpread(t *testing.T) {
	// Same pair, materially different price across two venues.
	pools := []*marketDomain.Pool{
		testPool("0x01", tokenA, tokenB, "1000", "2000", marketDomain.VenueUniswapV2),
		testPool("0x02", tokenA, tokenB, "1000", "2500", marketDomain.VenueSushiswap),
	}
	g := marketDomain.NewGraph(pools, 1)

	d, err := NewSpatialDetector(detectorConfig(), &fixedGas{cost: decimal.NewFromFloat(0.01)}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	opps := d.Detect(context.Background(), g)
	if len(opps) == 0 {
		t.Fatal("expected at least one cross-venue opportunity")
	}

	for _, o := range opps {
		if o.Hops() != 2 {
			t.Errorf("spatial opportunity must have 2 steps, got %d", o.Hops())
		}
		if o.Steps[0].Venue == o.Steps[1].Venue {
			t.Error("spatial steps must cross venues")
		}
		if err := o.ValidateStructure(); err != nil {
			t.Errorf("structural validation failed: %v", err)
		}
		if !o.GrossProfit.IsPositive() {
			t.Errorf("non-positive profit: %s", o.GrossProfit)
		}
	}
}

func TestSpatialDetectorIgnoresEqualPrices(t *testing.T) {
	pools := []*marketDomain.Pool{
		testPool("0x01", tokenA, tokenB, "1000", "2000", marketDomain.VenueUniswapV2),
		testPool("0x02", tokenA, tokenB, "1000", "2000", marketDomain.VenueSushiswap),
	}
	g := marketDomain.NewGraph(pools, 1)

	d, err := NewSpatialDetector(detectorConfig(), &fixedGas{cost: decimal.Zero}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if opps := d.Detect(context.Background(), g); len(opps) != 0 {
		t.Fatalf("equal prices must yield nothing, got %d opportunities", len(opps))
	}
}
