package app

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/business/risk/domain"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelInfo, "test", nil)
}

// fakeSensor counts samples and returns a fixed reading or error.
type fakeSensor struct {
	name    string
	reading float64
	err     error
	samples atomic.Int32
}

func (s *fakeSensor) Name() string { return s.name }

func (s *fakeSensor) Sample(ctx context.Context) (float64, error) {
	s.samples.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.reading, nil
}

func testOpportunity(borrow, profit string) *arbDomain.Opportunity {
	token := asset.NewTokenAssetID(1, common.HexToAddress("0xA1"))
	counter := asset.NewTokenAssetID(1, common.HexToAddress("0xB1"))
	steps := []arbDomain.SwapStep{
		{
			PoolAddress: "0x01",
			Venue:       marketDomain.VenueUniswapV2,
			TokenIn:     token,
			TokenOut:    counter,
			AmountIn:    decimal.RequireFromString(borrow),
			ExpectedOut: decimal.NewFromInt(1),
		},
		{
			PoolAddress: "0x02",
			Venue:       marketDomain.VenueSushiswap,
			TokenIn:     counter,
			TokenOut:    token,
			AmountIn:    decimal.NewFromInt(1),
			ExpectedOut: decimal.RequireFromString(borrow).Add(decimal.RequireFromString(profit)),
		},
	}
	opp := arbDomain.NewOpportunity(arbDomain.TypeSpatial, arbDomain.ActionCrossVenueSwap,
		steps, token, decimal.RequireFromString(borrow), 1)
	opp.GrossProfit = decimal.RequireFromString(profit)
	return opp
}

func TestModelScore(t *testing.T) {
	model := NewModel(ModelConfig{
		Base:  decimal.RequireFromString("0.001"),
		Alpha: decimal.RequireFromString("0.0005"),
		Beta:  decimal.RequireFromString("0.01"),
		Gamma: decimal.RequireFromString("0.02"),
	})

	opp := testOpportunity("10", "0.5")
	signals := domain.NetworkSignals{Congestion: 0.6, SearcherDensity: 0.3}

	a := model.Score(opp, signals)

	// 0.001 + 0.0005*10 + 0.01*0.6 + 0.02*0.3 = 0.018
	wantRisk := decimal.RequireFromString("0.018")
	if !a.Risk.Equal(wantRisk) {
		t.Errorf("risk = %s, want %s", a.Risk, wantRisk)
	}
	wantNet := decimal.RequireFromString("0.482")
	if !a.AdjustedNet.Equal(wantNet) {
		t.Errorf("adjusted net = %s, want %s", a.AdjustedNet, wantNet)
	}
	if !a.Viable() {
		t.Error("assessment should be viable")
	}
}

func TestModelScoreRiskSwallowsProfit(t *testing.T) {
	model := NewModel(ModelConfig{
		Base:  decimal.RequireFromString("0.5"),
		Alpha: decimal.RequireFromString("0.1"),
		Beta:  decimal.Zero,
		Gamma: decimal.Zero,
	})

	// risk = 0.5 + 0.1*10 = 1.5 > 0.5 profit
	a := model.Score(testOpportunity("10", "0.5"), domain.NetworkSignals{})
	if a.Viable() {
		t.Errorf("assessment should not be viable, adjusted net %s", a.AdjustedNet)
	}
}

func TestSensorHubCachesReadings(t *testing.T) {
	congestion := &fakeSensor{name: "congestion", reading: 0.4}
	density := &fakeSensor{name: "searcher-density", reading: 0.2}

	hub, err := NewSensorHub(HubConfig{CacheTTL: time.Minute, DegradedReading: 0.5},
		congestion, density, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		signals := hub.Signals(ctx)
		if signals.Congestion != 0.4 || signals.SearcherDensity != 0.2 {
			t.Fatalf("unexpected signals: %+v", signals)
		}
		if signals.Degraded {
			t.Fatal("signals should not be degraded")
		}
	}

	if got := congestion.samples.Load(); got != 1 {
		t.Errorf("congestion sampled %d times, want 1 (cached)", got)
	}
	if got := density.samples.Load(); got != 1 {
		t.Errorf("density sampled %d times, want 1 (cached)", got)
	}
}

func TestSensorHubDegradesOnFailure(t *testing.T) {
	congestion := &fakeSensor{name: "congestion", err: errors.New("rpc down")}
	density := &fakeSensor{name: "searcher-density", reading: 0.2}

	hub, err := NewSensorHub(HubConfig{CacheTTL: time.Minute, DegradedReading: 0.5},
		congestion, density, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	signals := hub.Signals(context.Background())
	if signals.Congestion != 0.5 {
		t.Errorf("degraded congestion = %f, want 0.5", signals.Congestion)
	}
	if !signals.Degraded {
		t.Error("signals must be flagged degraded")
	}
	if signals.SearcherDensity != 0.2 {
		t.Errorf("density = %f, want 0.2", signals.SearcherDensity)
	}

	snap := hub.Metrics()
	if snap.DegradedReads == 0 {
		t.Error("degraded read counter not incremented")
	}
}

func TestRiskServiceAssess(t *testing.T) {
	hub, err := NewSensorHub(HubConfig{CacheTTL: time.Minute, DegradedReading: 0.5},
		&fakeSensor{name: "congestion", reading: 1},
		&fakeSensor{name: "searcher-density", reading: 1},
		testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	model := NewModel(ModelConfig{
		Base:  decimal.RequireFromString("0.001"),
		Alpha: decimal.Zero,
		Beta:  decimal.RequireFromString("0.01"),
		Gamma: decimal.RequireFromString("0.02"),
	})
	svc := NewRiskService(model, hub)

	a := svc.Assess(context.Background(), testOpportunity("10", "0.5"))

	// 0.001 + 0.01 + 0.02 = 0.031
	if !a.Risk.Equal(decimal.RequireFromString("0.031")) {
		t.Errorf("risk = %s, want 0.031", a.Risk)
	}
}
