package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

type fakeFetcher struct {
	venue domain.Venue
	pools []*domain.Pool
	err   error
}

func (f *fakeFetcher) FetchPools(ctx context.Context, generation uint64) ([]*domain.Pool, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*domain.Pool, len(f.pools))
	for i, p := range f.pools {
		cp := *p
		cp.Generation = generation
		out[i] = &cp
	}
	return out, nil
}

func (f *fakeFetcher) Venue() domain.Venue { return f.venue }

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelInfo, "test", nil)
}

func pool(addr string, r0, r1 string, age time.Duration) *domain.Pool {
	tokenX := asset.NewTokenAssetID(1, common.HexToAddress("0x1111"))
	tokenY := asset.NewTokenAssetID(1, common.HexToAddress("0x2222"))
	return &domain.Pool{
		Address:        common.HexToAddress(addr),
		Venue:          domain.VenueUniswapV2,
		Token0:         tokenX,
		Token1:         tokenY,
		Reserve0:       decimal.RequireFromString(r0),
		Reserve1:       decimal.RequireFromString(r1),
		FeeBps:         decimal.NewFromInt(30),
		BlockTimestamp: time.Now().Add(-age),
	}
}

func TestRefreshFiltersStaleAndIlliquid(t *testing.T) {
	fetcher := &fakeFetcher{
		venue: domain.VenueUniswapV2,
		pools: []*domain.Pool{
			pool("0x01", "5000", "5000", 0),                // kept
			pool("0x02", "5000", "5000", 10*time.Minute),   // stale
			pool("0x03", "10", "900000", 0),                // illiquid
		},
	}

	svc, err := NewGraphService(GraphConfig{
		RefreshInterval: time.Minute,
		StaleAfter:      30 * time.Second,
		MinLiquidity:    decimal.NewFromInt(100),
	}, []PoolStateFetcher{fetcher}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	g, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g.PoolCount() != 1 {
		t.Fatalf("expected 1 pool after filtering, got %d", g.PoolCount())
	}
	if g.Generation() != 1 {
		t.Errorf("expected generation 1, got %d", g.Generation())
	}
}

func TestRefreshAbsorbsFetcherFailure(t *testing.T) {
	good := &fakeFetcher{
		venue: domain.VenueUniswapV2,
		pools: []*domain.Pool{pool("0x01", "5000", "5000", 0)},
	}
	bad := &fakeFetcher{venue: domain.VenueCEX, err: errors.New("connection reset")}

	svc, err := NewGraphService(GraphConfig{
		RefreshInterval: time.Minute,
		MinLiquidity:    decimal.Zero,
	}, []PoolStateFetcher{good, bad}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	g, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("partial fetch must not error: %v", err)
	}
	if g.PoolCount() != 1 {
		t.Fatalf("expected partial graph with 1 pool, got %d", g.PoolCount())
	}
}

func TestGraphSwapIsAtomic(t *testing.T) {
	fetcher := &fakeFetcher{
		venue: domain.VenueUniswapV2,
		pools: []*domain.Pool{pool("0x01", "5000", "5000", 0)},
	}
	svc, err := NewGraphService(GraphConfig{
		RefreshInterval: time.Minute,
		MinLiquidity:    decimal.Zero,
	}, []PoolStateFetcher{fetcher}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	before := svc.Graph()
	if before == nil || before.PoolCount() != 0 {
		t.Fatal("service must start with an empty, non-nil graph")
	}

	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	after := svc.Graph()
	if after == before {
		t.Error("refresh must install a new graph snapshot")
	}
	if before.PoolCount() != 0 {
		t.Error("old snapshot must be unchanged after refresh")
	}
}
