// Package ethereum provides on-chain pool-state adapters for the market context.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/market/app"
	"github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/circuitbreaker"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/market/infra/ethereum"
	meterName  = "github.com/fd1az/flasharb/business/market/infra/ethereum"
)

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// Ensure PoolFetcher implements the port.
var _ app.PoolStateFetcher = (*PoolFetcher)(nil)

// FetcherConfig holds pool fetcher configuration.
type FetcherConfig struct {
	Venue   domain.Venue
	ChainID uint64
	Pools   []common.Address
	V3      bool // concentrated-liquidity pools normalized to virtual reserves
	FeeBps  decimal.Decimal
}

// poolMeta is the immutable part of a pool, resolved once and cached.
type poolMeta struct {
	token0    asset.AssetID
	token1    asset.AssetID
	decimals0 int32
	decimals1 int32
	feeBps    decimal.Decimal
}

// fetcherMetrics holds OTEL metric instruments.
type fetcherMetrics struct {
	fetchesTotal metric.Int64Counter
	fetchErrors  metric.Int64Counter
	fetchLatency metric.Float64Histogram
}

// PoolFetcher reads pool reserves over ethclient. Calls are rate limited and
// breaker-wrapped; a single pool's failure never fails the whole fetch.
type PoolFetcher struct {
	config   FetcherConfig
	client   *ethclient.Client
	limiter  *ratelimit.Limiter
	registry *asset.Registry
	logger   logger.LoggerInterface

	pairABI  abi.ABI
	v3ABI    abi.ABI
	erc20ABI abi.ABI

	metaMu sync.RWMutex
	meta   map[common.Address]*poolMeta

	cb      *circuitbreaker.CircuitBreaker[[]byte]
	tracer  trace.Tracer
	metrics *fetcherMetrics
}

// NewPoolFetcher creates a pool-state fetcher.
func NewPoolFetcher(cfg FetcherConfig, client *ethclient.Client, limiter *ratelimit.Limiter, registry *asset.Registry, log logger.LoggerInterface) (*PoolFetcher, error) {
	pairABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	v3ABI, err := abi.JSON(strings.NewReader(V3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse v3 pool ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}

	f := &PoolFetcher{
		config:   cfg,
		client:   client,
		limiter:  limiter,
		registry: registry,
		logger:   log,
		pairABI:  pairABI,
		v3ABI:    v3ABI,
		erc20ABI: erc20ABI,
		meta:     make(map[common.Address]*poolMeta),
		cb:       circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("pool-fetcher-" + string(cfg.Venue))),
		tracer:   otel.Tracer(tracerName),
	}

	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return f, nil
}

func (f *PoolFetcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &fetcherMetrics{}

	f.metrics.fetchesTotal, err = meter.Int64Counter(
		"market_pool_fetches_total",
		metric.WithDescription("Total pool state fetches"),
	)
	if err != nil {
		return err
	}

	f.metrics.fetchErrors, err = meter.Int64Counter(
		"market_pool_fetch_errors_total",
		metric.WithDescription("Total pool state fetch errors"),
	)
	if err != nil {
		return err
	}

	f.metrics.fetchLatency, err = meter.Float64Histogram(
		"market_pool_fetch_latency_ms",
		metric.WithDescription("Per-refresh fetch latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Venue identifies the venue family this fetcher covers.
func (f *PoolFetcher) Venue() domain.Venue {
	return f.config.Venue
}

// FetchPools reads current state for every configured pool. Pools that fail
// to read are logged and omitted.
func (f *PoolFetcher) FetchPools(ctx context.Context, generation uint64) ([]*domain.Pool, error) {
	ctx, span := f.tracer.Start(ctx, "market.fetch_pools",
		trace.WithAttributes(
			attribute.String("venue", string(f.config.Venue)),
			attribute.Int("pools", len(f.config.Pools)),
		),
	)
	defer span.End()

	start := time.Now()
	blockTime := f.blockTimestamp(ctx)

	pools := make([]*domain.Pool, 0, len(f.config.Pools))
	for _, addr := range f.config.Pools {
		if err := f.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return pools, err
		}

		pool, err := f.fetchPool(ctx, addr, generation, blockTime)
		if err != nil {
			f.metrics.fetchErrors.Add(ctx, 1)
			f.logger.Warn(ctx, "pool fetch failed, pool omitted",
				"pool", addr.Hex(), "error", err)
			continue
		}
		pools = append(pools, pool)
	}

	f.metrics.fetchesTotal.Add(ctx, 1)
	f.metrics.fetchLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	span.SetAttributes(attribute.Int("fetched", len(pools)))
	span.SetStatus(codes.Ok, "fetched")
	return pools, nil
}

// blockTimestamp reads the latest block time, falling back to wall clock.
func (f *PoolFetcher) blockTimestamp(ctx context.Context) time.Time {
	header, err := f.client.HeaderByNumber(ctx, nil)
	if err != nil {
		f.logger.Debug(ctx, "header fetch failed, using wall clock", "error", err)
		return time.Now()
	}
	return time.Unix(int64(header.Time), 0)
}

func (f *PoolFetcher) fetchPool(ctx context.Context, addr common.Address, generation uint64, blockTime time.Time) (*domain.Pool, error) {
	meta, err := f.poolMeta(ctx, addr)
	if err != nil {
		return nil, err
	}

	var reserve0, reserve1 decimal.Decimal
	if f.config.V3 {
		reserve0, reserve1, err = f.virtualReserves(ctx, addr, meta)
	} else {
		reserve0, reserve1, err = f.pairReserves(ctx, addr, meta)
	}
	if err != nil {
		return nil, err
	}

	return &domain.Pool{
		Address:        addr,
		Venue:          f.config.Venue,
		Token0:         meta.token0,
		Token1:         meta.token1,
		Reserve0:       reserve0,
		Reserve1:       reserve1,
		FeeBps:         meta.feeBps,
		BlockTimestamp: blockTime,
		Generation:     generation,
	}, nil
}

// pairReserves reads getReserves from a V2-style pair.
func (f *PoolFetcher) pairReserves(ctx context.Context, addr common.Address, meta *poolMeta) (decimal.Decimal, decimal.Decimal, error) {
	out, err := f.call(ctx, f.pairABI, addr, "getReserves")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if len(out) < 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unexpected getReserves output length: %d", len(out))
	}

	r0 := decimal.NewFromBigInt(out[0].(*big.Int), -meta.decimals0)
	r1 := decimal.NewFromBigInt(out[1].(*big.Int), -meta.decimals1)
	return r0, r1, nil
}

// virtualReserves converts a concentrated-liquidity pool's (liquidity,
// sqrtPriceX96) into the virtual reserves at the current tick:
//
//	reserve0 = L * 2^96 / sqrtPriceX96
//	reserve1 = L * sqrtPriceX96 / 2^96
//
// Downstream math then treats V3 pools like any constant-product pool.
func (f *PoolFetcher) virtualReserves(ctx context.Context, addr common.Address, meta *poolMeta) (decimal.Decimal, decimal.Decimal, error) {
	slot0, err := f.call(ctx, f.v3ABI, addr, "slot0")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	liqOut, err := f.call(ctx, f.v3ABI, addr, "liquidity")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if len(slot0) < 1 || len(liqOut) < 1 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unexpected slot0/liquidity output")
	}

	sqrtPrice := slot0[0].(*big.Int)
	liquidity := liqOut[0].(*big.Int)
	if sqrtPrice.Sign() == 0 || liquidity.Sign() == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("pool %s has no active liquidity", addr.Hex())
	}

	r0 := new(big.Int).Div(new(big.Int).Mul(liquidity, q96), sqrtPrice)
	r1 := new(big.Int).Div(new(big.Int).Mul(liquidity, sqrtPrice), q96)

	reserve0 := decimal.NewFromBigInt(r0, -meta.decimals0)
	reserve1 := decimal.NewFromBigInt(r1, -meta.decimals1)
	return reserve0, reserve1, nil
}

// poolMeta resolves tokens, decimals and fee for a pool, caching the result.
func (f *PoolFetcher) poolMeta(ctx context.Context, addr common.Address) (*poolMeta, error) {
	f.metaMu.RLock()
	m, ok := f.meta[addr]
	f.metaMu.RUnlock()
	if ok {
		return m, nil
	}

	contractABI := f.pairABI
	if f.config.V3 {
		contractABI = f.v3ABI
	}

	t0Out, err := f.call(ctx, contractABI, addr, "token0")
	if err != nil {
		return nil, err
	}
	t1Out, err := f.call(ctx, contractABI, addr, "token1")
	if err != nil {
		return nil, err
	}

	token0Addr := t0Out[0].(common.Address)
	token1Addr := t1Out[0].(common.Address)

	feeBps := f.config.FeeBps
	if f.config.V3 {
		feeOut, err := f.call(ctx, f.v3ABI, addr, "fee")
		if err != nil {
			return nil, err
		}
		// V3 fee is in hundredths of a bip.
		feeBps = decimal.NewFromBigInt(feeOut[0].(*big.Int), 0).Div(decimal.NewFromInt(100))
	}

	dec0, err := f.tokenDecimals(ctx, token0Addr)
	if err != nil {
		return nil, err
	}
	dec1, err := f.tokenDecimals(ctx, token1Addr)
	if err != nil {
		return nil, err
	}

	m = &poolMeta{
		token0:    asset.NewTokenAssetID(f.config.ChainID, token0Addr),
		token1:    asset.NewTokenAssetID(f.config.ChainID, token1Addr),
		decimals0: int32(dec0),
		decimals1: int32(dec1),
		feeBps:    feeBps,
	}

	f.metaMu.Lock()
	f.meta[addr] = m
	f.metaMu.Unlock()

	return m, nil
}

// tokenDecimals reads a token's decimals, registering the token if unknown.
func (f *PoolFetcher) tokenDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	if a, ok := f.registry.GetToken(f.config.ChainID, addr); ok {
		return a.Decimals(), nil
	}

	out, err := f.call(ctx, f.erc20ABI, addr, "decimals")
	if err != nil {
		return 0, err
	}
	decimals := out[0].(uint8)

	symbol := addr.Hex()[:8]
	if symOut, err := f.call(ctx, f.erc20ABI, addr, "symbol"); err == nil {
		if s, ok := symOut[0].(string); ok && s != "" {
			symbol = s
		}
	}

	f.registry.Register(asset.NewAsset(asset.NewTokenAssetID(f.config.ChainID, addr), symbol, decimals))
	return decimals, nil
}

// call encodes, executes (through the breaker), and decodes a view call.
func (f *PoolFetcher) call(ctx context.Context, contractABI abi.ABI, addr common.Address, method string, args ...any) ([]any, error) {
	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	result, err := f.cb.Execute(func() ([]byte, error) {
		return f.client.CallContract(ctx, ethereum.CallMsg{
			To:   &addr,
			Data: callData,
		}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodePoolFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s call failed for %s", method, addr.Hex())))
	}

	outputs, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return outputs, nil
}
