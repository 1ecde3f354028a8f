// Package ethereum reads flash-loan vault liquidity on-chain.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/funding/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/circuitbreaker"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

const tracerName = "github.com/fd1az/flasharb/business/funding/infra/ethereum"

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// VaultLiquidityReader reads a provider vault's lendable balance as the
// ERC-20 balance of the borrow asset held by the vault.
type VaultLiquidityReader struct {
	chainID  uint64
	client   *ethclient.Client
	limiter  *ratelimit.Limiter
	registry *asset.Registry
	logger   logger.LoggerInterface

	abi    abi.ABI
	callCB *circuitbreaker.CircuitBreaker[[]byte]
	tracer trace.Tracer
}

// NewVaultLiquidityReader creates an on-chain liquidity reader.
func NewVaultLiquidityReader(chainID uint64, client *ethclient.Client, limiter *ratelimit.Limiter, registry *asset.Registry, log logger.LoggerInterface) (*VaultLiquidityReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return &VaultLiquidityReader{
		chainID:  chainID,
		client:   client,
		limiter:  limiter,
		registry: registry,
		logger:   log,
		abi:      parsed,
		callCB:   circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("funding-liquidity")),
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Available returns the vault's balance of the asset, scaled to decimal
// units.
func (r *VaultLiquidityReader) Available(ctx context.Context, source *domain.Source, symbol string) (decimal.Decimal, error) {
	ctx, span := r.tracer.Start(ctx, "funding.liquidity",
		trace.WithAttributes(
			attribute.String("source", source.Name),
			attribute.String("asset", symbol),
		),
	)
	defer span.End()

	a, ok := r.registry.GetBySymbolAndChain(symbol, r.chainID)
	if !ok {
		return decimal.Zero, apperror.New(apperror.CodeNotFound,
			apperror.WithContext("unknown asset "+symbol))
	}
	token := a.ID().Address()

	data, err := r.abi.Pack("balanceOf", source.Vault)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	out, err := r.callCB.Execute(func() ([]byte, error) {
		return r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	})
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("balanceOf "+source.Name+" vault"))
	}

	var balance *big.Int
	if err := r.abi.UnpackIntoInterface(&balance, "balanceOf", out); err != nil {
		return decimal.Zero, fmt.Errorf("unpack balanceOf: %w", err)
	}

	available := decimal.NewFromBigInt(balance, -int32(a.Decimals()))
	span.SetAttributes(attribute.String("available", available.String()))
	return available, nil
}
