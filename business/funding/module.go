// Package funding implements the funding bounded context: flash-loan
// source selection over a provider table with on-chain liquidity reads.
package funding

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/funding/app"
	fundingDI "github.com/fd1az/flasharb/business/funding/di"
	"github.com/fd1az/flasharb/business/funding/domain"
	fundingEth "github.com/fd1az/flasharb/business/funding/infra/ethereum"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/di"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/monolith"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

// Module implements the funding bounded context.
type Module struct{}

// RegisterServices registers all funding services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, fundingDI.LiquidityReader, func(sr di.ServiceRegistry) app.LiquidityReader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		reader, err := fundingEth.NewVaultLiquidityReader(cfg.Ethereum.ChainID, client, limiter, registry, log)
		if err != nil {
			panic("failed to create liquidity reader: " + err.Error())
		}
		return reader
	})

	di.RegisterToken(c, fundingDI.Selector, func(sr di.ServiceRegistry) *app.Selector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		selector, err := app.NewSelector(app.SelectorConfig{
			HybridThreshold:  decimal.NewFromFloat(cfg.Funding.HybridThreshold),
			LiquidityTimeout: cfg.Funding.LiquidityTimeout,
		}, buildSources(cfg.Funding.Sources), fundingDI.GetLiquidityReader(sr), log)
		if err != nil {
			panic("failed to create source selector: " + err.Error())
		}
		return selector
	})

	return nil
}

// Startup is a no-op; the selector is called synchronously by the pipeline.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "funding module started")
	return nil
}

// buildSources maps provider configuration to domain sources. An empty
// config falls back to the default mainnet provider table.
func buildSources(configs []config.FundingSourceConfig) []*domain.Source {
	if len(configs) == 0 {
		return defaultSources()
	}

	sources := make([]*domain.Source, 0, len(configs))
	for _, sc := range configs {
		assets := make(map[string]bool, len(sc.Assets))
		for _, a := range sc.Assets {
			assets[a] = true
		}
		chains := make(map[uint64]bool, len(sc.ChainIDs))
		for _, id := range sc.ChainIDs {
			chains[id] = true
		}
		sources = append(sources, &domain.Source{
			Name:     sc.Name,
			FeeBps:   decimal.NewFromFloat(sc.FeeBps),
			Vault:    common.HexToAddress(sc.VaultAddress),
			Assets:   assets,
			ChainIDs: chains,
			Priority: sc.Priority,
		})
	}
	return sources
}

// defaultSources is the mainnet provider table: zero-fee Balancer and
// dYdX ahead of the universal 9 bps Aave fallback.
func defaultSources() []*domain.Source {
	mainnet := map[uint64]bool{1: true}
	return []*domain.Source{
		{
			Name:     "balancer",
			FeeBps:   decimal.Zero,
			Vault:    common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8"),
			Assets:   map[string]bool{"WETH": true, "USDC": true, "DAI": true, "WBTC": true},
			ChainIDs: mainnet,
			Priority: 0,
		},
		{
			Name:     "dydx",
			FeeBps:   decimal.Zero,
			Vault:    common.HexToAddress("0x1E0447b19BB6EcFdAe1e4AE1694b0C3659614e4e"),
			Assets:   map[string]bool{"WETH": true, "USDC": true, "DAI": true},
			ChainIDs: mainnet,
			Priority: 1,
		},
		{
			Name:     "aave-v3",
			FeeBps:   decimal.NewFromInt(9),
			Vault:    common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
			Assets:   nil, // universal
			ChainIDs: mainnet,
			Priority: 2,
		},
	}
}
