// Package market implements the market bounded context: the pool graph and
// the venue adapters that feed it.
package market

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/market/app"
	marketDI "github.com/fd1az/flasharb/business/market/di"
	"github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/business/market/infra/cex"
	marketEth "github.com/fd1az/flasharb/business/market/infra/ethereum"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/di"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/monolith"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

// Module implements the market bounded context.
type Module struct{}

// RegisterServices registers all market services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register pool fetchers (private - internal dependency)
	di.RegisterToken(c, marketDI.PoolFetchers, func(sr di.ServiceRegistry) []app.PoolStateFetcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		var fetchers []app.PoolStateFetcher

		pools := make([]common.Address, 0, len(cfg.Market.Pools))
		for _, p := range cfg.Market.Pools {
			if common.IsHexAddress(p) {
				pools = append(pools, common.HexToAddress(p))
			}
		}
		if len(pools) > 0 {
			fCfg := marketEth.FetcherConfig{
				Venue:   domain.VenueUniswapV2,
				ChainID: cfg.Ethereum.ChainID,
				Pools:   pools,
				FeeBps:  decimal.NewFromInt(30),
			}
			fetcher, err := marketEth.NewPoolFetcher(fCfg, client, limiter, registry, log)
			if err != nil {
				panic("failed to create pool fetcher: " + err.Error())
			}
			fetchers = append(fetchers, fetcher)
		}

		if cfg.Market.CEXWebSocketURL != "" {
			mappings := symbolMappings(cfg.Market.CEXSymbols, cfg.Ethereum.ChainID, registry)
			if len(mappings) > 0 {
				feed, err := cex.NewFeed(cex.DefaultFeedConfig(cfg.Market.CEXWebSocketURL, mappings), log)
				if err != nil {
					panic("failed to create cex feed: " + err.Error())
				}
				fetchers = append(fetchers, feed)
			}
		}

		return fetchers
	})

	// Register GraphService (public - exposed to other modules)
	di.RegisterToken(c, marketDI.GraphService, func(sr di.ServiceRegistry) *app.GraphService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		gCfg := app.GraphConfig{
			RefreshInterval: cfg.Market.RefreshInterval,
			StaleAfter:      cfg.Market.StaleAfter,
			MinLiquidity:    cfg.Market.MinLiquidityDecimal(),
		}
		svc, err := app.NewGraphService(gCfg, marketDI.GetPoolFetchers(sr), log)
		if err != nil {
			panic("failed to create graph service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup connects the venue feeds and starts the refresh loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	for _, f := range marketDI.GetPoolFetchers(mono.Services()) {
		if connector, ok := f.(interface{ Connect(context.Context) error }); ok {
			if err := connector.Connect(ctx); err != nil {
				log.Error(ctx, "venue feed connect failed", "venue", string(f.Venue()), "error", err)
				// Don't fail - the fetcher is simply omitted until it recovers
			}
		}
	}

	svc := marketDI.GetGraphService(mono.Services())
	go svc.Run(ctx)

	log.Info(ctx, "market module started")
	return nil
}

// symbolMappings resolves exchange symbols like "ETHUSDC" to registered
// token pairs. Unresolvable symbols are skipped.
func symbolMappings(symbols []string, chainID uint64, registry *asset.Registry) []cex.SymbolMapping {
	// ETH books price the wrapped token on-chain.
	aliases := map[string]string{"ETH": "WETH", "BTC": "WBTC"}

	known := registry.All()
	var mappings []cex.SymbolMapping
	for _, sym := range symbols {
		upper := strings.ToUpper(sym)
		for _, quote := range known {
			if !strings.HasSuffix(upper, quote.Symbol()) || quote.ChainID() != chainID {
				continue
			}
			baseSym := strings.TrimSuffix(upper, quote.Symbol())
			if alias, ok := aliases[baseSym]; ok {
				baseSym = alias
			}
			base, ok := registry.GetBySymbolAndChain(baseSym, chainID)
			if !ok {
				continue
			}
			mappings = append(mappings, cex.SymbolMapping{
				Symbol: upper,
				Base:   base.ID(),
				Quote:  quote.ID(),
			})
			break
		}
	}
	return mappings
}
