// Package arbitrage implements the detection bounded context: cycle and
// spatial detectors running over the market graph.
package arbitrage

import (
	"context"

	"github.com/fd1az/flasharb/business/arbitrage/app"
	arbDI "github.com/fd1az/flasharb/business/arbitrage/di"
	blockchainDI "github.com/fd1az/flasharb/business/blockchain/di"
	marketDI "github.com/fd1az/flasharb/business/market/di"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/di"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbDI.GasCoster, func(sr di.ServiceRegistry) app.GasCoster {
		cfg := sr.Get("config").(*config.Config)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		weth, ok := registry.GetBySymbolAndChain("WETH", cfg.Ethereum.ChainID)
		if !ok {
			panic("WETH is not registered for the configured chain")
		}
		return app.NewGraphGasCoster(
			blockchainDI.GetGasOracle(sr),
			marketDI.GetGraphService(sr),
			weth.ID(),
		)
	})

	di.RegisterToken(c, arbDI.CycleDetector, func(sr di.ServiceRegistry) *app.CycleDetector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		d, err := app.NewCycleDetector(
			detectorConfig(cfg, registry),
			arbDI.GetGasCoster(sr),
			log,
		)
		if err != nil {
			panic("failed to create cycle detector: " + err.Error())
		}
		return d
	})

	di.RegisterToken(c, arbDI.SpatialDetector, func(sr di.ServiceRegistry) *app.SpatialDetector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		d, err := app.NewSpatialDetector(
			detectorConfig(cfg, registry),
			arbDI.GetGasCoster(sr),
			log,
		)
		if err != nil {
			panic("failed to create spatial detector: " + err.Error())
		}
		return d
	})

	di.RegisterToken(c, arbDI.DetectionService, func(sr di.ServiceRegistry) *app.DetectionService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewDetectionService(
			marketDI.GetGraphService(sr),
			arbDI.GetCycleDetector(sr),
			arbDI.GetSpatialDetector(sr),
			cfg.Detect.Interval,
			cfg.Execution.EventBufferSize,
			log,
		)
	})

	return nil
}

// Startup launches the detection loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	svc := arbDI.GetDetectionService(mono.Services())
	go svc.Run(ctx)

	mono.Logger().Info(ctx, "arbitrage module started")
	return nil
}

// detectorConfig maps detect configuration to detector thresholds, resolving
// start token symbols against the registry. Unknown symbols are skipped.
func detectorConfig(cfg *config.Config, registry *asset.Registry) app.DetectorConfig {
	starts := make([]asset.AssetID, 0, len(cfg.Detect.StartTokens))
	for _, sym := range cfg.Detect.StartTokens {
		if a, ok := registry.GetBySymbolAndChain(sym, cfg.Ethereum.ChainID); ok {
			starts = append(starts, a.ID())
		}
	}

	return app.DetectorConfig{
		MinProfitBps:  cfg.Detect.MinProfitBpsDecimal(),
		MaxHops:       cfg.Detect.MaxHops,
		TradeSizes:    cfg.Detect.TradeSizesDecimal(),
		StartTokens:   starts,
		FlashFeeBps:   cfg.Detect.FlashFeeBpsDecimal(),
		GasBase:       cfg.Detect.GasBase,
		GasFlashExtra: cfg.Detect.GasFlashExtra,
		GasPerSwap:    cfg.Detect.GasPerSwap,
	}
}
