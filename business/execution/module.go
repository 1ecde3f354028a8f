// Package execution implements the execution bounded context: the
// checkpointed pipeline from admitted opportunity to confirmed trade.
package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	arbDI "github.com/fd1az/flasharb/business/arbitrage/di"
	blockchainDI "github.com/fd1az/flasharb/business/blockchain/di"
	"github.com/fd1az/flasharb/business/execution/app"
	execDI "github.com/fd1az/flasharb/business/execution/di"
	execEth "github.com/fd1az/flasharb/business/execution/infra/ethereum"
	fundingDI "github.com/fd1az/flasharb/business/funding/di"
	marketDI "github.com/fd1az/flasharb/business/market/di"
	riskDI "github.com/fd1az/flasharb/business/risk/di"
	safetyDI "github.com/fd1az/flasharb/business/safety/di"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/di"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/monolith"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, execDI.Wallet, func(sr di.ServiceRegistry) *execEth.Wallet {
		cfg := sr.Get("config").(*config.Config)

		wallet, err := execEth.NewWallet(cfg.Execution.PrivateKey, new(big.Int).SetUint64(cfg.Ethereum.ChainID))
		if err != nil {
			panic("failed to create wallet: " + err.Error())
		}
		return wallet
	})

	di.RegisterToken(c, execDI.NonceSource, func(sr di.ServiceRegistry) app.NonceSource {
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)

		return execEth.NewNonceAllocator(execDI.GetWallet(sr).Account, client, limiter, log)
	})

	di.RegisterToken(c, execDI.Submitter, func(sr di.ServiceRegistry) app.Submitter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)

		submitter, err := execEth.NewRPCSubmitter(
			new(big.Int).SetUint64(cfg.Ethereum.ChainID),
			client,
			execDI.GetWallet(sr).Sign,
			limiter,
			cfg.Execution.DryRun,
			log,
		)
		if err != nil {
			panic("failed to create submitter: " + err.Error())
		}
		return submitter
	})

	di.RegisterToken(c, execDI.Confirmer, func(sr di.ServiceRegistry) app.Confirmer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)

		return execEth.NewReceiptConfirmer(client, limiter, cfg.Ethereum.BlockInterval, log)
	})

	di.RegisterToken(c, execDI.TxBuilder, func(sr di.ServiceRegistry) *app.TxBuilder {
		cfg := sr.Get("config").(*config.Config)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		return app.NewTxBuilder(
			registry,
			common.HexToAddress(cfg.Execution.ExecutorAddress),
			cfg.Execution.SlippageBpsDecimal(),
			cfg.Execution.OpportunityDeadline,
		)
	})

	di.RegisterToken(c, execDI.Recovery, func(sr di.ServiceRegistry) *app.Recovery {
		cfg := sr.Get("config").(*config.Config)

		return app.NewRecovery(app.RecoveryConfig{
			MaxRetries:        cfg.Execution.MaxRetries,
			Backoff:           cfg.Execution.RetryBackoff,
			GasBumpMultiplier: cfg.Execution.GasBumpMultiplier,
		})
	})

	di.RegisterToken(c, execDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		pipeline, err := app.NewPipeline(
			app.PipelineConfig{
				ChainID:             cfg.Ethereum.ChainID,
				MaxWorkers:          cfg.Execution.MaxWorkers,
				OpportunityDeadline: cfg.Execution.OpportunityDeadline,
				ConfirmDepth:        cfg.Execution.ConfirmDepth,
				ConfirmTimeout:      cfg.Execution.ConfirmTimeout,
				EventBufferSize:     cfg.Execution.EventBufferSize,
			},
			registry,
			riskDI.GetRiskService(sr),
			safetyDI.GetGate(sr),
			fundingDI.GetSelector(sr),
			blockchainDI.GetGasOracle(sr),
			execDI.GetNonceSource(sr),
			execDI.GetSubmitter(sr),
			execDI.GetConfirmer(sr),
			marketDI.GetGraphService(sr),
			execDI.GetTxBuilder(sr),
			execDI.GetRecovery(sr),
			log,
		)
		if err != nil {
			panic("failed to create execution pipeline: " + err.Error())
		}
		return pipeline
	})

	di.RegisterToken(c, execDI.Monitor, func(sr di.ServiceRegistry) *app.Monitor {
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewMonitor(
			app.MonitorConfig{},
			execDI.GetPipeline(sr),
			safetyDI.GetGate(sr),
			log,
		)
	})

	return nil
}

// Startup connects the detection feed to the pipeline and launches the
// monitor.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()
	pipeline := execDI.GetPipeline(sr)
	monitor := execDI.GetMonitor(sr)
	detection := arbDI.GetDetectionService(sr)

	go func() {
		if err := pipeline.Run(ctx, detection.Opportunities()); err != nil && ctx.Err() == nil {
			mono.Logger().Error(ctx, "execution pipeline stopped", "error", err.Error())
		}
	}()
	go monitor.Run(ctx)

	mono.Logger().Info(ctx, "execution module started")
	return nil
}
