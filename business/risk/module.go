// Package risk implements the risk bounded context: network condition
// sensors and the risk pricing model.
package risk

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/risk/app"
	riskDI "github.com/fd1az/flasharb/business/risk/di"
	riskEth "github.com/fd1az/flasharb/business/risk/infra/ethereum"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/di"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/monolith"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

// Module implements the risk bounded context.
type Module struct{}

// RegisterServices registers all risk services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.CongestionSensor, func(sr di.ServiceRegistry) app.Sensor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)

		return riskEth.NewCongestionSensor(riskEth.CongestionConfig{
			Window:        cfg.Risk.SensorWindow,
			PendingNormal: cfg.Risk.PendingNormal,
		}, client, limiter, log)
	})

	di.RegisterToken(c, riskDI.DensitySensor, func(sr di.ServiceRegistry) app.Sensor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)
		limiter := sr.Get("rpcLimiter").(*ratelimit.Limiter)

		return riskEth.NewDensitySensor(riskEth.DensityConfig{
			Window:  cfg.Risk.SensorWindow,
			ChainID: new(big.Int).SetUint64(cfg.Ethereum.ChainID),
			Routers: riskEth.DefaultRouters(),
		}, client, limiter, log)
	})

	di.RegisterToken(c, riskDI.SensorHub, func(sr di.ServiceRegistry) *app.SensorHub {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		hub, err := app.NewSensorHub(app.HubConfig{
			CacheTTL:        cfg.Risk.SensorCacheTTL,
			DegradedReading: cfg.Risk.DegradedReading,
		}, riskDI.GetCongestionSensor(sr), riskDI.GetDensitySensor(sr), log)
		if err != nil {
			panic("failed to create sensor hub: " + err.Error())
		}
		return hub
	})

	di.RegisterToken(c, riskDI.RiskService, func(sr di.ServiceRegistry) *app.RiskService {
		cfg := sr.Get("config").(*config.Config)

		model := app.NewModel(app.ModelConfig{
			Base:  decimal.NewFromFloat(cfg.Risk.Base),
			Alpha: decimal.NewFromFloat(cfg.Risk.Alpha),
			Beta:  decimal.NewFromFloat(cfg.Risk.Beta),
			Gamma: decimal.NewFromFloat(cfg.Risk.Gamma),
		})
		return app.NewRiskService(model, riskDI.GetSensorHub(sr))
	})

	return nil
}

// Startup is a no-op; sensors are sampled on demand through the hub.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "risk module started")
	return nil
}
