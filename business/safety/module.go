// Package safety implements the safety bounded context: the trading
// breaker, position sizing, and the action policy behind one gate.
package safety

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	"github.com/fd1az/flasharb/business/safety/app"
	safetyDI "github.com/fd1az/flasharb/business/safety/di"
	"github.com/fd1az/flasharb/business/safety/domain"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/di"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/monolith"
)

// Module implements the safety bounded context.
type Module struct{}

// RegisterServices registers all safety services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, safetyDI.Gate, func(sr di.ServiceRegistry) *app.Gate {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		breaker := domain.NewBreaker(domain.BreakerConfig{
			FailureThreshold: cfg.Safety.FailureThreshold,
			FailureRateLimit: cfg.Safety.FailureRateLimit,
			FailureWindow:    cfg.Safety.FailureWindow,
			Cooldown:         cfg.Safety.Cooldown,
			SuccessThreshold: cfg.Safety.SuccessThreshold,
			MaxLossAbsolute:  decimal.NewFromFloat(cfg.Safety.MaxLossAbsolute),
			MaxLossPct:       decimal.NewFromFloat(cfg.Safety.MaxLossPctCapital),
			Capital:          decimal.NewFromFloat(cfg.Safety.Capital),
			OnStateChange: func(from, to gobreaker.State) {
				log.Warn(context.Background(), "trading breaker state change",
					"from", from.String(), "to", to.String())
			},
		})

		sizer := domain.NewSizer(domain.SizerConfig{
			Capital:        decimal.NewFromFloat(cfg.Safety.Capital),
			MaxAbsolute:    decimal.NewFromFloat(cfg.Safety.MaxAbsolutePerTrade),
			PctPerTrade:    decimal.NewFromFloat(cfg.Safety.MaxPctPerTrade),
			MaxExposurePct: decimal.NewFromFloat(cfg.Safety.MaxTotalExposurePct),
			StreakStep:     decimal.NewFromFloat(cfg.Safety.StreakStep),
			PctFloor:       decimal.NewFromFloat(cfg.Safety.PctFloor),
			PctCeiling:     decimal.NewFromFloat(cfg.Safety.PctCeiling),
		})

		denied := make([]arbDomain.ActionCategory, 0, len(cfg.Safety.DeniedActions))
		for _, a := range cfg.Safety.DeniedActions {
			denied = append(denied, arbDomain.ActionCategory(a))
		}
		policy := domain.NewPolicy(denied)

		gate, err := app.NewGate(breaker, sizer, policy, log)
		if err != nil {
			panic("failed to create safety gate: " + err.Error())
		}
		return gate
	})

	return nil
}

// Startup is a no-op; the gate is called synchronously by the pipeline.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "safety module started")
	return nil
}
