// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/flasharb/business/arbitrage/app"
	"github.com/fd1az/flasharb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	DetectionService = di.NewToken[*app.DetectionService]("arbitrage.DetectionService")
)

// Private dependency tokens - internal to arbitrage module
var (
	CycleDetector   = di.NewToken[*app.CycleDetector]("arbitrage:cycleDetector")
	SpatialDetector = di.NewToken[*app.SpatialDetector]("arbitrage:spatialDetector")
	GasCoster       = di.NewToken[app.GasCoster]("arbitrage:gasCoster")
)

// Helper functions for type-safe access
func GetDetectionService(c di.ServiceRegistry) *app.DetectionService {
	return di.GetToken(c, DetectionService)
}

func GetCycleDetector(c di.ServiceRegistry) *app.CycleDetector {
	return di.GetToken(c, CycleDetector)
}

func GetSpatialDetector(c di.ServiceRegistry) *app.SpatialDetector {
	return di.GetToken(c, SpatialDetector)
}

func GetGasCoster(c di.ServiceRegistry) app.GasCoster {
	return di.GetToken(c, GasCoster)
}
