// Package di contains dependency injection tokens for the risk context.
package di

import (
	"github.com/fd1az/flasharb/business/risk/app"
	"github.com/fd1az/flasharb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	RiskService = di.NewToken[*app.RiskService]("risk.RiskService")
)

// Private dependency tokens - internal to risk module
var (
	CongestionSensor = di.NewToken[app.Sensor]("risk:congestionSensor")
	DensitySensor    = di.NewToken[app.Sensor]("risk:densitySensor")
	SensorHub        = di.NewToken[*app.SensorHub]("risk:sensorHub")
)

// Helper functions for type-safe access
func GetRiskService(c di.ServiceRegistry) *app.RiskService {
	return di.GetToken(c, RiskService)
}

func GetCongestionSensor(c di.ServiceRegistry) app.Sensor {
	return di.GetToken(c, CongestionSensor)
}

func GetDensitySensor(c di.ServiceRegistry) app.Sensor {
	return di.GetToken(c, DensitySensor)
}

func GetSensorHub(c di.ServiceRegistry) *app.SensorHub {
	return di.GetToken(c, SensorHub)
}
