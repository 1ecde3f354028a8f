// Package di contains dependency injection tokens for the funding context.
package di

import (
	"github.com/fd1az/flasharb/business/funding/app"
	"github.com/fd1az/flasharb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Selector = di.NewToken[*app.Selector]("funding.Selector")
)

// Private dependency tokens - internal to funding module
var (
	LiquidityReader = di.NewToken[app.LiquidityReader]("funding:liquidityReader")
)

// Helper functions for type-safe access
func GetSelector(c di.ServiceRegistry) *app.Selector {
	return di.GetToken(c, Selector)
}

func GetLiquidityReader(c di.ServiceRegistry) app.LiquidityReader {
	return di.GetToken(c, LiquidityReader)
}
