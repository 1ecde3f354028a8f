// Package di contains dependency injection tokens for the market context.
package di

import (
	"github.com/fd1az/flasharb/business/market/app"
	"github.com/fd1az/flasharb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	GraphService = di.NewToken[*app.GraphService]("market.GraphService")
)

// Private dependency tokens - internal to market module
var (
	PoolFetchers = di.NewToken[[]app.PoolStateFetcher]("market:poolFetchers")
)

// Helper functions for type-safe access
func GetGraphService(c di.ServiceRegistry) *app.GraphService {
	return di.GetToken(c, GraphService)
}

func GetPoolFetchers(c di.ServiceRegistry) []app.PoolStateFetcher {
	return di.GetToken(c, PoolFetchers)
}
