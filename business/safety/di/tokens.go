// Package di contains dependency injection tokens for the safety context.
package di

import (
	"github.com/fd1az/flasharb/business/safety/app"
	"github.com/fd1az/flasharb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Gate = di.NewToken[*app.Gate]("safety.Gate")
)

// Helper functions for type-safe access
func GetGate(c di.ServiceRegistry) *app.Gate {
	return di.GetToken(c, Gate)
}
