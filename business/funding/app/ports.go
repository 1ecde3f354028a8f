// Package app contains the flash-loan source selector and its ports.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/funding/domain"
)

// LiquidityReader reports how much of an asset a source's vault can lend
// right now.
type LiquidityReader interface {
	Available(ctx context.Context, source *domain.Source, symbol string) (decimal.Decimal, error)
}
