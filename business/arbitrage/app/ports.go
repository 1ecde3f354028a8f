// Package app contains the opportunity detectors for the arbitrage context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/internal/asset"
)

// GasCoster converts a gas-unit estimate into a cost denominated in a given
// token, so break-even checks compare like with like.
type GasCoster interface {
	CostInToken(ctx context.Context, token asset.AssetID, gasUnits uint64) (decimal.Decimal, error)
}
