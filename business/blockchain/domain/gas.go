package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// GasPrice is a point-in-time gas price quote.
type GasPrice struct {
	Wei       *big.Int
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	return &GasPrice{Wei: wei, Timestamp: time.Now()}
}

// Gwei returns the price in gwei.
func (p *GasPrice) Gwei() float64 {
	f := new(big.Float).SetInt(p.Wei)
	f.Quo(f, big.NewFloat(1e9))
	v, _ := f.Float64()
	return v
}

// CostWei returns the total cost in wei of spending gasUnits at this price.
func (p *GasPrice) CostWei(gasUnits uint64) *big.Int {
	return new(big.Int).Mul(p.Wei, new(big.Int).SetUint64(gasUnits))
}

// CostETH returns the total cost in ETH of spending gasUnits at this price.
func (p *GasPrice) CostETH(gasUnits uint64) decimal.Decimal {
	return decimal.NewFromBigInt(p.CostWei(gasUnits), -18)
}
