// Package domain contains the core domain types for the market context:
// liquidity pools, the pool graph, and constant-product swap math.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/internal/asset"
)

// Venue identifies the exchange a pool belongs to.
type Venue string

const (
	VenueUniswapV2 Venue = "uniswap-v2"
	VenueUniswapV3 Venue = "uniswap-v3"
	VenueSushiswap Venue = "sushiswap"
	VenueBalancer  Venue = "balancer"
	VenueCEX       Venue = "cex" // synthetic pool built from an order-book snapshot
)

// Pool is a snapshot of one liquidity pool at a given refresh generation.
// Mutated only by the refresh job; read-only everywhere else.
// Concentrated-liquidity pools are normalized to virtual reserves by the
// fetcher, so downstream math is uniform.
type Pool struct {
	Address        common.Address
	Venue          Venue
	Token0         asset.AssetID
	Token1         asset.AssetID
	Reserve0       decimal.Decimal
	Reserve1       decimal.Decimal
	FeeBps         decimal.Decimal
	BlockTimestamp time.Time
	Generation     uint64
}

// Contains reports whether the pool trades the given token.
func (p *Pool) Contains(token asset.AssetID) bool {
	return p.Token0.Equals(token) || p.Token1.Equals(token)
}

// Other returns the counterpart token for the given token.
// Returns false if the token is not in the pool.
func (p *Pool) Other(token asset.AssetID) (asset.AssetID, bool) {
	switch {
	case p.Token0.Equals(token):
		return p.Token1, true
	case p.Token1.Equals(token):
		return p.Token0, true
	default:
		return asset.AssetID{}, false
	}
}

// Reserves returns (reserveIn, reserveOut) for a swap entering with tokenIn.
func (p *Pool) Reserves(tokenIn asset.AssetID) (reserveIn, reserveOut decimal.Decimal, ok bool) {
	switch {
	case p.Token0.Equals(tokenIn):
		return p.Reserve0, p.Reserve1, true
	case p.Token1.Equals(tokenIn):
		return p.Reserve1, p.Reserve0, true
	default:
		return decimal.Zero, decimal.Zero, false
	}
}

// AmountOut computes the swap output for amountIn of tokenIn using the
// pool's reserves and fee.
func (p *Pool) AmountOut(tokenIn asset.AssetID, amountIn decimal.Decimal) (decimal.Decimal, bool) {
	reserveIn, reserveOut, ok := p.Reserves(tokenIn)
	if !ok {
		return decimal.Zero, false
	}
	return SwapOut(amountIn, reserveIn, reserveOut, p.FeeBps), true
}

// SpotPrice returns the marginal price of tokenIn denominated in the other
// token, before fees and price impact.
func (p *Pool) SpotPrice(tokenIn asset.AssetID) (decimal.Decimal, bool) {
	reserveIn, reserveOut, ok := p.Reserves(tokenIn)
	if !ok || reserveIn.IsZero() {
		return decimal.Zero, false
	}
	return reserveOut.Div(reserveIn), true
}

// MinReserve returns the smaller of the two reserves, used by the
// minimum-liquidity filter.
func (p *Pool) MinReserve() decimal.Decimal {
	if p.Reserve0.LessThan(p.Reserve1) {
		return p.Reserve0
	}
	return p.Reserve1
}

// IsStale reports whether the pool snapshot is older than maxAge at now.
func (p *Pool) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.BlockTimestamp) > maxAge
}
