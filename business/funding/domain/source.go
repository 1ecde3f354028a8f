// Package domain contains the core domain types for the funding context.
package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Source is one flash-loan provider: its fee, vault, and the assets and
// chains it serves.
type Source struct {
	Name     string
	FeeBps   decimal.Decimal
	Vault    common.Address
	Assets   map[string]bool // borrowable asset symbols; empty = universal
	ChainIDs map[uint64]bool
	Priority int // lower is preferred among equal fees
}

// Supports reports whether the source can lend the asset on the chain.
func (s *Source) Supports(symbol string, chainID uint64) bool {
	if !s.ChainIDs[chainID] {
		return false
	}
	if len(s.Assets) == 0 {
		return true
	}
	return s.Assets[symbol]
}

// IsFree reports whether the source lends without a fee.
func (s *Source) IsFree() bool {
	return s.FeeBps.IsZero()
}

// Fee returns the flash fee for borrowing the given amount.
func (s *Source) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.FeeBps).Div(decimal.NewFromInt(10000))
}

// Leg is one borrow from one source.
type Leg struct {
	Source string
	Amount decimal.Decimal
	Fee    decimal.Decimal
}

// Plan is a funding decision: one leg, or two for a hybrid split when a
// single source cannot cover the notional cheaply.
type Plan struct {
	Asset  string
	Amount decimal.Decimal
	Legs   []Leg
	Hybrid bool
}

// TotalFee sums the fee across legs.
func (p *Plan) TotalFee() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Legs {
		total = total.Add(l.Fee)
	}
	return total
}

// PrimarySource returns the first leg's source name.
func (p *Plan) PrimarySource() string {
	if len(p.Legs) == 0 {
		return ""
	}
	return p.Legs[0].Source
}
