package domain

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/internal/asset"
)

// Cycle is a closed trading path: start token through len(Pools) hops back to
// the start token. Tokens has len(Pools)+1 entries, first == last.
type Cycle struct {
	Tokens []asset.AssetID
	Pools  []*Pool
}

// Hops returns the number of swaps in the cycle.
func (c *Cycle) Hops() int {
	return len(c.Pools)
}

// Start returns the cycle's entry token.
func (c *Cycle) Start() asset.AssetID {
	return c.Tokens[0]
}

// TotalFeeBps sums the fee of every pool on the path.
func (c *Cycle) TotalFeeBps() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.Pools {
		total = total.Add(p.FeeBps)
	}
	return total
}

// Key returns a canonical identity for deduplication: the pool addresses
// in traversal order, rotated so the smallest leads. Rotations of the same
// directed cycle collapse into one key; the two opposite traversal
// directions price differently and keep distinct keys.
func (c *Cycle) Key() string {
	addrs := make([]string, len(c.Pools))
	min := 0
	for i, p := range c.Pools {
		addrs[i] = strings.ToLower(p.Address.Hex())
		if addrs[i] < addrs[min] {
			min = i
		}
	}
	key := make([]string, 0, len(addrs))
	key = append(key, addrs[min:]...)
	key = append(key, addrs[:min]...)
	return strings.Join(key, "|")
}

// Simulate propagates amountIn hop by hop through the cycle's pools and
// returns the final output in the start token. Returns false if any hop
// cannot be priced.
func (c *Cycle) Simulate(amountIn decimal.Decimal) (decimal.Decimal, bool) {
	amount := amountIn
	for i, p := range c.Pools {
		out, ok := p.AmountOut(c.Tokens[i], amount)
		if !ok || !out.IsPositive() {
			return decimal.Zero, false
		}
		amount = out
	}
	return amount, true
}

// Generation returns the refresh generation of the cycle's pools, and false
// if the pools span more than one generation. Mixed-generation cycles must
// not be priced.
func (c *Cycle) Generation() (uint64, bool) {
	if len(c.Pools) == 0 {
		return 0, false
	}
	gen := c.Pools[0].Generation
	for _, p := range c.Pools[1:] {
		if p.Generation != gen {
			return 0, false
		}
	}
	return gen, true
}
