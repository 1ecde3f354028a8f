package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/internal/asset"
)

var (
	tokenA = asset.NewTokenAssetID(1, common.HexToAddress("0x00000000000000000000000000000000000000Aa"))
	tokenB = asset.NewTokenAssetID(1, common.HexToAddress("0x00000000000000000000000000000000000000Bb"))
	tokenC = asset.NewTokenAssetID(1, common.HexToAddress("0x00000000000000000000000000000000000000Cc"))
	tokenD = asset.NewTokenAssetID(1, common.HexToAddress("0x00000000000000000000000000000000000000Dd"))
)

func testPool(addr string, t0, t1 asset.AssetID, r0, r1 string) *Pool {
	return &Pool{
		Address:        common.HexToAddress(addr),
		Venue:          VenueUniswapV2,
		Token0:         t0,
		Token1:         t1,
		Reserve0:       decimal.RequireFromString(r0),
		Reserve1:       decimal.RequireFromString(r1),
		FeeBps:         decimal.NewFromInt(30),
		BlockTimestamp: time.Now(),
		Generation:     1,
	}
}

// triangleGraph lists the C/A pool first: pool insertion order decides DFS
// traversal order, and cycle search must not depend on it.
func triangleGraph() *Graph {
	pools := []*Pool{
		testPool("0x03", tokenC, tokenA, "1000", "900"),
		testPool("0x01", tokenA, tokenB, "1000", "2000"),
		testPool("0x02", tokenB, tokenC, "1000", "1000"),
	}
	return NewGraph(pools, 1)
}

func TestFindCyclesTriangle(t *testing.T) {
	g := triangleGraph()

	// One pool set, two traversal directions, two cycles.
	cycles := g.FindCycles(tokenA, 3)
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}
	if cycles[0].Key() == cycles[1].Key() {
		t.Errorf("opposite directions share key %s", cycles[0].Key())
	}

	for _, c := range cycles {
		if c.Hops() != 3 {
			t.Errorf("expected 3 hops, got %d", c.Hops())
		}
		if !c.Start().Equals(tokenA) {
			t.Errorf("cycle does not start at A: %s", c.Start())
		}
		if !c.Tokens[len(c.Tokens)-1].Equals(tokenA) {
			t.Errorf("cycle does not close at A")
		}
	}
}

func TestFindCyclesKeepsBothDirections(t *testing.T) {
	// Around this triangle only A->B->C->A wins; the reverse direction
	// loses. Both must survive deduplication regardless of which one the
	// DFS reaches first, or the winner can be silently discarded.
	g := triangleGraph()
	cycles := g.FindCycles(tokenA, 3)
	if len(cycles) != 2 {
		t.Fatalf("expected both directions, got %d cycles", len(cycles))
	}

	in := decimal.NewFromInt(10)
	var profitable, losing int
	for _, c := range cycles {
		out, ok := c.Simulate(in)
		if !ok {
			t.Fatal("simulation failed")
		}
		if out.GreaterThan(in) {
			profitable++
			if !c.Tokens[1].Equals(tokenB) {
				t.Errorf("profitable direction goes through %s first, want B", c.Tokens[1])
			}
		} else {
			losing++
		}
	}
	if profitable != 1 || losing != 1 {
		t.Errorf("profitable = %d, losing = %d, want 1 and 1", profitable, losing)
	}
}

func TestFindCyclesTokenContinuity(t *testing.T) {
	pools := []*Pool{
		testPool("0x01", tokenA, tokenB, "1000", "1000"),
		testPool("0x02", tokenB, tokenC, "1000", "1000"),
		testPool("0x03", tokenC, tokenD, "1000", "1000"),
		testPool("0x04", tokenD, tokenA, "1000", "1000"),
		testPool("0x05", tokenA, tokenC, "1000", "1000"),
	}
	g := NewGraph(pools, 1)

	for _, maxHops := range []int{3, 4, 5} {
		cycles := g.FindCycles(tokenA, maxHops)
		seen := make(map[string]bool)
		for _, c := range cycles {
			if c.Hops() > maxHops {
				t.Errorf("cycle of %d hops exceeds maxHops %d", c.Hops(), maxHops)
			}
			if seen[c.Key()] {
				t.Errorf("duplicate cycle %s", c.Key())
			}
			seen[c.Key()] = true

			// Consecutive steps must share a token.
			for i, p := range c.Pools {
				if !p.Contains(c.Tokens[i]) || !p.Contains(c.Tokens[i+1]) {
					t.Errorf("hop %d breaks token continuity", i)
				}
			}
		}
	}
}

func TestFindCyclesEmptyGraph(t *testing.T) {
	g := NewGraph(nil, 1)
	if cycles := g.FindCycles(tokenA, 4); len(cycles) != 0 {
		t.Errorf("empty graph produced %d cycles", len(cycles))
	}
}

func TestFindTriangles(t *testing.T) {
	pools := []*Pool{
		testPool("0x01", tokenA, tokenB, "1000", "1000"),
		testPool("0x02", tokenB, tokenC, "1000", "1000"),
		testPool("0x03", tokenC, tokenA, "1000", "1000"),
		testPool("0x04", tokenA, tokenC, "1000", "1000"), // 2-hop cycle A-C-A
	}
	g := NewGraph(pools, 1)

	for _, c := range g.FindTriangles(tokenA) {
		if c.Hops() != 3 {
			t.Errorf("triangle search returned %d-hop cycle", c.Hops())
		}
	}
}

func TestCycleSimulateReferencePath(t *testing.T) {
	// A/B (1000,2000), B/C (1000,1000), C/A (1000,900), 30 bps each,
	// 10 A in: each hop priced by the constant-product formula.
	g := triangleGraph()
	cycles := g.FindCycles(tokenA, 3)
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}

	best := decimal.Zero
	for _, c := range cycles {
		out, ok := c.Simulate(decimal.NewFromInt(10))
		if !ok {
			t.Fatal("simulation failed")
		}
		if out.GreaterThan(best) {
			best = out
		}
	}

	want := decimal.RequireFromString("16.994")
	if best.Sub(want).Abs().GreaterThan(decimal.RequireFromString("0.01")) {
		t.Errorf("best simulated output = %s, want ≈ %s", best, want)
	}
	if !best.GreaterThan(decimal.NewFromInt(10)) {
		t.Errorf("reference path should be profitable before gas, got %s", best)
	}
}

func TestCycleGeneration(t *testing.T) {
	g := triangleGraph()
	c := g.FindCycles(tokenA, 3)[0]

	gen, ok := c.Generation()
	if !ok || gen != 1 {
		t.Fatalf("Generation() = %d, %v", gen, ok)
	}

	// Mixing generations must be detected.
	c.Pools[1] = &Pool{
		Address:    c.Pools[1].Address,
		Token0:     c.Pools[1].Token0,
		Token1:     c.Pools[1].Token1,
		Reserve0:   c.Pools[1].Reserve0,
		Reserve1:   c.Pools[1].Reserve1,
		FeeBps:     c.Pools[1].FeeBps,
		Generation: 2,
	}
	if _, ok := c.Generation(); ok {
		t.Error("mixed-generation cycle not detected")
	}
}
