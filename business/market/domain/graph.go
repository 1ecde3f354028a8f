package domain

import (
	"time"

	"github.com/fd1az/flasharb/internal/asset"
)

// Graph is an immutable snapshot of the pool graph for one refresh
// generation. It is rebuilt wholesale each refresh and swapped atomically;
// readers never see a half-built graph. The pair index gives O(1) neighbor
// lookup by token instead of scanning all pools.
type Graph struct {
	pools      []*Pool
	pairIndex  map[asset.AssetID][]*Pool
	generation uint64
	builtAt    time.Time
}

// NewGraph builds a graph from the given pools. Callers are expected to have
// filtered stale and illiquid pools already; NewGraph only indexes.
func NewGraph(pools []*Pool, generation uint64) *Graph {
	index := make(map[asset.AssetID][]*Pool)
	for _, p := range pools {
		index[p.Token0] = append(index[p.Token0], p)
		index[p.Token1] = append(index[p.Token1], p)
	}
	return &Graph{
		pools:      pools,
		pairIndex:  index,
		generation: generation,
		builtAt:    time.Now(),
	}
}

// Generation returns the refresh generation this graph was built from.
func (g *Graph) Generation() uint64 {
	return g.generation
}

// BuiltAt returns when the graph was constructed.
func (g *Graph) BuiltAt() time.Time {
	return g.builtAt
}

// Pools returns all pools in the graph.
func (g *Graph) Pools() []*Pool {
	return g.pools
}

// PoolCount returns the number of pools.
func (g *Graph) PoolCount() int {
	return len(g.pools)
}

// TokenCount returns the number of distinct tokens.
func (g *Graph) TokenCount() int {
	return len(g.pairIndex)
}

// PoolsFor returns the pools that trade the given token.
func (g *Graph) PoolsFor(token asset.AssetID) []*Pool {
	return g.pairIndex[token]
}

// Tokens returns the distinct tokens present in the graph.
func (g *Graph) Tokens() []asset.AssetID {
	tokens := make([]asset.AssetID, 0, len(g.pairIndex))
	for t := range g.pairIndex {
		tokens = append(tokens, t)
	}
	return tokens
}

// FindCycles performs a bounded-depth DFS from start and returns every cycle
// of length <= maxHops that returns to start. Duplicate traversals of the
// same directed cycle are collapsed; the two opposite directions around a
// pool set are distinct cycles and both are returned, since at most one of
// them can be profitable.
func (g *Graph) FindCycles(start asset.AssetID, maxHops int) []*Cycle {
	if maxHops < 2 {
		return nil
	}

	var (
		cycles []*Cycle
		seen   = make(map[string]struct{})
	)

	var walk func(current asset.AssetID, tokens []asset.AssetID, pools []*Pool)
	walk = func(current asset.AssetID, tokens []asset.AssetID, pools []*Pool) {
		for _, p := range g.pairIndex[current] {
			if containsPool(pools, p) {
				continue
			}
			next, ok := p.Other(current)
			if !ok {
				continue
			}

			if next.Equals(start) {
				if len(pools)+1 < 2 {
					continue
				}
				c := &Cycle{
					Tokens: append(append([]asset.AssetID{}, tokens...), next),
					Pools:  append(append([]*Pool{}, pools...), p),
				}
				if _, dup := seen[c.Key()]; dup {
					continue
				}
				seen[c.Key()] = struct{}{}
				cycles = append(cycles, c)
				continue
			}

			if len(pools)+1 >= maxHops {
				continue
			}
			if containsToken(tokens[1:], next) {
				continue // no revisiting intermediate tokens
			}
			walk(next, append(tokens, next), append(pools, p))
		}
	}

	walk(start, []asset.AssetID{start}, nil)
	return cycles
}

// FindTriangles is the depth-3 specialization of FindCycles.
func (g *Graph) FindTriangles(start asset.AssetID) []*Cycle {
	all := g.FindCycles(start, 3)
	triangles := all[:0]
	for _, c := range all {
		if c.Hops() == 3 {
			triangles = append(triangles, c)
		}
	}
	return triangles
}

func containsPool(pools []*Pool, p *Pool) bool {
	for _, q := range pools {
		if q.Address == p.Address {
			return true
		}
	}
	return false
}

func containsToken(tokens []asset.AssetID, t asset.AssetID) bool {
	for _, u := range tokens {
		if u.Equals(t) {
			return true
		}
	}
	return false
}
