package app

import (
	"context"

	"github.com/shopspring/decimal"

	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
)

// ETHGasPricer prices gas units in ETH. Satisfied by the blockchain
// context's gas oracle.
type ETHGasPricer interface {
	CostInETH(ctx context.Context, gasUnits uint64) (decimal.Decimal, error)
}

// GraphProvider yields the current graph snapshot. Satisfied by the
// market context's graph service.
type GraphProvider interface {
	Graph() *marketDomain.Graph
}

// GraphGasCoster converts ETH-denominated gas cost into any start token
// using the deepest WETH pool in the current graph snapshot. Break-even
// math then stays in a single denomination per path.
type GraphGasCoster struct {
	pricer ETHGasPricer
	graphs GraphProvider
	weth   asset.AssetID
}

// NewGraphGasCoster creates a gas coster over the market graph.
func NewGraphGasCoster(pricer ETHGasPricer, graphs GraphProvider, weth asset.AssetID) *GraphGasCoster {
	return &GraphGasCoster{pricer: pricer, graphs: graphs, weth: weth}
}

// CostInToken prices gasUnits in the given token.
func (g *GraphGasCoster) CostInToken(ctx context.Context, token asset.AssetID, gasUnits uint64) (decimal.Decimal, error) {
	costETH, err := g.pricer.CostInETH(ctx, gasUnits)
	if err != nil {
		return decimal.Zero, err
	}
	if token.Equals(g.weth) {
		return costETH, nil
	}

	pool := g.deepestConversionPool(token)
	if pool == nil {
		return decimal.Zero, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("no pool to convert gas cost into "+token.String()))
	}

	price, ok := pool.SpotPrice(g.weth)
	if !ok {
		return decimal.Zero, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("conversion pool has empty reserves"))
	}

	return costETH.Mul(price), nil
}

// deepestConversionPool picks the WETH/token pool with the largest
// shallow-side reserve in the current snapshot.
func (g *GraphGasCoster) deepestConversionPool(token asset.AssetID) *marketDomain.Pool {
	var best *marketDomain.Pool
	for _, p := range g.graphs.Graph().PoolsFor(g.weth) {
		if !p.Contains(token) {
			continue
		}
		if best == nil || p.MinReserve().GreaterThan(best.MinReserve()) {
			best = p
		}
	}
	return best
}
