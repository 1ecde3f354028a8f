package app

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/arbitrage/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

// pairKey identifies an unordered token pair.
type pairKey struct {
	a, b asset.AssetID
}

func newPairKey(x, y asset.AssetID) pairKey {
	if x.String() < y.String() {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

type spatialMetrics struct {
	pairsExamined metric.Int64Counter
	emitted       metric.Int64Counter
}

// SpatialDetector finds 2-hop cross-venue opportunities: the same token
// pair priced differently on two venues. The trade's own price impact is
// simulated on both legs before the spread filter, so oversized trades that
// close their own spread are not emitted.
type SpatialDetector struct {
	config DetectorConfig
	gas    GasCoster
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *spatialMetrics
}

// NewSpatialDetector creates a spatial detector.
func NewSpatialDetector(cfg DetectorConfig, gas GasCoster, log logger.LoggerInterface) (*SpatialDetector, error) {
	d := &SpatialDetector{
		config: cfg,
		gas:    gas,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *SpatialDetector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &spatialMetrics{}

	d.metrics.pairsExamined, err = meter.Int64Counter(
		"arb_spatial_pairs_examined_total",
		metric.WithDescription("Token pairs examined for cross-venue spreads"),
	)
	if err != nil {
		return err
	}

	d.metrics.emitted, err = meter.Int64Counter(
		"arb_spatial_opportunities_total",
		metric.WithDescription("Cross-venue opportunities emitted"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Detect runs one spatial pass: group pools by token pair, and for every
// pair on two or more venues simulate buy-cheap/sell-dear per trade size.
func (d *SpatialDetector) Detect(ctx context.Context, graph *marketDomain.Graph) []*domain.Opportunity {
	ctx, span := d.tracer.Start(ctx, "arb.detect.spatial",
		trace.WithAttributes(attribute.Int64("generation", int64(graph.Generation()))),
	)
	defer span.End()

	byPair := make(map[pairKey][]*marketDomain.Pool)
	for _, p := range graph.Pools() {
		key := newPairKey(p.Token0, p.Token1)
		byPair[key] = append(byPair[key], p)
	}

	var out []*domain.Opportunity
	for _, pools := range byPair {
		if len(pools) < 2 {
			continue
		}
		d.metrics.pairsExamined.Add(ctx, 1)

		for i := 0; i < len(pools); i++ {
			for j := 0; j < len(pools); j++ {
				if i == j || pools[i].Venue == pools[j].Venue {
					continue
				}
				if opp := d.evaluateLeg(ctx, pools[i], pools[j], graph.Generation()); opp != nil {
					out = append(out, opp)
				}
			}
		}
	}

	rankOpportunities(out)
	d.metrics.emitted.Add(ctx, int64(len(out)))
	span.SetAttributes(attribute.Int("emitted", len(out)))
	return out
}

// evaluateLeg simulates borrowing each side of the pair in turn, buying the
// counter token on buyPool and selling it back on sellPool, for every
// configured trade size. The best net result wins.
func (d *SpatialDetector) evaluateLeg(ctx context.Context, buyPool, sellPool *marketDomain.Pool, generation uint64) *domain.Opportunity {
	if buyPool.Generation != sellPool.Generation {
		return nil
	}

	var best *domain.Opportunity
	for _, start := range []asset.AssetID{buyPool.Token0, buyPool.Token1} {
		if opp := d.evaluateDirection(ctx, buyPool, sellPool, start, generation); opp != nil {
			if best == nil || opp.GrossProfit.GreaterThan(best.GrossProfit) {
				best = opp
			}
		}
	}
	return best
}

func (d *SpatialDetector) evaluateDirection(ctx context.Context, buyPool, sellPool *marketDomain.Pool, start asset.AssetID, generation uint64) *domain.Opportunity {
	counter, ok := buyPool.Other(start)
	if !ok || !sellPool.Contains(start) || !sellPool.Contains(counter) {
		return nil
	}

	gasUnits := d.config.GasBase + d.config.GasFlashExtra + d.config.GasPerSwap*2
	gasCost, err := d.gas.CostInToken(ctx, start, gasUnits)
	if err != nil {
		return nil
	}

	var best *domain.Opportunity
	for _, size := range d.config.TradeSizes {
		bought, ok := buyPool.AmountOut(start, size)
		if !ok || !bought.IsPositive() {
			continue
		}
		proceeds, ok := sellPool.AmountOut(counter, bought)
		if !ok || !proceeds.IsPositive() {
			continue
		}

		flashFee := size.Mul(d.config.FlashFeeBps).Div(decimal.NewFromInt(10000))
		breakEven := size.Add(flashFee).Add(gasCost)
		if proceeds.LessThanOrEqual(breakEven) {
			continue
		}

		profit := proceeds.Sub(breakEven)
		profitBps := profit.Div(size).Mul(decimal.NewFromInt(10000))
		if profitBps.LessThan(d.config.MinProfitBps) {
			continue
		}

		if best == nil || profit.GreaterThan(best.GrossProfit) {
			steps := []domain.SwapStep{
				{
					PoolAddress: buyPool.Address.Hex(),
					Venue:       buyPool.Venue,
					TokenIn:     start,
					TokenOut:    counter,
					AmountIn:    size,
					ExpectedOut: bought,
					FeeBps:      buyPool.FeeBps,
				},
				{
					PoolAddress: sellPool.Address.Hex(),
					Venue:       sellPool.Venue,
					TokenIn:     counter,
					TokenOut:    start,
					AmountIn:    bought,
					ExpectedOut: proceeds,
					FeeBps:      sellPool.FeeBps,
				},
			}
			opp := domain.NewOpportunity(domain.TypeSpatial, domain.ActionCrossVenueSwap, steps, start, size, generation)
			opp.GrossProfit = profit
			opp.ProfitBps = profitBps
			opp.GasEstimate = gasUnits
			best = opp
		}
	}
	return best
}
