package app

import (
	"context"
	"sort"
	"time"

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

const (
	tracerName = "github.com/fd1az/flasharb/business/arbitrage/app"
	meterName  = "github.com/fd1az/flasharb/business/arbitrage/app"
)

// DetectorConfig holds detection thresholds shared by both detectors.
type DetectorConfig struct {
	MinProfitBps  decimal.Decimal
	MaxHops       int
	TradeSizes    []decimal.Decimal
	StartTokens   []asset.AssetID
	FlashFeeBps   decimal.Decimal
	GasBase       uint64
	GasFlashExtra uint64
	GasPerSwap    uint64
}

// cycleGasUnits is the per-path gas model: fixed overhead plus flash-loan
// overhead plus a per-swap cost.
func (c DetectorConfig) cycleGasUnits(hops int) uint64 {
	return c.GasBase + c.GasFlashExtra + c.GasPerSwap*uint64(hops)
}

type detectorMetrics struct {
	cyclesExamined   metric.Int64Counter
	emitted          metric.Int64Counter
	belowBreakEven   metric.Int64Counter
	detectionLatency metric.Float64Histogram
}

// CycleDetector finds profitable N-hop cycles. It is a pure function of the
// graph snapshot: it emits Identified opportunities and has no other side
// effects.
type CycleDetector struct {
	config DetectorConfig
	gas    GasCoster
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewCycleDetector creates a cycle detector.
func NewCycleDetector(cfg DetectorConfig, gas GasCoster, log logger.LoggerInterface) (*CycleDetector, error) {
	d := &CycleDetector{
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

func (d *CycleDetector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.cyclesExamined, err = meter.Int64Counter(
		"arb_cycles_examined_total",
		metric.WithDescription("Cycles examined by the detector"),
	)
	if err != nil {
		return err
	}

	d.metrics.emitted, err = meter.Int64Counter(
		"arb_opportunities_emitted_total",
		metric.WithDescription("Opportunities emitted"),
	)
	if err != nil {
		return err
	}

	d.metrics.belowBreakEven, err = meter.Int64Counter(
		"arb_cycles_below_break_even_total",
		metric.WithDescription("Cycles discarded below break-even"),
	)
	if err != nil {
		return err
	}

	d.metrics.detectionLatency, err = meter.Float64Histogram(
		"arb_detection_latency_ms",
		metric.WithDescription("Detection pass latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Detect runs one detection pass over the graph snapshot. For every start
// token it searches cycles, simulates amount propagation per configured
// trade size, keeps the best size per cycle, and emits every cycle whose
// simulated output clears input + flash fee + gas.
func (d *CycleDetector) Detect(ctx context.Context, graph *marketDomain.Graph) []*domain.Opportunity {
	ctx, span := d.tracer.Start(ctx, "arb.detect.cycles",
		trace.WithAttributes(attribute.Int64("generation", int64(graph.Generation()))),
	)
	defer span.End()

	start := time.Now()
	var out []*domain.Opportunity

	for _, token := range d.config.StartTokens {
		for _, cycle := range graph.FindCycles(token, d.config.MaxHops) {
			d.metrics.cyclesExamined.Add(ctx, 1)
			if opp := d.evaluateCycle(ctx, cycle); opp != nil {
				out = append(out, opp)
			}
		}
	}

	rankOpportunities(out)

	d.metrics.emitted.Add(ctx, int64(len(out)))
	d.metrics.detectionLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.Int("emitted", len(out)))

	if len(out) > 0 {
		d.logger.Debug(ctx, "cycle detection pass",
			"generation", graph.Generation(), "emitted", len(out))
	}

	return out
}

// evaluateCycle tries each trade size and returns the best profitable
// opportunity for the cycle, or nil.
func (d *CycleDetector) evaluateCycle(ctx context.Context, cycle *marketDomain.Cycle) *domain.Opportunity {
	gen, ok := cycle.Generation()
	if !ok {
		return nil // never price across mixed refresh generations
	}

	gasUnits := d.config.cycleGasUnits(cycle.Hops())
	gasCost, err := d.gas.CostInToken(ctx, cycle.Start(), gasUnits)
	if err != nil {
		d.logger.Debug(ctx, "gas conversion unavailable, cycle skipped", "error", err)
		return nil
	}

	var best *domain.Opportunity
	for _, size := range d.config.TradeSizes {
		output, ok := cycle.Simulate(size)
		if !ok {
			continue
		}

		flashFee := size.Mul(d.config.FlashFeeBps).Div(decimal.NewFromInt(10000))
		breakEven := size.Add(flashFee).Add(gasCost)
		if output.LessThanOrEqual(breakEven) {
			d.metrics.belowBreakEven.Add(ctx, 1)
			continue
		}

		profit := output.Sub(breakEven)
		profitBps := profit.Div(size).Mul(decimal.NewFromInt(10000))
		if profitBps.LessThan(d.config.MinProfitBps) {
			continue
		}

		if best == nil || profit.GreaterThan(best.GrossProfit) {
			best = d.buildOpportunity(cycle, size, profit, profitBps, gasUnits, gen)
		}
	}
	return best
}

func (d *CycleDetector) buildOpportunity(cycle *marketDomain.Cycle, size, profit, profitBps decimal.Decimal, gasUnits uint64, generation uint64) *domain.Opportunity {
	steps := make([]domain.SwapStep, 0, cycle.Hops())
	amount := size
	for i, pool := range cycle.Pools {
		out, _ := pool.AmountOut(cycle.Tokens[i], amount)
		steps = append(steps, domain.SwapStep{
			PoolAddress: pool.Address.Hex(),
			Venue:       pool.Venue,
			TokenIn:     cycle.Tokens[i],
			TokenOut:    cycle.Tokens[i+1],
			AmountIn:    amount,
			ExpectedOut: out,
			FeeBps:      pool.FeeBps,
		})
		amount = out
	}

	typ := domain.TypeMultiHop
	if cycle.Hops() == 3 {
		typ = domain.TypeTriangular
	}

	opp := domain.NewOpportunity(typ, domain.ActionCycleSwap, steps, cycle.Start(), size, generation)
	opp.GrossProfit = profit
	opp.ProfitBps = profitBps
	opp.GasEstimate = gasUnits
	return opp
}

// rankOpportunities orders by profit descending, then lower total fee, then
// fewer hops.
func rankOpportunities(opps []*domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if !opps[i].GrossProfit.Equal(opps[j].GrossProfit) {
			return opps[i].GrossProfit.GreaterThan(opps[j].GrossProfit)
		}
		feeI, feeJ := opps[i].TotalFeeBps(), opps[j].TotalFeeBps()
		if !feeI.Equal(feeJ) {
			return feeI.LessThan(feeJ)
		}
		return opps[i].Hops() < opps[j].Hops()
	})
}
