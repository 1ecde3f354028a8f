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

	"github.com/fd1az/flasharb/business/funding/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/funding/app"
	meterName  = "github.com/fd1az/flasharb/business/funding/app"
)

// SelectorConfig holds source selection tuning.
type SelectorConfig struct {
	HybridThreshold  decimal.Decimal // notional above which a split is considered
	LiquidityTimeout time.Duration
}

type selectorMetrics struct {
	selections metric.Int64Counter
	hybrids    metric.Int64Counter
	unfunded   metric.Int64Counter
}

// Selector picks the cheapest funding for a borrow: zero-fee sources
// first, fee-bearing universal sources as fallback, and a two-leg hybrid
// split for large notionals when that minimizes the total fee.
type Selector struct {
	config    SelectorConfig
	sources   []*domain.Source
	liquidity LiquidityReader
	logger    logger.LoggerInterface

	tracer  trace.Tracer
	metrics *selectorMetrics
}

// NewSelector creates a source selector. Sources are kept sorted free
// first, then by fee, then by priority.
func NewSelector(cfg SelectorConfig, sources []*domain.Source, liquidity LiquidityReader, log logger.LoggerInterface) (*Selector, error) {
	ordered := append([]*domain.Source(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].FeeBps.Equal(ordered[j].FeeBps) {
			return ordered[i].FeeBps.LessThan(ordered[j].FeeBps)
		}
		return ordered[i].Priority < ordered[j].Priority
	})

	s := &Selector{
		config:    cfg,
		sources:   ordered,
		liquidity: liquidity,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Selector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &selectorMetrics{}

	s.metrics.selections, err = meter.Int64Counter(
		"funding_selections_total",
		metric.WithDescription("Funding plans produced"),
	)
	if err != nil {
		return err
	}

	s.metrics.hybrids, err = meter.Int64Counter(
		"funding_hybrid_plans_total",
		metric.WithDescription("Hybrid two-leg plans produced"),
	)
	if err != nil {
		return err
	}

	s.metrics.unfunded, err = meter.Int64Counter(
		"funding_unavailable_total",
		metric.WithDescription("Borrows no source could fund"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Select picks funding for the borrow. Liquidity reads are bounded by the
// configured timeout; a failed read counts as zero liquidity.
func (s *Selector) Select(ctx context.Context, symbol string, amount decimal.Decimal, chainID uint64) (*domain.Plan, error) {
	ctx, span := s.tracer.Start(ctx, "funding.select",
		trace.WithAttributes(
			attribute.String("asset", symbol),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("borrow amount must be positive"))
	}

	var candidates []candidate
	for _, src := range s.sources {
		if !src.Supports(symbol, chainID) {
			continue
		}
		candidates = append(candidates, candidate{src, s.available(ctx, src, symbol)})
	}

	// Cheapest single source that covers the full amount. The slice is
	// ordered by fee, so the first hit is the best.
	var single *domain.Plan
	for _, c := range candidates {
		if c.available.GreaterThanOrEqual(amount) {
			single = &domain.Plan{
				Asset:  symbol,
				Amount: amount,
				Legs:   []domain.Leg{{Source: c.source.Name, Amount: amount, Fee: c.source.Fee(amount)}},
			}
			break
		}
	}

	// A free single source cannot be beaten.
	if single != nil && single.TotalFee().IsZero() {
		s.emit(ctx, span, single)
		return single, nil
	}

	// Hybrid split: free liquidity first, cheapest fee-bearing remainder.
	// Considered for large notionals, or when no single source covers.
	if single == nil || amount.GreaterThan(s.config.HybridThreshold) {
		if hybrid := s.hybridPlan(symbol, amount, candidates); hybrid != nil {
			if single == nil || hybrid.TotalFee().LessThan(single.TotalFee()) {
				s.emit(ctx, span, hybrid)
				return hybrid, nil
			}
		}
	}

	if single != nil {
		s.emit(ctx, span, single)
		return single, nil
	}

	s.metrics.unfunded.Add(ctx, 1)
	span.AddEvent("no_source")
	return nil, apperror.New(apperror.CodeFundingUnavailable,
		apperror.WithContext("no source can fund "+amount.String()+" "+symbol))
}

// candidate pairs a supporting source with its current liquidity.
type candidate struct {
	source    *domain.Source
	available decimal.Decimal
}

// hybridPlan builds a two-leg split if a free source can carry part of
// the amount and a fee-bearing source covers the rest.
func (s *Selector) hybridPlan(symbol string, amount decimal.Decimal, candidates []candidate) *domain.Plan {
	var free *candidate
	for i := range candidates {
		c := &candidates[i]
		if !c.source.IsFree() || !c.available.IsPositive() {
			continue
		}
		if free == nil || c.available.GreaterThan(free.available) {
			free = c
		}
	}
	if free == nil || free.available.GreaterThanOrEqual(amount) {
		return nil // nothing to split, or the free source alone suffices
	}

	remainder := amount.Sub(free.available)
	for _, c := range candidates {
		if c.source.IsFree() || c.available.LessThan(remainder) {
			continue
		}
		return &domain.Plan{
			Asset:  symbol,
			Amount: amount,
			Hybrid: true,
			Legs: []domain.Leg{
				{Source: free.source.Name, Amount: free.available, Fee: decimal.Zero},
				{Source: c.source.Name, Amount: remainder, Fee: c.source.Fee(remainder)},
			},
		}
	}
	return nil
}

func (s *Selector) available(ctx context.Context, src *domain.Source, symbol string) decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, s.config.LiquidityTimeout)
	defer cancel()

	available, err := s.liquidity.Available(ctx, src, symbol)
	if err != nil {
		s.logger.Warn(ctx, "liquidity read failed, treating as empty",
			"source", src.Name, "asset", symbol, "error", err)
		return decimal.Zero
	}
	return available
}

func (s *Selector) emit(ctx context.Context, span trace.Span, plan *domain.Plan) {
	s.metrics.selections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", plan.PrimarySource())))
	if plan.Hybrid {
		s.metrics.hybrids.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.String("source", plan.PrimarySource()),
		attribute.Bool("hybrid", plan.Hybrid),
		attribute.String("fee", plan.TotalFee().String()),
	)
}
