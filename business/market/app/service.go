package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/market/app"
	meterName  = "github.com/fd1az/flasharb/business/market/app"
)

// GraphConfig holds graph construction settings.
type GraphConfig struct {
	RefreshInterval time.Duration
	StaleAfter      time.Duration
	MinLiquidity    decimal.Decimal
}

// graphMetrics holds OTEL metric instruments.
type graphMetrics struct {
	refreshes       metric.Int64Counter
	refreshErrors   metric.Int64Counter
	refreshDuration metric.Float64Histogram
	poolsIndexed    metric.Int64Gauge
	poolsDropped    metric.Int64Counter
}

// GraphService owns the pool graph: it rebuilds it wholesale on each refresh
// and swaps it atomically, so detector reads never see a half-built graph.
// Single writer (the refresh loop), many readers.
type GraphService struct {
	config   GraphConfig
	fetchers []PoolStateFetcher
	logger   logger.LoggerInterface

	graph      atomic.Pointer[domain.Graph]
	generation atomic.Uint64

	tracer  trace.Tracer
	metrics *graphMetrics
}

// NewGraphService creates a graph service over the given fetchers.
func NewGraphService(cfg GraphConfig, fetchers []PoolStateFetcher, log logger.LoggerInterface) (*GraphService, error) {
	s := &GraphService{
		config:   cfg,
		fetchers: fetchers,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	// Start with an empty graph so readers never see nil.
	s.graph.Store(domain.NewGraph(nil, 0))

	return s, nil
}

func (s *GraphService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &graphMetrics{}

	s.metrics.refreshes, err = meter.Int64Counter(
		"market_graph_refreshes_total",
		metric.WithDescription("Total graph refresh cycles"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return err
	}

	s.metrics.refreshErrors, err = meter.Int64Counter(
		"market_graph_refresh_errors_total",
		metric.WithDescription("Fetcher errors during graph refresh"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.refreshDuration, err = meter.Float64Histogram(
		"market_graph_refresh_duration_ms",
		metric.WithDescription("Graph refresh duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.poolsIndexed, err = meter.Int64Gauge(
		"market_graph_pools",
		metric.WithDescription("Pools in the current graph"),
		metric.WithUnit("{pool}"),
	)
	if err != nil {
		return err
	}

	s.metrics.poolsDropped, err = meter.Int64Counter(
		"market_graph_pools_dropped_total",
		metric.WithDescription("Pools dropped by staleness or liquidity filters"),
		metric.WithUnit("{pool}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Graph returns the current graph snapshot.
func (s *GraphService) Graph() *domain.Graph {
	return s.graph.Load()
}

// Generation returns the current refresh generation.
func (s *GraphService) Generation() uint64 {
	return s.generation.Load()
}

// Refresh rebuilds the graph from a full fetch across all fetchers. Fetcher
// errors are absorbed: a partial graph is acceptable, an empty graph simply
// yields zero opportunities.
func (s *GraphService) Refresh(ctx context.Context) (*domain.Graph, error) {
	gen := s.generation.Add(1)

	ctx, span := s.tracer.Start(ctx, "market.graph.refresh",
		trace.WithAttributes(attribute.Int64("generation", int64(gen))),
	)
	defer span.End()

	start := time.Now()
	var pools []*domain.Pool

	for _, f := range s.fetchers {
		fetched, err := f.FetchPools(ctx, gen)
		if err != nil {
			s.metrics.refreshErrors.Add(ctx, 1)
			s.logger.Warn(ctx, "pool fetch failed, venue omitted from graph",
				"venue", string(f.Venue()), "error", err)
			span.AddEvent("venue_fetch_failed",
				trace.WithAttributes(attribute.String("venue", string(f.Venue()))))
			continue
		}
		pools = append(pools, fetched...)
	}

	kept, dropped := s.filterPools(pools)

	graph := domain.NewGraph(kept, gen)
	s.graph.Store(graph)

	elapsed := time.Since(start)
	s.metrics.refreshes.Add(ctx, 1)
	s.metrics.refreshDuration.Record(ctx, float64(elapsed.Milliseconds()))
	s.metrics.poolsIndexed.Record(ctx, int64(graph.PoolCount()))
	s.metrics.poolsDropped.Add(ctx, int64(dropped))

	s.logger.Debug(ctx, "graph refreshed",
		"generation", gen,
		"pools", graph.PoolCount(),
		"tokens", graph.TokenCount(),
		"dropped", dropped,
		"elapsed_ms", elapsed.Milliseconds())

	span.SetStatus(codes.Ok, "refreshed")
	return graph, nil
}

// filterPools drops stale and illiquid pools.
func (s *GraphService) filterPools(pools []*domain.Pool) (kept []*domain.Pool, dropped int) {
	now := time.Now()
	for _, p := range pools {
		if s.config.StaleAfter > 0 && p.IsStale(now, s.config.StaleAfter) {
			dropped++
			continue
		}
		if p.MinReserve().LessThan(s.config.MinLiquidity) {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}

// FindCycles searches the current graph for cycles from start.
func (s *GraphService) FindCycles(start asset.AssetID, maxHops int) []*domain.Cycle {
	return s.graph.Load().FindCycles(start, maxHops)
}

// FindTriangles searches the current graph for 3-hop cycles from start.
func (s *GraphService) FindTriangles(start asset.AssetID) []*domain.Cycle {
	return s.graph.Load().FindTriangles(start)
}

// Run refreshes the graph on a fixed ticker until the context is cancelled.
// The refresh cadence is independent of execution concurrency.
func (s *GraphService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "graph refresh loop started", "interval", s.config.RefreshInterval)

	// Initial refresh so detectors do not wait a full interval.
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Error(ctx, "initial graph refresh failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "graph refresh loop stopped")
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Error(ctx, "graph refresh failed", "error", err)
			}
		}
	}
}
