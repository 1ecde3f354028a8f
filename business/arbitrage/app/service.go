package app

import (
	"context"
	"sync/atomic"
	"time"

	marketApp "github.com/fd1az/flasharb/business/market/app"
	"github.com/fd1az/flasharb/business/arbitrage/domain"
	"github.com/fd1az/flasharb/internal/logger"
)

// DetectionService runs both detectors against each new graph generation
// and publishes emitted opportunities on an outbound channel. Stages are
// wired by channels, not callbacks: the consumer applies backpressure by
// reading slower.
type DetectionService struct {
	graphs  *marketApp.GraphService
	cycle   *CycleDetector
	spatial *SpatialDetector
	logger  logger.LoggerInterface

	interval time.Duration
	lastGen  atomic.Uint64
	out      chan *domain.Opportunity
}

// NewDetectionService creates a detection service.
func NewDetectionService(graphs *marketApp.GraphService, cycle *CycleDetector, spatial *SpatialDetector, interval time.Duration, bufferSize int, log logger.LoggerInterface) *DetectionService {
	return &DetectionService{
		graphs:   graphs,
		cycle:    cycle,
		spatial:  spatial,
		logger:   log,
		interval: interval,
		out:      make(chan *domain.Opportunity, bufferSize),
	}
}

// Opportunities returns the outbound channel of Identified opportunities.
func (s *DetectionService) Opportunities() <-chan *domain.Opportunity {
	return s.out
}

// Run polls for new graph generations and runs one detection pass per
// generation until the context is cancelled.
func (s *DetectionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "detection loop started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "detection loop stopped")
			close(s.out)
			return
		case <-ticker.C:
			s.detectOnce(ctx)
		}
	}
}

func (s *DetectionService) detectOnce(ctx context.Context) {
	graph := s.graphs.Graph()
	gen := graph.Generation()
	if gen == 0 || gen == s.lastGen.Load() {
		return // nothing new to price
	}
	s.lastGen.Store(gen)

	opps := s.cycle.Detect(ctx, graph)
	opps = append(opps, s.spatial.Detect(ctx, graph)...)
	if len(opps) == 0 {
		return
	}

	for _, o := range opps {
		select {
		case s.out <- o:
		case <-ctx.Done():
			return
		}
	}

	s.logger.Info(ctx, "detection pass published opportunities",
		"generation", gen, "count", len(opps))
}
