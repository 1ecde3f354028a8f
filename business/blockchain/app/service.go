package app

import (
	"context"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/blockchain/domain"
	"github.com/fd1az/flasharb/internal/logger"
)

// BlockchainService owns the block feed and fans new heads out to any
// number of consumers. A slow consumer drops heads rather than stalling
// the feed: only the latest chain state matters here.
type BlockchainService struct {
	subscriber BlockSubscriber
	gasOracle  GasOracle
	logger     logger.LoggerInterface

	mu        sync.Mutex
	listeners []chan *domain.Block
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(subscriber BlockSubscriber, gasOracle GasOracle, log logger.LoggerInterface) *BlockchainService {
	return &BlockchainService{
		subscriber: subscriber,
		gasOracle:  gasOracle,
		logger:     log,
	}
}

// SubscribeHeads registers a new head listener. Safe to call while Run
// is active; the listener sees heads from the next block on.
func (s *BlockchainService) SubscribeHeads(buffer int) <-chan *domain.Block {
	ch := make(chan *domain.Block, buffer)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}

// Run consumes the subscriber's block feed and fans heads out until the
// context is cancelled or the feed closes.
func (s *BlockchainService) Run(ctx context.Context) error {
	blocks, err := s.subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.closeListeners()
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				s.closeListeners()
				return nil
			}
			s.fanOut(block)
		}
	}
}

func (s *BlockchainService) fanOut(block *domain.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- block:
		default: // drop for slow consumers, heads are superseded anyway
		}
	}
}

func (s *BlockchainService) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
}

// LatestBlock retrieves the most recent block.
func (s *BlockchainService) LatestBlock(ctx context.Context) (*domain.Block, error) {
	return s.subscriber.LatestBlock(ctx)
}

// GetGasPrice retrieves the current gas price.
func (s *BlockchainService) GetGasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return s.gasOracle.GetGasPrice(ctx)
}

// GetGasTipCap retrieves the suggested priority fee.
func (s *BlockchainService) GetGasTipCap(ctx context.Context) (*big.Int, error) {
	return s.gasOracle.GetGasTipCap(ctx)
}

// CostInETH prices gasUnits at the current gas price.
func (s *BlockchainService) CostInETH(ctx context.Context, gasUnits uint64) (decimal.Decimal, error) {
	return s.gasOracle.CostInETH(ctx, gasUnits)
}

// ConnectionState returns the current connection state.
func (s *BlockchainService) ConnectionState() domain.ConnectionState {
	return s.subscriber.State()
}

// ConnectionStatus returns detailed connection information.
func (s *BlockchainService) ConnectionStatus() domain.ConnectionStatus {
	return s.subscriber.Status()
}
