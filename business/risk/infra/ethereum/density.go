package ethereum

import (
	"context"
	"math"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/circuitbreaker"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

const (
	weightRouterRatio   = 0.4
	weightGasPriceCV    = 0.4
	weightGasClustering = 0.2

	// Transactions paying over 1.5x the median gas price count as
	// priority bidders for the clustering measure.
	highGasMultiplier = 1.5
)

// DensityConfig holds searcher-density sensor tuning.
type DensityConfig struct {
	Window  int              // blocks sampled per reading
	ChainID *big.Int         // for sender recovery
	Routers []common.Address // DEX router addresses watched for swap flow
}

// DefaultRouters returns the mainnet router set watched by default.
func DefaultRouters() []common.Address {
	return []common.Address{
		common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"), // Uniswap V2
		common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"), // Uniswap V3
		common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"), // Universal Router
		common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"), // Sushiswap
	}
}

// DensitySensor estimates how much adversarial searcher flow is competing
// in recent blocks: router traffic share, gas-price dispersion, and
// clustering of high-gas senders, folded into one [0,1] score.
type DensitySensor struct {
	config  DensityConfig
	client  *ethclient.Client
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface

	routers map[common.Address]bool
	signer  types.Signer

	blockCB *circuitbreaker.CircuitBreaker[*types.Block]
	tracer  trace.Tracer
}

// NewDensitySensor creates a searcher-density sensor.
func NewDensitySensor(cfg DensityConfig, client *ethclient.Client, limiter *ratelimit.Limiter, log logger.LoggerInterface) *DensitySensor {
	routers := make(map[common.Address]bool, len(cfg.Routers))
	for _, r := range cfg.Routers {
		routers[r] = true
	}

	return &DensitySensor{
		config:  cfg,
		client:  client,
		limiter: limiter,
		logger:  log,
		routers: routers,
		signer:  types.LatestSignerForChainID(cfg.ChainID),
		blockCB: circuitbreaker.New[*types.Block](circuitbreaker.DefaultConfig("density-sensor")),
		tracer:  otel.Tracer(tracerName),
	}
}

// Name identifies the sensor.
func (s *DensitySensor) Name() string { return "searcher-density" }

// Sample scans the block window and weighs router traffic (0.4), gas
// price dispersion (0.4), and high-gas sender clustering (0.2).
func (s *DensitySensor) Sample(ctx context.Context) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "risk.sensor.density")
	defer span.End()

	txs, err := s.recentTransactions(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}

	routerRatio := s.routerRatio(txs)
	gasCV := gasPriceCV(txs)
	clustering := s.highGasClustering(txs)

	score := clamp01(weightRouterRatio*routerRatio +
		weightGasPriceCV*gasCV +
		weightGasClustering*clustering)

	span.SetAttributes(
		attribute.Int("tx_count", len(txs)),
		attribute.Float64("router_ratio", routerRatio),
		attribute.Float64("gas_price_cv", gasCV),
		attribute.Float64("clustering", clustering),
		attribute.Float64("score", score),
	)

	return score, nil
}

// recentTransactions collects all transactions in the last Window blocks.
func (s *DensitySensor) recentTransactions(ctx context.Context) ([]*types.Transaction, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	latest, err := s.blockCB.Execute(func() (*types.Block, error) {
		return s.client.BlockByNumber(ctx, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("latest block"))
	}

	txs := append([]*types.Transaction(nil), latest.Transactions()...)
	number := new(big.Int).Set(latest.Number())
	for i := 1; i < s.config.Window && number.Sign() > 0; i++ {
		number = new(big.Int).Sub(number, big.NewInt(1))
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		n := new(big.Int).Set(number)
		block, err := s.blockCB.Execute(func() (*types.Block, error) {
			return s.client.BlockByNumber(ctx, n)
		})
		if err != nil {
			break // partial windows are fine
		}
		txs = append(txs, block.Transactions()...)
	}

	return txs, nil
}

// routerRatio is the share of transactions targeting a watched router.
func (s *DensitySensor) routerRatio(txs []*types.Transaction) float64 {
	if len(s.routers) == 0 {
		return 0
	}
	var hits int
	for _, tx := range txs {
		if to := tx.To(); to != nil && s.routers[*to] {
			hits++
		}
	}
	return float64(hits) / float64(len(txs))
}

// gasPriceCV is the coefficient of variation of gas prices, clamped to 1.
// Wide dispersion means active priority-fee bidding.
func gasPriceCV(txs []*types.Transaction) float64 {
	prices := make([]float64, 0, len(txs))
	for _, tx := range txs {
		if p := tx.GasPrice(); p != nil && p.Sign() > 0 {
			f, _ := new(big.Float).SetInt(p).Float64()
			prices = append(prices, f)
		}
	}
	if len(prices) < 2 {
		return 0
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))

	return clamp01(math.Sqrt(variance) / mean)
}

// highGasClustering measures sender concentration among transactions
// bidding well above the median gas price: a few addresses dominating the
// top of the fee market is the searcher signature.
func (s *DensitySensor) highGasClustering(txs []*types.Transaction) float64 {
	prices := make([]float64, 0, len(txs))
	for _, tx := range txs {
		if p := tx.GasPrice(); p != nil && p.Sign() > 0 {
			f, _ := new(big.Float).SetInt(p).Float64()
			prices = append(prices, f)
		}
	}
	if len(prices) < 2 {
		return 0
	}
	sort.Float64s(prices)
	threshold := prices[len(prices)/2] * highGasMultiplier

	senders := make(map[common.Address]bool)
	var count int
	for _, tx := range txs {
		p := tx.GasPrice()
		if p == nil {
			continue
		}
		f, _ := new(big.Float).SetInt(p).Float64()
		if f <= threshold {
			continue
		}
		count++
		if from, err := types.Sender(s.signer, tx); err == nil {
			senders[from] = true
		}
	}
	if count < 2 {
		return 0
	}

	return clamp01(1 - float64(len(senders))/float64(count))
}
