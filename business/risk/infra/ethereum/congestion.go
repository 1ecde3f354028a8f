// Package ethereum implements the network condition sensors on ethclient.
package ethereum

import (
	"context"
	"math"
	"math/big"

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
	tracerName = "github.com/fd1az/flasharb/business/risk/infra/ethereum"

	weightPendingRatio    = 0.4
	weightGasDeviation    = 0.3
	weightBaseFeeVelocity = 0.3
)

// CongestionConfig holds congestion sensor tuning.
type CongestionConfig struct {
	Window        int     // blocks sampled per reading
	PendingNormal float64 // pending tx count considered "normal" load
}

// CongestionSensor reads mempool pressure and recent block fullness and
// folds them into one [0,1] congestion score.
type CongestionSensor struct {
	config  CongestionConfig
	client  *ethclient.Client
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface

	headerCB *circuitbreaker.CircuitBreaker[*types.Header]
	tracer   trace.Tracer
}

// NewCongestionSensor creates a congestion sensor.
func NewCongestionSensor(cfg CongestionConfig, client *ethclient.Client, limiter *ratelimit.Limiter, log logger.LoggerInterface) *CongestionSensor {
	return &CongestionSensor{
		config:   cfg,
		client:   client,
		limiter:  limiter,
		logger:   log,
		headerCB: circuitbreaker.New[*types.Header](circuitbreaker.DefaultConfig("congestion-sensor")),
		tracer:   otel.Tracer(tracerName),
	}
}

// Name identifies the sensor.
func (s *CongestionSensor) Name() string { return "congestion" }

// Sample reads pending-pool pressure, gas-usage deviation, and base-fee
// velocity over the block window, weighted 0.4/0.3/0.3.
func (s *CongestionSensor) Sample(ctx context.Context) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "risk.sensor.congestion")
	defer span.End()

	pending, err := s.pendingRatio(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	headers, err := s.recentHeaders(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	deviation := gasUsageDeviation(headers)
	velocity := baseFeeVelocity(headers)

	score := clamp01(weightPendingRatio*pending +
		weightGasDeviation*deviation +
		weightBaseFeeVelocity*velocity)

	span.SetAttributes(
		attribute.Float64("pending_ratio", pending),
		attribute.Float64("gas_deviation", deviation),
		attribute.Float64("base_fee_velocity", velocity),
		attribute.Float64("score", score),
	)

	return score, nil
}

// pendingRatio normalizes the pending transaction count against the
// configured normal load.
func (s *CongestionSensor) pendingRatio(ctx context.Context) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	count, err := s.client.PendingTransactionCount(ctx)
	if err != nil {
		return 0, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("pending transaction count"))
	}

	if s.config.PendingNormal <= 0 {
		return 0, nil
	}
	return clamp01(float64(count) / s.config.PendingNormal), nil
}

// recentHeaders fetches the last Window headers, newest first.
func (s *CongestionSensor) recentHeaders(ctx context.Context) ([]*types.Header, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	latest, err := s.headerCB.Execute(func() (*types.Header, error) {
		return s.client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("latest header"))
	}

	headers := []*types.Header{latest}
	number := new(big.Int).Set(latest.Number)
	for i := 1; i < s.config.Window && number.Sign() > 0; i++ {
		number = new(big.Int).Sub(number, big.NewInt(1))
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		n := new(big.Int).Set(number)
		h, err := s.headerCB.Execute(func() (*types.Header, error) {
			return s.client.HeaderByNumber(ctx, n)
		})
		if err != nil {
			break // partial windows are fine
		}
		headers = append(headers, h)
	}

	return headers, nil
}

// gasUsageDeviation measures how far block fullness strays from the 50%
// EIP-1559 target, averaged over the window.
func gasUsageDeviation(headers []*types.Header) float64 {
	if len(headers) == 0 {
		return 0
	}
	var total float64
	for _, h := range headers {
		if h.GasLimit == 0 {
			continue
		}
		util := float64(h.GasUsed) / float64(h.GasLimit)
		total += math.Abs(util-0.5) * 2
	}
	return clamp01(total / float64(len(headers)))
}

// baseFeeVelocity is the relative base-fee move across the window.
func baseFeeVelocity(headers []*types.Header) float64 {
	if len(headers) < 2 {
		return 0
	}
	newest, oldest := headers[0].BaseFee, headers[len(headers)-1].BaseFee
	if newest == nil || oldest == nil || oldest.Sign() == 0 {
		return 0
	}

	diff := new(big.Float).Sub(new(big.Float).SetInt(newest), new(big.Float).SetInt(oldest))
	rel := new(big.Float).Quo(diff, new(big.Float).SetInt(oldest))
	v, _ := rel.Float64()
	return clamp01(math.Abs(v))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
