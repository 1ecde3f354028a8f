package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/execution/app"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

const tracerName = "github.com/fd1az/flasharb/business/execution/infra/ethereum"

// executorABI is the flash-loan arbitrage executor entrypoint.
const executorABI = `[
	{"name":"executeArbitrage","type":"function","inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"borrowAsset","type":"address"},
			{"name":"borrowAmount","type":"uint256"},
			{"name":"swaps","type":"tuple[]","components":[
				{"name":"pool","type":"address"},
				{"name":"tokenIn","type":"address"},
				{"name":"tokenOut","type":"address"},
				{"name":"amountIn","type":"uint256"},
				{"name":"minOut","type":"uint256"}
			]},
			{"name":"deadline","type":"uint256"}
		]}
	],"outputs":[]}
]`

type abiSwap struct {
	Pool     common.Address
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	MinOut   *big.Int
}

type abiParams struct {
	BorrowAsset  common.Address
	BorrowAmount *big.Int
	Swaps        []abiSwap
	Deadline     *big.Int
}

// TxSender is the node surface the submitter needs.
type TxSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// RPCSubmitter encodes, signs, and broadcasts arbitrage transactions.
// In dry-run mode the signed transaction is built and logged but never
// sent.
type RPCSubmitter struct {
	chainID *big.Int
	client  TxSender
	sign    SignerFunc
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface
	dryRun  bool

	abi    abi.ABI
	tracer trace.Tracer
}

// NewRPCSubmitter creates a submitter.
func NewRPCSubmitter(chainID *big.Int, client TxSender, sign SignerFunc, limiter *ratelimit.Limiter, dryRun bool, log logger.LoggerInterface) (*RPCSubmitter, error) {
	parsed, err := abi.JSON(strings.NewReader(executorABI))
	if err != nil {
		return nil, fmt.Errorf("parse executor abi: %w", err)
	}

	return &RPCSubmitter{
		chainID: chainID,
		client:  client,
		sign:    sign,
		limiter: limiter,
		logger:  log,
		dryRun:  dryRun,
		abi:     parsed,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Submit signs and broadcasts the request, returning the transaction
// hash.
func (s *RPCSubmitter) Submit(ctx context.Context, req *app.TxRequest) (common.Hash, error) {
	ctx, span := s.tracer.Start(ctx, "execution.submit",
		trace.WithAttributes(
			attribute.Int64("nonce", int64(req.Nonce)),
			attribute.Int("swaps", len(req.Calls)),
		),
	)
	defer span.End()

	data, err := s.encode(req)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     req.Nonce,
		GasTipCap: req.GasTipCap,
		GasFeeCap: req.GasFeeCap,
		Gas:       req.GasLimit,
		To:        &req.To,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := s.sign(ctx, tx)
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeSubmitFailed,
			apperror.WithCause(err),
			apperror.WithContext("transaction signing"))
	}

	if s.dryRun {
		s.logger.Info(ctx, "dry run, transaction not broadcast",
			"tx", signed.Hash().Hex(), "nonce", req.Nonce, "gas_limit", req.GasLimit)
		span.SetAttributes(attribute.Bool("dry_run", true))
		return signed.Hash(), nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return common.Hash{}, err
		}
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		span.RecordError(err)
		return common.Hash{}, classifySendError(err)
	}

	span.SetAttributes(attribute.String("tx_hash", signed.Hash().Hex()))
	return signed.Hash(), nil
}

func (s *RPCSubmitter) encode(req *app.TxRequest) ([]byte, error) {
	swaps := make([]abiSwap, 0, len(req.Calls))
	for _, c := range req.Calls {
		swaps = append(swaps, abiSwap{
			Pool:     c.Pool,
			TokenIn:  c.TokenIn,
			TokenOut: c.TokenOut,
			AmountIn: c.AmountIn,
			MinOut:   c.MinOut,
		})
	}

	data, err := s.abi.Pack("executeArbitrage", abiParams{
		BorrowAsset:  req.BorrowAsset,
		BorrowAmount: req.BorrowAmount,
		Swaps:        swaps,
		Deadline:     new(big.Int).SetUint64(req.Deadline),
	})
	if err != nil {
		return nil, fmt.Errorf("pack executeArbitrage: %w", err)
	}
	return data, nil
}

// classifySendError maps node rejections onto recovery categories by
// message, the only signal the RPC surface gives.
func classifySendError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "invalid nonce"):
		return apperror.New(apperror.CodeNonceConflict, apperror.WithCause(err))
	case strings.Contains(msg, "underpriced"), strings.Contains(msg, "fee cap less than block base fee"):
		return apperror.New(apperror.CodeGasUnderpriced, apperror.WithCause(err))
	case strings.Contains(msg, "insufficient funds"):
		return apperror.New(apperror.CodeInsufficientFunds, apperror.WithCause(err))
	default:
		return apperror.New(apperror.CodeSubmitFailed, apperror.WithCause(err))
	}
}
