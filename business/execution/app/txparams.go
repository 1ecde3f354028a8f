package app

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
)

// gasBufferNum/Den apply a 20% buffer over the detector's gas estimate.
const (
	gasBufferNum = 12
	gasBufferDen = 10
)

// SwapCall is one hop of the on-chain trade, amounts in raw token units.
type SwapCall struct {
	Pool     common.Address
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	MinOut   *big.Int
}

// TxRequest is a fully-parameterized arbitrage transaction, ready to
// sign and broadcast.
type TxRequest struct {
	Nonce        uint64
	To           common.Address // arbitrage executor contract
	GasLimit     uint64
	GasFeeCap    *big.Int
	GasTipCap    *big.Int
	BorrowAsset  common.Address
	BorrowAmount *big.Int
	Calls        []SwapCall
	Deadline     uint64 // unix seconds
}

// BumpFees multiplies both fee caps, used when a submission comes back
// underpriced.
func (r *TxRequest) BumpFees(multiplier float64) {
	r.GasFeeCap = bumpBig(r.GasFeeCap, multiplier)
	r.GasTipCap = bumpBig(r.GasTipCap, multiplier)
}

func bumpBig(v *big.Int, multiplier float64) *big.Int {
	if v == nil {
		return nil
	}
	bumped, _ := new(big.Float).Mul(new(big.Float).SetInt(v), big.NewFloat(multiplier)).Int(nil)
	return bumped
}

// TxBuilder turns an approved opportunity into transaction parameters:
// per-step min-out from the slippage tolerance, amounts scaled down for
// partial approvals, raw units from registry decimals.
type TxBuilder struct {
	registry    *asset.Registry
	executor    common.Address
	slippageBps decimal.Decimal
	deadline    time.Duration
}

// NewTxBuilder creates a parameter builder.
func NewTxBuilder(registry *asset.Registry, executor common.Address, slippageBps decimal.Decimal, deadline time.Duration) *TxBuilder {
	return &TxBuilder{
		registry:    registry,
		executor:    executor,
		slippageBps: slippageBps,
		deadline:    deadline,
	}
}

// Build produces the transaction request. Approved may be below the
// opportunity's borrow amount; every step is scaled by the same ratio so
// path proportions hold.
func (b *TxBuilder) Build(opp *arbDomain.Opportunity, approved decimal.Decimal, nonce uint64, feeCap, tipCap *big.Int) (*TxRequest, error) {
	if !approved.IsPositive() {
		return nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("approved amount must be positive"))
	}
	if err := opp.ValidateStructure(); err != nil {
		return nil, apperror.New(apperror.CodeBrokenPath, apperror.WithCause(err))
	}

	ratio := approved.Div(opp.BorrowAmount)
	one := decimal.NewFromInt(1)
	slip := one.Sub(b.slippageBps.Div(decimal.NewFromInt(10000)))

	calls := make([]SwapCall, 0, len(opp.Steps))
	for i, step := range opp.Steps {
		amountIn, err := b.rawUnits(step.TokenIn, step.AmountIn.Mul(ratio))
		if err != nil {
			return nil, fmt.Errorf("step %d amount in: %w", i, err)
		}
		minOut, err := b.rawUnits(step.TokenOut, step.ExpectedOut.Mul(ratio).Mul(slip))
		if err != nil {
			return nil, fmt.Errorf("step %d min out: %w", i, err)
		}
		calls = append(calls, SwapCall{
			Pool:     common.HexToAddress(step.PoolAddress),
			TokenIn:  step.TokenIn.Address(),
			TokenOut: step.TokenOut.Address(),
			AmountIn: amountIn,
			MinOut:   minOut,
		})
	}

	borrowRaw, err := b.rawUnits(opp.BorrowAsset, approved)
	if err != nil {
		return nil, fmt.Errorf("borrow amount: %w", err)
	}

	return &TxRequest{
		Nonce:        nonce,
		To:           b.executor,
		GasLimit:     opp.GasEstimate * gasBufferNum / gasBufferDen,
		GasFeeCap:    feeCap,
		GasTipCap:    tipCap,
		BorrowAsset:  opp.BorrowAsset.Address(),
		BorrowAmount: borrowRaw,
		Calls:        calls,
		Deadline:     uint64(time.Now().Add(b.deadline).Unix()),
	}, nil
}

// rawUnits converts a decimal token amount to raw integer units using
// the registry's decimals, truncating dust.
func (b *TxBuilder) rawUnits(id asset.AssetID, amount decimal.Decimal) (*big.Int, error) {
	a, ok := b.registry.Get(id)
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound,
			apperror.WithContext("asset not registered: "+id.String()))
	}
	return amount.Shift(int32(a.Decimals())).BigInt(), nil
}
