// Package app contains the execution pipeline: the checkpointed state
// machine that turns admitted opportunities into confirmed trades.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/flasharb/business/blockchain/domain"
	"github.com/fd1az/flasharb/business/execution/domain"
	fundingDomain "github.com/fd1az/flasharb/business/funding/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	riskDomain "github.com/fd1az/flasharb/business/risk/domain"
	safetyApp "github.com/fd1az/flasharb/business/safety/app"
)

// RiskAssessor prices an opportunity against live network conditions.
type RiskAssessor interface {
	Assess(ctx context.Context, opp *arbDomain.Opportunity) *riskDomain.RiskAssessment
}

// AdmissionGate is the safety gate surface the pipeline needs.
type AdmissionGate interface {
	Admit(ctx context.Context, opp *arbDomain.Opportunity, assessment *riskDomain.RiskAssessment) (safetyApp.Approval, error)
	RecordOutcome(ctx context.Context, opportunityID string, success bool, pnl decimal.Decimal)
	BreakerState() string
	Exposure() decimal.Decimal
}

// FundingPlanner selects flash-loan sources for the borrow.
type FundingPlanner interface {
	Select(ctx context.Context, symbol string, amount decimal.Decimal, chainID uint64) (*fundingDomain.Plan, error)
}

// GasPricer supplies current fee-market prices for transaction params.
type GasPricer interface {
	GetGasPrice(ctx context.Context) (*blockchainDomain.GasPrice, error)
	GetGasTipCap(ctx context.Context) (*big.Int, error)
}

// NonceSource hands out transaction nonces. Next never returns the same
// value twice; Resync realigns with the chain after a conflict.
type NonceSource interface {
	Next(ctx context.Context) (uint64, error)
	Resync(ctx context.Context) error
}

// Submitter signs and broadcasts a prepared transaction. The pipeline
// never sees key material.
type Submitter interface {
	Submit(ctx context.Context, req *TxRequest) (common.Hash, error)
}

// Confirmer waits until a submitted transaction has the required
// confirmation depth.
type Confirmer interface {
	WaitConfirmed(ctx context.Context, hash common.Hash, depth uint64) (*domain.Receipt, error)
}

// GraphSource exposes the current market graph and its generation, used
// to re-validate freshness before submission and to re-price a path
// against fresh reserves when the graph moves on between attempts.
type GraphSource interface {
	Generation() uint64
	Graph() *marketDomain.Graph
}
