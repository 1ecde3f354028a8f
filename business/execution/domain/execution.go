package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	fundingDomain "github.com/fd1az/flasharb/business/funding/domain"
)

// Checkpoint records a stage the execution reached and when.
type Checkpoint struct {
	Stage Stage
	At    time.Time
	Note  string
}

// Execution is the checkpointed run of one opportunity through the
// pipeline. Owned by a single worker; not safe for concurrent mutation.
type Execution struct {
	Opportunity *arbDomain.Opportunity
	Stage       Stage
	Checkpoints []Checkpoint

	Approved decimal.Decimal
	Plan     *fundingDomain.Plan
	Nonce    uint64
	TxHash   common.Hash
	Receipt  *Receipt
	Err      error

	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
}

// NewExecution starts an execution in the Pending stage.
func NewExecution(opp *arbDomain.Opportunity) *Execution {
	e := &Execution{
		Opportunity: opp,
		Stage:       StagePending,
		StartedAt:   time.Now(),
	}
	e.Checkpoints = append(e.Checkpoints, Checkpoint{Stage: StagePending, At: e.StartedAt})
	return e
}

// Advance moves to the next stage and records the checkpoint.
func (e *Execution) Advance(next Stage, note string) error {
	stage, err := e.Stage.Advance(next)
	if err != nil {
		return err
	}
	e.Stage = stage
	e.Checkpoints = append(e.Checkpoints, Checkpoint{Stage: stage, At: time.Now(), Note: note})
	if stage.IsTerminal() {
		e.FinishedAt = time.Now()
	}
	return nil
}

// Fail marks the execution terminal with the given cause. Failing an
// already-terminal execution is a no-op.
func (e *Execution) Fail(cause error) {
	if e.Stage.IsTerminal() {
		return
	}
	e.Err = cause
	e.Stage = StageFailed
	e.FinishedAt = time.Now()
	note := ""
	if cause != nil {
		note = cause.Error()
	}
	e.Checkpoints = append(e.Checkpoints, Checkpoint{Stage: StageFailed, At: e.FinishedAt, Note: note})
}

// RealizedProfit is the settled profit for a confirmed trade: the
// detection-time gross, corrected by how far the receipt's actual gas
// spend landed from the gas the estimate priced in. Zero when the trade
// never landed.
func (e *Execution) RealizedProfit() decimal.Decimal {
	if e.Stage != StageCompleted || e.Receipt == nil || e.Receipt.Reverted {
		return decimal.Zero
	}
	return e.Opportunity.GrossProfit.Add(e.GasDeviationETH())
}

// GasDeviationETH is (estimated - actual) gas units priced at the
// receipt's effective gas price: positive when the trade used less gas
// than the detection estimate budgeted, negative when it overran.
func (e *Execution) GasDeviationETH() decimal.Decimal {
	if e.Receipt == nil || e.Receipt.EffectiveGasPrice == nil {
		return decimal.Zero
	}
	estimated := new(big.Int).Mul(e.Receipt.EffectiveGasPrice, new(big.Int).SetUint64(e.Opportunity.GasEstimate))
	return decimal.NewFromBigInt(estimated, -18).Sub(e.Receipt.GasCostETH())
}

// Duration is the wall time from start to the terminal checkpoint.
func (e *Execution) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return time.Since(e.StartedAt)
	}
	return e.FinishedAt.Sub(e.StartedAt)
}
