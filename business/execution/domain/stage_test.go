package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStageAdvance(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		ok   bool
	}{
		{"pending to detecting", StagePending, StageDetecting, true},
		{"detecting to validating", StageDetecting, StageValidating, true},
		{"validating to preparing", StageValidating, StagePreparing, true},
		{"preparing to executing", StagePreparing, StageExecuting, true},
		{"executing to monitoring", StageExecuting, StageMonitoring, true},
		{"monitoring to completed", StageMonitoring, StageCompleted, true},
		{"any stage may fail", StageExecuting, StageFailed, true},
		{"no skipping", StagePending, StagePreparing, false},
		{"no going back", StageExecuting, StageValidating, false},
		{"completed is terminal", StageCompleted, StageFailed, false},
		{"failed is terminal", StageFailed, StageDetecting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.from.Advance(tt.to)
			if (err == nil) != tt.ok {
				t.Errorf("Advance(%s -> %s) err = %v, want ok = %v", tt.from, tt.to, err, tt.ok)
			}
		})
	}
}

func TestExecutionCheckpoints(t *testing.T) {
	exec := NewExecution(testOpportunity())

	stages := []Stage{StageDetecting, StageValidating, StagePreparing, StageExecuting, StageMonitoring, StageCompleted}
	for _, s := range stages {
		if err := exec.Advance(s, ""); err != nil {
			t.Fatalf("Advance(%s): %v", s, err)
		}
	}

	if got := len(exec.Checkpoints); got != len(stages)+1 {
		t.Errorf("checkpoints = %d, want %d", got, len(stages)+1)
	}
	if exec.FinishedAt.IsZero() {
		t.Error("terminal stage did not set FinishedAt")
	}
}

func completedExecution(t *testing.T, receipt *Receipt) *Execution {
	t.Helper()
	exec := NewExecution(testOpportunity())
	for _, s := range []Stage{StageDetecting, StageValidating, StagePreparing, StageExecuting, StageMonitoring, StageCompleted} {
		if err := exec.Advance(s, ""); err != nil {
			t.Fatal(err)
		}
	}
	exec.Receipt = receipt
	return exec
}

func TestRealizedProfitTracksActualGas(t *testing.T) {
	// Detection budgeted 490k gas; the receipt decides what was spent.
	gwei40 := big.NewInt(40_000_000_000)
	tests := []struct {
		name    string
		receipt *Receipt
		want    string
	}{
		// 90k gas under the estimate at 40 gwei is 0.0036 ETH back.
		{"used less than estimated", &Receipt{GasUsed: 400000, EffectiveGasPrice: gwei40}, "0.1036"},
		// 110k over costs 0.0044 ETH of the edge.
		{"used more than estimated", &Receipt{GasUsed: 600000, EffectiveGasPrice: gwei40}, "0.0956"},
		{"exactly on estimate", &Receipt{GasUsed: 490000, EffectiveGasPrice: gwei40}, "0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := completedExecution(t, tt.receipt)
			want := decimal.RequireFromString(tt.want)
			if got := exec.RealizedProfit(); !got.Equal(want) {
				t.Errorf("RealizedProfit() = %s, want %s", got, want)
			}
		})
	}
}

func TestRealizedProfitZeroWithoutReceipt(t *testing.T) {
	exec := NewExecution(testOpportunity())
	if !exec.RealizedProfit().IsZero() {
		t.Error("profit realized before completion")
	}

	exec = completedExecution(t, &Receipt{GasUsed: 400000, EffectiveGasPrice: big.NewInt(1), Reverted: true})
	if !exec.RealizedProfit().IsZero() {
		t.Error("reverted trade realized a profit")
	}
}

func TestExecutionFail(t *testing.T) {
	exec := NewExecution(testOpportunity())
	if err := exec.Advance(StageDetecting, ""); err != nil {
		t.Fatal(err)
	}

	cause := errors.New("node unreachable")
	exec.Fail(cause)

	if exec.Stage != StageFailed {
		t.Errorf("stage = %s, want failed", exec.Stage)
	}
	if exec.Err != cause {
		t.Errorf("err = %v, want original cause", exec.Err)
	}

	// Failing again must not overwrite the cause.
	exec.Fail(errors.New("later error"))
	if exec.Err != cause {
		t.Error("second Fail overwrote the original cause")
	}
}
