package app

import (
	"testing"
	"time"

	"github.com/fd1az/flasharb/internal/apperror"
)

func testRecovery() *Recovery {
	return NewRecovery(RecoveryConfig{
		MaxRetries:        3,
		Backoff:           time.Second,
		GasBumpMultiplier: 1.25,
	})
}

func TestRecoveryPlan(t *testing.T) {
	tests := []struct {
		name    string
		code    apperror.Code
		attempt int
		retry   bool
		bump    bool
		resync  bool
	}{
		{"nonce conflict retries once", apperror.CodeNonceConflict, 0, true, false, true},
		{"nonce conflict stops after one", apperror.CodeNonceConflict, 1, false, false, false},
		{"transient retries", apperror.CodeSubmitFailed, 0, true, false, false},
		{"transient within budget", apperror.CodeEthereumRPCError, 2, true, false, false},
		{"transient exhausted", apperror.CodeSubmitFailed, 3, false, false, false},
		{"underpriced bumps gas", apperror.CodeGasUnderpriced, 0, true, true, false},
		{"stale never retries", apperror.CodeStaleGeneration, 0, false, false, false},
		{"policy never retries", apperror.CodePolicyViolation, 0, false, false, false},
		{"breaker open never retries", apperror.CodeCircuitOpen, 0, false, false, false},
		{"revert never retries", apperror.CodeTransactionReverted, 0, false, false, false},
		{"unknown code never retries", apperror.Code("something-new"), 0, false, false, false},
	}

	r := testRecovery()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Plan(apperror.New(tt.code), tt.attempt)
			if d.Retry != tt.retry {
				t.Errorf("Retry = %v, want %v", d.Retry, tt.retry)
			}
			if d.BumpGas != tt.bump {
				t.Errorf("BumpGas = %v, want %v", d.BumpGas, tt.bump)
			}
			if d.ResyncNonce != tt.resync {
				t.Errorf("ResyncNonce = %v, want %v", d.ResyncNonce, tt.resync)
			}
		})
	}
}

func TestRecoveryBackoffDoubles(t *testing.T) {
	r := testRecovery()

	first := r.Plan(apperror.New(apperror.CodeSubmitFailed), 0)
	second := r.Plan(apperror.New(apperror.CodeSubmitFailed), 1)

	if second.Delay != 2*first.Delay {
		t.Errorf("delays = %s then %s, want doubling", first.Delay, second.Delay)
	}
}
