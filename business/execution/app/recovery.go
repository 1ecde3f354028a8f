package app

import (
	"time"

	"github.com/fd1az/flasharb/internal/apperror"
)

// RecoveryConfig bounds the retry behavior.
type RecoveryConfig struct {
	MaxRetries        int
	Backoff           time.Duration // doubled per attempt
	GasBumpMultiplier float64
}

// Directive is the recovery decision for one failed attempt.
type Directive struct {
	Retry       bool
	Delay       time.Duration
	BumpGas     bool
	ResyncNonce bool
}

// Recovery maps a failure to a per-category strategy: nonce conflicts
// resync and retry once, transient errors back off exponentially with a
// gas bump when underpriced, everything else stops. Stale failures stop
// here because the pipeline re-validates generation before each attempt.
type Recovery struct {
	cfg RecoveryConfig
}

// NewRecovery creates a recovery strategy.
func NewRecovery(cfg RecoveryConfig) *Recovery {
	if cfg.GasBumpMultiplier <= 1 {
		cfg.GasBumpMultiplier = 1.25
	}
	return &Recovery{cfg: cfg}
}

// GasBumpMultiplier returns the configured fee bump factor.
func (r *Recovery) GasBumpMultiplier() float64 {
	return r.cfg.GasBumpMultiplier
}

// Plan decides what to do after a failed attempt. Attempt is zero-based:
// the first failure is attempt 0.
func (r *Recovery) Plan(err error, attempt int) Directive {
	code := apperror.GetCode(err)

	switch apperror.CategoryOf(code) {
	case apperror.CategoryOrdering:
		// One resync-and-retry; a second conflict means someone else
		// is using the account.
		if attempt == 0 {
			return Directive{Retry: true, ResyncNonce: true}
		}
		return Directive{}

	case apperror.CategoryTransient:
		if attempt >= r.cfg.MaxRetries {
			return Directive{}
		}
		return Directive{
			Retry:   true,
			Delay:   r.cfg.Backoff << attempt,
			BumpGas: code == apperror.CodeGasUnderpriced,
		}

	default:
		// Stale, policy, fatal, and unknown codes are never retried.
		return Directive{}
	}
}
