package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Stats is a point-in-time snapshot of pipeline throughput.
type Stats struct {
	Received  uint64
	Rejected  uint64
	Submitted uint64
	Succeeded uint64
	Failed    uint64

	TotalGasUsed   uint64
	GasSpentETH    decimal.Decimal
	RealizedProfit decimal.Decimal
}

// SuccessRate returns succeeded over all terminal executions.
func (s Stats) SuccessRate() float64 {
	terminal := s.Succeeded + s.Failed
	if terminal == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(terminal)
}

// StatsRecorder accumulates pipeline outcomes. Safe for concurrent
// workers.
type StatsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsRecorder creates a zeroed recorder.
func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{}
}

// RecordReceived counts an opportunity entering the pipeline.
func (r *StatsRecorder) RecordReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Received++
}

// RecordRejected counts a gate or validation rejection.
func (r *StatsRecorder) RecordRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Rejected++
}

// RecordSubmitted counts a transaction handed to the chain.
func (r *StatsRecorder) RecordSubmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Submitted++
}

// RecordSuccess settles a confirmed, profitable-or-not execution.
func (r *StatsRecorder) RecordSuccess(receipt *Receipt, realized decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Succeeded++
	if receipt != nil {
		r.stats.TotalGasUsed += receipt.GasUsed
		r.stats.GasSpentETH = r.stats.GasSpentETH.Add(receipt.GasCostETH())
	}
	r.stats.RealizedProfit = r.stats.RealizedProfit.Add(realized)
}

// RecordFailure settles a failed execution; the receipt is non-nil when
// the transaction landed but reverted.
func (r *StatsRecorder) RecordFailure(receipt *Receipt, realized decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Failed++
	if receipt != nil {
		r.stats.TotalGasUsed += receipt.GasUsed
		r.stats.GasSpentETH = r.stats.GasSpentETH.Add(receipt.GasCostETH())
	}
	r.stats.RealizedProfit = r.stats.RealizedProfit.Add(realized)
}

// Snapshot returns a copy of the current totals.
func (r *StatsRecorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
