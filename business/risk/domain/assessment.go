// Package domain contains the core domain types for the risk context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetworkSignals is one sampled view of chain conditions, both readings
// normalized to [0,1].
type NetworkSignals struct {
	Congestion      float64
	SearcherDensity float64
	SampledAt       time.Time
	Degraded        bool // true if any sensor fell back to its degraded reading
}

// RiskAssessment prices the execution risk of one opportunity. Produced
// once per opportunity; downstream gating reads AdjustedNet, never the
// raw detector profit.
type RiskAssessment struct {
	OpportunityID string
	Congestion    float64
	Density       float64
	Risk          decimal.Decimal // in borrow-asset units
	AdjustedNet   decimal.Decimal // detector net profit minus Risk
	Degraded      bool
	AssessedAt    time.Time
}

// Viable reports whether the opportunity still clears zero after the
// risk charge.
func (a *RiskAssessment) Viable() bool {
	return a.AdjustedNet.IsPositive()
}
