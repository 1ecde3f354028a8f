package app

import (
	"time"

	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	"github.com/fd1az/flasharb/business/risk/domain"
)

// ModelConfig holds the risk pricing coefficients. All four terms carry
// borrow-asset units after scaling.
type ModelConfig struct {
	Base  decimal.Decimal // flat charge per trade
	Alpha decimal.Decimal // per unit of borrowed value
	Beta  decimal.Decimal // per unit of congestion
	Gamma decimal.Decimal // per unit of searcher density
}

// Model converts network signals and trade size into a risk charge in
// asset units and an adjusted net profit.
type Model struct {
	config ModelConfig
}

// NewModel creates a risk model.
func NewModel(cfg ModelConfig) *Model {
	return &Model{config: cfg}
}

// Score prices the opportunity's risk:
//
//	risk = base + alpha*borrowAmount + beta*congestion + gamma*density
//
// The detector's profit is already net of gas and the flash fee, so the
// adjusted net is simply profit minus the risk charge.
func (m *Model) Score(opp *arbDomain.Opportunity, signals domain.NetworkSignals) *domain.RiskAssessment {
	risk := m.config.Base.
		Add(m.config.Alpha.Mul(opp.BorrowAmount)).
		Add(m.config.Beta.Mul(decimal.NewFromFloat(signals.Congestion))).
		Add(m.config.Gamma.Mul(decimal.NewFromFloat(signals.SearcherDensity)))

	return &domain.RiskAssessment{
		OpportunityID: opp.ID,
		Congestion:    signals.Congestion,
		Density:       signals.SearcherDensity,
		Risk:          risk,
		AdjustedNet:   opp.GrossProfit.Sub(risk),
		Degraded:      signals.Degraded,
		AssessedAt:    time.Now(),
	}
}
