package app

import (
	"context"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	"github.com/fd1az/flasharb/business/risk/domain"
)

// RiskService assesses opportunities against live network conditions.
type RiskService struct {
	model *Model
	hub   *SensorHub
}

// NewRiskService creates a risk service.
func NewRiskService(model *Model, hub *SensorHub) *RiskService {
	return &RiskService{model: model, hub: hub}
}

// Assess samples the network (through the hub cache) and prices the
// opportunity's risk.
func (s *RiskService) Assess(ctx context.Context, opp *arbDomain.Opportunity) *domain.RiskAssessment {
	return s.model.Score(opp, s.hub.Signals(ctx))
}

// Metrics returns the sensor hub snapshot.
func (s *RiskService) Metrics() HubSnapshot {
	return s.hub.Metrics()
}
