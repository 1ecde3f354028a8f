// Package app contains the SafetyGate, the single admission point for
// trade execution.
package app

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	riskDomain "github.com/fd1az/flasharb/business/risk/domain"
	"github.com/fd1az/flasharb/business/safety/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/safety/app"
	meterName  = "github.com/fd1az/flasharb/business/safety/app"
)

// Approval is the gate's admission decision: the approved borrow amount,
// possibly smaller than requested.
type Approval struct {
	OpportunityID string
	Amount        decimal.Decimal
	Partial       bool // approved below the requested amount
}

type gateMetrics struct {
	admitted metric.Int64Counter
	rejected metric.Int64Counter
	exposure metric.Float64Gauge
	cumLoss  metric.Float64Gauge
}

// Gate is the SafetyGate: breaker check, policy veto, risk viability, and
// position sizing, in one synchronous call. All state lives on the
// injected instance.
type Gate struct {
	breaker *domain.Breaker
	sizer   *domain.Sizer
	policy  *domain.Policy
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *gateMetrics
}

// NewGate creates a safety gate.
func NewGate(breaker *domain.Breaker, sizer *domain.Sizer, policy *domain.Policy, log logger.LoggerInterface) (*Gate, error) {
	g := &Gate{
		breaker: breaker,
		sizer:   sizer,
		policy:  policy,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
	if err := g.initMetrics(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gate) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gateMetrics{}

	g.metrics.admitted, err = meter.Int64Counter(
		"safety_admitted_total",
		metric.WithDescription("Opportunities admitted by the gate"),
	)
	if err != nil {
		return err
	}

	g.metrics.rejected, err = meter.Int64Counter(
		"safety_rejected_total",
		metric.WithDescription("Opportunities rejected by the gate"),
	)
	if err != nil {
		return err
	}

	g.metrics.exposure, err = meter.Float64Gauge(
		"safety_open_exposure",
		metric.WithDescription("Aggregate reserved notional"),
	)
	if err != nil {
		return err
	}

	g.metrics.cumLoss, err = meter.Float64Gauge(
		"safety_cumulative_loss",
		metric.WithDescription("Realized loss since the breaker last closed"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Admit decides whether and at what size the opportunity may execute.
// Checks run cheapest-veto-first: policy, breaker, risk viability, then
// sizing. A zero-size reservation is an exposure rejection.
func (g *Gate) Admit(ctx context.Context, opp *arbDomain.Opportunity, assessment *riskDomain.RiskAssessment) (Approval, error) {
	ctx, span := g.tracer.Start(ctx, "safety.admit",
		trace.WithAttributes(
			attribute.String("opportunity_id", opp.ID),
			attribute.String("action", string(opp.Action)),
		),
	)
	defer span.End()

	if !g.policy.Allowed(opp.Action) {
		return g.reject(ctx, span, opp, apperror.CodePolicyViolation,
			"action category denied by policy: "+string(opp.Action))
	}

	if !g.breaker.Allow() {
		return g.reject(ctx, span, opp, apperror.CodeCircuitOpen,
			"trading breaker is open")
	}

	if assessment == nil || !assessment.Viable() {
		return g.reject(ctx, span, opp, apperror.CodeRiskRejected,
			"adjusted net profit is not positive")
	}

	amount := g.sizer.Reserve(opp.ID, opp.BorrowAmount)
	g.recordExposure(ctx)
	if !amount.IsPositive() {
		return g.reject(ctx, span, opp, apperror.CodeExposureExceeded,
			"no exposure headroom")
	}

	g.metrics.admitted.Add(ctx, 1)
	span.SetAttributes(attribute.String("approved_amount", amount.String()))

	return Approval{
		OpportunityID: opp.ID,
		Amount:        amount,
		Partial:       amount.LessThan(opp.BorrowAmount),
	}, nil
}

func (g *Gate) reject(ctx context.Context, span trace.Span, opp *arbDomain.Opportunity, code apperror.Code, msg string) (Approval, error) {
	g.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
	span.AddEvent("rejected", trace.WithAttributes(attribute.String("code", string(code))))
	g.logger.Debug(ctx, "gate rejected opportunity", "opportunity_id", opp.ID, "code", string(code))
	return Approval{}, apperror.New(code, apperror.WithContext(msg))
}

// RecordOutcome feeds a terminal trade result back into the breaker and
// sizer. Loss is the realized loss in borrow-asset units, zero for wins
// or for failures that never committed funds.
func (g *Gate) RecordOutcome(ctx context.Context, opportunityID string, success bool, pnl decimal.Decimal) {
	ctx, span := g.tracer.Start(ctx, "safety.record_outcome",
		trace.WithAttributes(
			attribute.String("opportunity_id", opportunityID),
			attribute.Bool("success", success),
		),
	)
	defer span.End()

	g.sizer.Release(opportunityID)

	if success && !pnl.IsNegative() {
		g.breaker.RecordSuccess()
		g.sizer.RecordWin()
	} else {
		loss := decimal.Zero
		if pnl.IsNegative() {
			loss = pnl.Neg()
		}
		g.breaker.RecordFailure(loss)
		g.sizer.RecordLoss()
	}

	g.recordExposure(ctx)
	cumLoss, _ := g.breaker.CumulativeLoss().Float64()
	g.metrics.cumLoss.Record(ctx, cumLoss)
}

// BreakerState exposes the breaker state for monitoring.
func (g *Gate) BreakerState() string {
	return g.breaker.State().String()
}

// Exposure exposes the aggregate reserved notional for monitoring.
func (g *Gate) Exposure() decimal.Decimal {
	return g.sizer.Exposure()
}

func (g *Gate) recordExposure(ctx context.Context) {
	exposure, _ := g.sizer.Exposure().Float64()
	g.metrics.exposure.Record(ctx, exposure)
}
