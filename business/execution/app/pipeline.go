package app

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	"github.com/fd1az/flasharb/business/execution/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/execution/app"
	meterName  = "github.com/fd1az/flasharb/business/execution/app"
)

// PipelineConfig holds execution pipeline settings.
type PipelineConfig struct {
	ChainID             uint64
	MaxWorkers          int
	OpportunityDeadline time.Duration
	ConfirmDepth        uint64
	ConfirmTimeout      time.Duration
	EventBufferSize     int
}

type pipelineMetrics struct {
	received  metric.Int64Counter
	rejected  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
	profit    metric.Float64Counter
}

// Pipeline drives admitted opportunities through the execution state
// machine: validate, fund, parameterize, submit, confirm. One worker per
// opportunity, capped by MaxWorkers.
type Pipeline struct {
	cfg      PipelineConfig
	registry *asset.Registry

	risk      RiskAssessor
	gate      AdmissionGate
	funding   FundingPlanner
	gas       GasPricer
	nonces    NonceSource
	submitter Submitter
	confirmer Confirmer
	graphs    GraphSource

	builder  *TxBuilder
	recovery *Recovery
	book     *domain.PositionBook
	stats    *domain.StatsRecorder
	logger   logger.LoggerInterface

	events  chan Event
	tracer  trace.Tracer
	metrics *pipelineMetrics
}

// NewPipeline wires the execution pipeline.
func NewPipeline(
	cfg PipelineConfig,
	registry *asset.Registry,
	risk RiskAssessor,
	gate AdmissionGate,
	funding FundingPlanner,
	gas GasPricer,
	nonces NonceSource,
	submitter Submitter,
	confirmer Confirmer,
	graphs GraphSource,
	builder *TxBuilder,
	recovery *Recovery,
	log logger.LoggerInterface,
) (*Pipeline, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 64
	}

	p := &Pipeline{
		cfg:       cfg,
		registry:  registry,
		risk:      risk,
		gate:      gate,
		funding:   funding,
		gas:       gas,
		nonces:    nonces,
		submitter: submitter,
		confirmer: confirmer,
		graphs:    graphs,
		builder:   builder,
		recovery:  recovery,
		book:      domain.NewPositionBook(),
		stats:     domain.NewStatsRecorder(),
		logger:    log,
		events:    make(chan Event, cfg.EventBufferSize),
		tracer:    otel.Tracer(tracerName),
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &pipelineMetrics{}

	p.metrics.received, err = meter.Int64Counter(
		"execution_received_total",
		metric.WithDescription("Opportunities entering the pipeline"),
	)
	if err != nil {
		return err
	}

	p.metrics.rejected, err = meter.Int64Counter(
		"execution_rejected_total",
		metric.WithDescription("Opportunities rejected before submission"),
	)
	if err != nil {
		return err
	}

	p.metrics.completed, err = meter.Int64Counter(
		"execution_completed_total",
		metric.WithDescription("Confirmed profitable executions"),
	)
	if err != nil {
		return err
	}

	p.metrics.failed, err = meter.Int64Counter(
		"execution_failed_total",
		metric.WithDescription("Executions terminated by failure"),
	)
	if err != nil {
		return err
	}

	p.metrics.duration, err = meter.Float64Histogram(
		"execution_duration_seconds",
		metric.WithDescription("Wall time from receipt to terminal stage"),
	)
	if err != nil {
		return err
	}

	p.metrics.profit, err = meter.Float64Counter(
		"execution_realized_profit",
		metric.WithDescription("Cumulative realized profit in borrow-asset units"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Events returns the outbound lifecycle channel. Slow consumers drop
// events rather than stall workers.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// Stats returns the current throughput snapshot.
func (p *Pipeline) Stats() domain.Stats {
	return p.stats.Snapshot()
}

// OpenPositions returns the number of in-flight positions.
func (p *Pipeline) OpenPositions() int {
	return p.book.OpenCount()
}

// OpenNotional returns the committed capital across in-flight positions.
func (p *Pipeline) OpenNotional() decimal.Decimal {
	return p.book.OpenNotional()
}

// Run consumes opportunities until the channel closes or the context is
// cancelled. Each opportunity gets its own worker, capped by MaxWorkers;
// excess opportunities wait their turn.
func (p *Pipeline) Run(ctx context.Context, in <-chan *arbDomain.Opportunity) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxWorkers)

	for {
		select {
		case <-ctx.Done():
			err := g.Wait()
			close(p.events)
			return err
		case opp, ok := <-in:
			if !ok {
				err := g.Wait()
				close(p.events)
				return err
			}
			g.Go(func() error {
				p.Execute(ctx, opp)
				return nil
			})
		}
	}
}

// Execute runs one opportunity through the full state machine and
// returns the terminal execution record. Every failure path settles the
// gate, the position book, and the stats.
func (p *Pipeline) Execute(ctx context.Context, opp *arbDomain.Opportunity) *domain.Execution {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.OpportunityDeadline)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "execution.pipeline",
		trace.WithAttributes(
			attribute.String("opportunity_id", opp.ID),
			attribute.String("type", string(opp.Type)),
			attribute.Int("hops", opp.Hops()),
		),
	)
	defer span.End()

	exec := domain.NewExecution(opp)
	p.stats.RecordReceived()
	p.metrics.received.Add(ctx, 1)
	p.publish(Event{Type: EventIdentified, OpportunityID: opp.ID, Stage: exec.Stage, At: time.Now()})

	if err := p.detect(exec); err != nil {
		return p.reject(ctx, span, exec, err)
	}
	admitted, err := p.validate(ctx, exec)
	if err != nil {
		// Once the gate admitted, its reservation must be released even
		// when validation dies right after.
		if admitted {
			return p.fail(ctx, span, exec, err)
		}
		return p.reject(ctx, span, exec, err)
	}
	req, perr := p.prepare(ctx, exec)
	if perr != nil {
		return p.fail(ctx, span, exec, perr)
	}

	p.publish(Event{Type: EventExecuting, OpportunityID: opp.ID, Stage: exec.Stage, At: time.Now()})
	if err := p.submit(ctx, exec, req); err != nil {
		return p.fail(ctx, span, exec, err)
	}
	if err := p.confirm(ctx, exec); err != nil {
		return p.fail(ctx, span, exec, err)
	}

	return p.complete(ctx, span, exec)
}

// detect re-checks structural integrity of the already-identified path.
func (p *Pipeline) detect(exec *domain.Execution) error {
	if err := exec.Advance(domain.StageDetecting, ""); err != nil {
		return err
	}
	if err := exec.Opportunity.ValidateStructure(); err != nil {
		return apperror.New(apperror.CodeBrokenPath, apperror.WithCause(err))
	}
	return nil
}

// validate runs the risk model and the safety gate, and checks the path
// was priced from the current graph generation. The returned flag reports
// whether the gate admitted the opportunity before the error, so the
// caller can settle the reservation.
func (p *Pipeline) validate(ctx context.Context, exec *domain.Execution) (bool, error) {
	if err := exec.Advance(domain.StageValidating, ""); err != nil {
		return false, err
	}
	opp := exec.Opportunity

	if gen := p.graphs.Generation(); gen != opp.Generation {
		return false, apperror.New(apperror.CodeStaleGeneration,
			apperror.WithContext("graph moved on since detection"))
	}

	assessment := p.risk.Assess(ctx, opp)
	approval, err := p.gate.Admit(ctx, opp, assessment)
	if err != nil {
		return false, err
	}
	exec.Approved = approval.Amount

	if err := opp.TransitionTo(arbDomain.StatusValidated); err != nil {
		return true, err
	}
	return true, nil
}

// prepare selects funding, opens the position, and builds transaction
// parameters including the reserved nonce.
func (p *Pipeline) prepare(ctx context.Context, exec *domain.Execution) (*TxRequest, error) {
	if err := exec.Advance(domain.StagePreparing, ""); err != nil {
		return nil, err
	}
	opp := exec.Opportunity

	borrow, ok := p.registry.Get(opp.BorrowAsset)
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound,
			apperror.WithContext("borrow asset not registered"))
	}

	plan, err := p.funding.Select(ctx, borrow.Symbol(), exec.Approved, p.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	exec.Plan = plan

	p.book.Open(opp.ID, opp.BorrowAsset, exec.Approved)

	price, err := p.gas.GetGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	tip, err := p.gas.GetGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := p.nonces.Next(ctx)
	if err != nil {
		return nil, err
	}
	exec.Nonce = nonce

	req, err := p.builder.Build(opp, exec.Approved, nonce, price.Wei, tip)
	if err != nil {
		return nil, err
	}

	if err := opp.TransitionTo(arbDomain.StatusPrepared); err != nil {
		return nil, err
	}
	return req, nil
}

// submit broadcasts the transaction, applying the recovery strategy
// between attempts. Every retry re-validates graph freshness.
func (p *Pipeline) submit(ctx context.Context, exec *domain.Execution, req *TxRequest) error {
	if err := exec.Advance(domain.StageExecuting, ""); err != nil {
		return err
	}
	opp := exec.Opportunity

	for attempt := 0; ; attempt++ {
		exec.Attempts = attempt + 1
		hash, err := p.submitter.Submit(ctx, req)
		if err == nil {
			exec.TxHash = hash
			p.stats.RecordSubmitted()
			p.logger.Info(ctx, "transaction submitted",
				"opportunity_id", opp.ID, "tx", hash.Hex(), "attempt", attempt+1)
			break
		}

		d := p.recovery.Plan(err, attempt)
		if !d.Retry {
			return err
		}
		if gen := p.graphs.Generation(); gen != opp.Generation {
			if rerr := p.reprice(ctx, opp, gen); rerr != nil {
				return rerr
			}
		}
		if d.ResyncNonce {
			if rerr := p.nonces.Resync(ctx); rerr != nil {
				return rerr
			}
			nonce, nerr := p.nonces.Next(ctx)
			if nerr != nil {
				return nerr
			}
			exec.Nonce = nonce
			req.Nonce = nonce
		}
		if d.BumpGas {
			req.BumpFees(p.recovery.GasBumpMultiplier())
		}
		p.logger.Warn(ctx, "submission failed, retrying",
			"opportunity_id", opp.ID, "attempt", attempt+1, "error", err.Error())

		if d.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.Delay):
			}
		}
	}

	return opp.TransitionTo(arbDomain.StatusSubmitted)
}

// reprice re-simulates the path against the current graph after the
// generation moved between submission attempts. A still-profitable path
// adopts the new generation and the retry proceeds; anything else stops
// here. The built transaction keeps its original min-outs, which still
// bound the acceptable fill.
func (p *Pipeline) reprice(ctx context.Context, opp *arbDomain.Opportunity, gen uint64) error {
	graph := p.graphs.Graph()
	if graph == nil || graph.Generation() != gen {
		return apperror.New(apperror.CodeStaleGeneration,
			apperror.WithContext("graph moved on during retry"))
	}

	amount := opp.BorrowAmount
	for _, step := range opp.Steps {
		pool := poolByAddress(graph, step.TokenIn, step.PoolAddress)
		if pool == nil {
			return apperror.New(apperror.CodeStaleGeneration,
				apperror.WithContext("pool left the graph during retry"))
		}
		out, ok := pool.AmountOut(step.TokenIn, amount)
		if !ok || !out.IsPositive() {
			return apperror.New(apperror.CodeBrokenPath,
				apperror.WithContext("step cannot be priced against current reserves"))
		}
		amount = out
	}

	newGross := opp.GrossProfit.Add(amount.Sub(opp.ExpectedOut()))
	if !newGross.IsPositive() {
		return apperror.New(apperror.CodeUnprofitable,
			apperror.WithContext("path no longer profitable at current reserves"))
	}

	p.logger.Info(ctx, "path repriced against newer graph",
		"opportunity_id", opp.ID, "generation", gen, "gross", newGross.String())
	opp.Steps[len(opp.Steps)-1].ExpectedOut = amount
	opp.GrossProfit = newGross
	opp.Generation = gen
	return nil
}

func poolByAddress(graph *marketDomain.Graph, token asset.AssetID, addr string) *marketDomain.Pool {
	want := common.HexToAddress(addr)
	for _, p := range graph.PoolsFor(token) {
		if p.Address == want {
			return p
		}
	}
	return nil
}

// confirm waits for the configured confirmation depth.
func (p *Pipeline) confirm(ctx context.Context, exec *domain.Execution) error {
	if err := exec.Advance(domain.StageMonitoring, exec.TxHash.Hex()); err != nil {
		return err
	}

	confirmCtx := ctx
	if p.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		confirmCtx, cancel = context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := p.confirmer.WaitConfirmed(confirmCtx, exec.TxHash, p.cfg.ConfirmDepth)
	if err != nil {
		return err
	}
	exec.Receipt = receipt

	if receipt.Reverted {
		return apperror.New(apperror.CodeTransactionReverted,
			apperror.WithContext("arbitrage transaction reverted on-chain"))
	}
	return nil
}

func (p *Pipeline) complete(ctx context.Context, span trace.Span, exec *domain.Execution) *domain.Execution {
	opp := exec.Opportunity
	if err := exec.Advance(domain.StageCompleted, ""); err != nil {
		return p.fail(ctx, span, exec, err)
	}
	_ = opp.TransitionTo(arbDomain.StatusConfirmed)

	realized := exec.RealizedProfit()
	p.gate.RecordOutcome(ctx, opp.ID, true, realized)
	p.book.Close(opp.ID, realized)
	p.stats.RecordSuccess(exec.Receipt, realized)

	p.metrics.completed.Add(ctx, 1)
	profit, _ := realized.Float64()
	p.metrics.profit.Add(ctx, profit)
	p.metrics.duration.Record(ctx, exec.Duration().Seconds())
	span.SetStatus(codes.Ok, "")

	p.logger.Info(ctx, "execution completed",
		"opportunity_id", opp.ID, "tx", exec.TxHash.Hex(),
		"profit", realized.String(),
		"gas_deviation_eth", exec.GasDeviationETH().String(),
		"duration", exec.Duration().String())
	p.publish(Event{Type: EventCompleted, OpportunityID: opp.ID, Stage: exec.Stage, Profit: realized, At: time.Now()})
	return exec
}

// reject terminates before any funds were committed: no breaker feedback
// beyond what the gate itself recorded, no position to settle.
func (p *Pipeline) reject(ctx context.Context, span trace.Span, exec *domain.Execution, cause error) *domain.Execution {
	opp := exec.Opportunity
	exec.Fail(cause)
	_ = opp.TransitionTo(arbDomain.StatusRejected)

	p.stats.RecordRejected()
	p.metrics.rejected.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", string(apperror.GetCode(cause)))))
	span.RecordError(cause)

	p.logger.Debug(ctx, "opportunity rejected",
		"opportunity_id", opp.ID, "error", cause.Error())
	p.publish(Event{Type: EventRejected, OpportunityID: opp.ID, Stage: exec.Stage, Err: cause, At: time.Now()})
	return exec
}

// fail terminates after admission: the reservation is released, the loss
// (gas spend for reverted transactions) feeds the breaker, and the
// position closes.
func (p *Pipeline) fail(ctx context.Context, span trace.Span, exec *domain.Execution, cause error) *domain.Execution {
	opp := exec.Opportunity
	exec.Fail(cause)
	_ = opp.TransitionTo(arbDomain.StatusFailed)

	loss := decimal.Zero
	if exec.Receipt != nil && exec.Receipt.Reverted {
		loss = exec.Receipt.GasCostETH().Neg()
	}
	p.gate.RecordOutcome(ctx, opp.ID, false, loss)
	p.book.Close(opp.ID, loss)
	p.stats.RecordFailure(exec.Receipt, loss)

	p.metrics.failed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", string(apperror.GetCode(cause)))))
	p.metrics.duration.Record(ctx, exec.Duration().Seconds())
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	p.logger.Error(ctx, "execution failed",
		"opportunity_id", opp.ID, "stage", string(exec.Stage), "error", cause.Error())
	p.publish(Event{Type: EventFailed, OpportunityID: opp.ID, Stage: exec.Stage, Err: cause, At: time.Now()})
	return exec
}

// publish sends without blocking; the monitor keeps up in practice and a
// full buffer must not stall a worker.
func (p *Pipeline) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
	}
}
