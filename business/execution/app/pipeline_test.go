package app

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/flasharb/business/blockchain/domain"
	"github.com/fd1az/flasharb/business/execution/domain"
	fundingDomain "github.com/fd1az/flasharb/business/funding/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	riskDomain "github.com/fd1az/flasharb/business/risk/domain"
	safetyApp "github.com/fd1az/flasharb/business/safety/app"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/logger"
)

type fakeRisk struct{ net decimal.Decimal }

func (f *fakeRisk) Assess(ctx context.Context, opp *arbDomain.Opportunity) *riskDomain.RiskAssessment {
	return &riskDomain.RiskAssessment{OpportunityID: opp.ID, AdjustedNet: f.net}
}

type outcome struct {
	id      string
	success bool
	pnl     decimal.Decimal
}

type fakeGate struct {
	mu       sync.Mutex
	admitErr error
	approve  decimal.Decimal // zero means approve the requested amount
	outcomes []outcome
}

func (f *fakeGate) Admit(ctx context.Context, opp *arbDomain.Opportunity, assessment *riskDomain.RiskAssessment) (safetyApp.Approval, error) {
	if f.admitErr != nil {
		return safetyApp.Approval{}, f.admitErr
	}
	amount := f.approve
	if amount.IsZero() {
		amount = opp.BorrowAmount
	}
	return safetyApp.Approval{OpportunityID: opp.ID, Amount: amount, Partial: amount.LessThan(opp.BorrowAmount)}, nil
}

func (f *fakeGate) RecordOutcome(ctx context.Context, id string, success bool, pnl decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome{id: id, success: success, pnl: pnl})
}

func (f *fakeGate) BreakerState() string { return "closed" }

func (f *fakeGate) Exposure() decimal.Decimal { return decimal.Zero }

func (f *fakeGate) recorded() []outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outcome(nil), f.outcomes...)
}

type fakeFunding struct{ err error }

func (f *fakeFunding) Select(ctx context.Context, symbol string, amount decimal.Decimal, chainID uint64) (*fundingDomain.Plan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fundingDomain.Plan{
		Asset:  symbol,
		Amount: amount,
		Legs:   []fundingDomain.Leg{{Source: "balancer", Amount: amount, Fee: decimal.Zero}},
	}, nil
}

type fakeGas struct{}

func (fakeGas) GetGasPrice(ctx context.Context) (*blockchainDomain.GasPrice, error) {
	return blockchainDomain.NewGasPrice(big.NewInt(50_000_000_000)), nil
}

func (fakeGas) GetGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

type fakeNonces struct {
	mu      sync.Mutex
	next    uint64
	resyncs int
}

func (f *fakeNonces) Next(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.next
	f.next++
	return n, nil
}

func (f *fakeNonces) Resync(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncs++
	return nil
}

// fakeSubmitter returns scripted errors before succeeding. The hook, if
// set, runs once on the first attempt so tests can shift the world
// between submission and retry.
type fakeSubmitter struct {
	mu    sync.Mutex
	fails []error
	seen  []*TxRequest
	hook  func()
}

func (f *fakeSubmitter) Submit(ctx context.Context, req *TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := *req
	f.seen = append(f.seen, &snapshot)
	if f.hook != nil {
		f.hook()
		f.hook = nil
	}
	if len(f.fails) > 0 {
		err := f.fails[0]
		f.fails = f.fails[1:]
		return common.Hash{}, err
	}
	return common.HexToHash("0xabc123"), nil
}

type fakeConfirmer struct {
	receipt *domain.Receipt
	err     error
}

func (f *fakeConfirmer) WaitConfirmed(ctx context.Context, hash common.Hash, depth uint64) (*domain.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.receipt
	r.TxHash = hash
	return &r, nil
}

type fakeGraphs struct {
	gen   uint64
	graph *marketDomain.Graph
}

func (f *fakeGraphs) Generation() uint64 { return f.gen }

func (f *fakeGraphs) Graph() *marketDomain.Graph { return f.graph }

type pipelineFixture struct {
	pipeline  *Pipeline
	gate      *fakeGate
	nonces    *fakeNonces
	submitter *fakeSubmitter
	confirmer *fakeConfirmer
	graphs    *fakeGraphs
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		gate:      &fakeGate{},
		nonces:    &fakeNonces{next: 7},
		submitter: &fakeSubmitter{},
		confirmer: &fakeConfirmer{receipt: &domain.Receipt{
			BlockNumber:       100,
			GasUsed:           400000,
			EffectiveGasPrice: big.NewInt(40_000_000_000),
			Confirmations:     2,
			ConfirmedAt:       time.Now(),
		}},
		graphs: &fakeGraphs{gen: 7},
	}

	p, err := NewPipeline(
		PipelineConfig{
			ChainID:             1,
			MaxWorkers:          2,
			OpportunityDeadline: 5 * time.Second,
			ConfirmDepth:        2,
			ConfirmTimeout:      time.Second,
		},
		asset.DefaultRegistry(),
		&fakeRisk{net: decimal.RequireFromString("0.05")},
		f.gate,
		&fakeFunding{},
		fakeGas{},
		f.nonces,
		f.submitter,
		f.confirmer,
		f.graphs,
		testBuilder(),
		NewRecovery(RecoveryConfig{MaxRetries: 2, Backoff: time.Millisecond, GasBumpMultiplier: 1.25}),
		logger.New(io.Discard, logger.LevelInfo, "test", nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	f.pipeline = p
	return f
}

func TestPipelineCompletesOpportunity(t *testing.T) {
	f := newPipelineFixture(t)
	opp := testOpportunity()

	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed (err: %v)", exec.Stage, exec.Err)
	}
	if opp.Status != arbDomain.StatusConfirmed {
		t.Errorf("opportunity status = %s, want confirmed", opp.Status)
	}
	if exec.Nonce != 7 {
		t.Errorf("nonce = %d, want 7", exec.Nonce)
	}
	if exec.Plan == nil || exec.Plan.PrimarySource() != "balancer" {
		t.Error("funding plan not recorded on the execution")
	}

	outcomes := f.gate.recorded()
	if len(outcomes) != 1 || !outcomes[0].success {
		t.Fatalf("gate outcomes = %+v, want one success", outcomes)
	}
	// 0.1 gross plus the 90k-gas under-run at the 40 gwei effective price.
	wantPnl := decimal.RequireFromString("0.1036")
	if !outcomes[0].pnl.Equal(wantPnl) {
		t.Errorf("pnl = %s, want %s", outcomes[0].pnl, wantPnl)
	}

	stats := f.pipeline.Stats()
	if stats.Received != 1 || stats.Succeeded != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if f.pipeline.OpenPositions() != 0 {
		t.Error("position left open after completion")
	}
}

func TestPipelineRejectsStaleGeneration(t *testing.T) {
	f := newPipelineFixture(t)
	f.graphs.gen = 8 // graph moved on

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", exec.Stage)
	}
	if opp.Status != arbDomain.StatusRejected {
		t.Errorf("opportunity status = %s, want rejected", opp.Status)
	}
	if apperror.GetCode(exec.Err) != apperror.CodeStaleGeneration {
		t.Errorf("err = %v, want stale generation", exec.Err)
	}
	// Nothing was admitted, so nothing to settle.
	if len(f.gate.recorded()) != 0 {
		t.Error("rejection fed the gate an outcome")
	}
	if len(f.submitter.seen) != 0 {
		t.Error("rejected opportunity was submitted")
	}
}

func TestPipelineRejectsWhenGateDenies(t *testing.T) {
	f := newPipelineFixture(t)
	f.gate.admitErr = apperror.New(apperror.CodePolicyViolation)

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", exec.Stage)
	}
	if opp.Status != arbDomain.StatusRejected {
		t.Errorf("opportunity status = %s, want rejected", opp.Status)
	}
	if f.pipeline.Stats().Rejected != 1 {
		t.Error("rejection not counted")
	}
}

func TestPipelineRetriesNonceConflict(t *testing.T) {
	f := newPipelineFixture(t)
	f.submitter.fails = []error{apperror.New(apperror.CodeNonceConflict)}

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed (err: %v)", exec.Stage, exec.Err)
	}
	if f.nonces.resyncs != 1 {
		t.Errorf("resyncs = %d, want 1", f.nonces.resyncs)
	}
	if exec.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", exec.Attempts)
	}
	// The retry carried a fresh nonce.
	if len(f.submitter.seen) != 2 || f.submitter.seen[1].Nonce != 8 {
		t.Errorf("retry nonce = %d, want 8", f.submitter.seen[1].Nonce)
	}
}

func TestPipelineBumpsGasWhenUnderpriced(t *testing.T) {
	f := newPipelineFixture(t)
	f.submitter.fails = []error{apperror.New(apperror.CodeGasUnderpriced)}

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed (err: %v)", exec.Stage, exec.Err)
	}
	first := f.submitter.seen[0].GasFeeCap
	second := f.submitter.seen[1].GasFeeCap
	if second.Cmp(first) <= 0 {
		t.Errorf("fee cap not bumped: %s then %s", first, second)
	}
}

// repriceGraph rebuilds the two pools of testOpportunity at generation 8.
// The second pool's WETH reserve decides whether the path stays
// profitable: 10100 keeps a thin edge, 10000 kills it.
func repriceGraph(wethReserve string) *marketDomain.Graph {
	pools := []*marketDomain.Pool{
		{
			Address:        common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Venue:          marketDomain.VenueUniswapV2,
			Token0:         asset.IDEthereumWETH,
			Token1:         asset.IDEthereumUSDC,
			Reserve0:       decimal.NewFromInt(10000),
			Reserve1:       decimal.NewFromInt(20_000_000),
			FeeBps:         decimal.NewFromInt(30),
			BlockTimestamp: time.Now(),
			Generation:     8,
		},
		{
			Address:        common.HexToAddress("0x0000000000000000000000000000000000000002"),
			Venue:          marketDomain.VenueSushiswap,
			Token0:         asset.IDEthereumUSDC,
			Token1:         asset.IDEthereumWETH,
			Reserve0:       decimal.NewFromInt(20_000_000),
			Reserve1:       decimal.RequireFromString(wethReserve),
			FeeBps:         decimal.NewFromInt(30),
			BlockTimestamp: time.Now(),
			Generation:     8,
		},
	}
	return marketDomain.NewGraph(pools, 8)
}

func TestPipelineRepricesWhenGraphMovesOn(t *testing.T) {
	f := newPipelineFixture(t)
	f.submitter.fails = []error{apperror.New(apperror.CodeEthereumRPCError)}
	f.submitter.hook = func() {
		f.graphs.gen = 8
		f.graphs.graph = repriceGraph("10100")
	}

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed (err: %v)", exec.Stage, exec.Err)
	}
	if opp.Generation != 8 {
		t.Errorf("generation = %d, want the repriced 8", opp.Generation)
	}
	if !opp.GrossProfit.IsPositive() {
		t.Errorf("repriced gross = %s, want positive", opp.GrossProfit)
	}
	if opp.GrossProfit.Equal(decimal.RequireFromString("0.1")) {
		t.Error("gross profit not repriced against the new reserves")
	}
	if len(f.submitter.seen) != 2 {
		t.Errorf("submissions = %d, want a retry after repricing", len(f.submitter.seen))
	}
}

func TestPipelineStopsRetryWhenRepricedUnprofitable(t *testing.T) {
	f := newPipelineFixture(t)
	f.submitter.fails = []error{apperror.New(apperror.CodeEthereumRPCError)}
	f.submitter.hook = func() {
		f.graphs.gen = 8
		f.graphs.graph = repriceGraph("10000")
	}

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", exec.Stage)
	}
	if apperror.GetCode(exec.Err) != apperror.CodeUnprofitable {
		t.Errorf("err = %v, want unprofitable", exec.Err)
	}
	if len(f.submitter.seen) != 1 {
		t.Errorf("submissions = %d, retried a path that no longer pays", len(f.submitter.seen))
	}

	// Post-admission stop: the reservation is released as a failure.
	outcomes := f.gate.recorded()
	if len(outcomes) != 1 || outcomes[0].success {
		t.Fatalf("gate outcomes = %+v, want one failure", outcomes)
	}
}

func TestPipelineSettlesGateOnPostAdmissionError(t *testing.T) {
	f := newPipelineFixture(t)

	// A lifecycle that already moved past Identified makes the validated
	// transition fail right after the gate admits.
	opp := testOpportunity()
	opp.Status = arbDomain.StatusValidated

	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", exec.Stage)
	}
	outcomes := f.gate.recorded()
	if len(outcomes) != 1 || outcomes[0].success {
		t.Fatalf("gate outcomes = %+v, want the reservation released as a failure", outcomes)
	}
	if !outcomes[0].pnl.IsZero() {
		t.Errorf("pnl = %s, want zero for a trade that never committed", outcomes[0].pnl)
	}
	if len(f.submitter.seen) != 0 {
		t.Error("submitted after validation died")
	}
}

func TestPipelineFailsOnRevert(t *testing.T) {
	f := newPipelineFixture(t)
	f.confirmer.receipt.Reverted = true

	opp := testOpportunity()
	exec := f.pipeline.Execute(context.Background(), opp)

	if exec.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want failed", exec.Stage)
	}
	if opp.Status != arbDomain.StatusFailed {
		t.Errorf("opportunity status = %s, want failed", opp.Status)
	}

	outcomes := f.gate.recorded()
	if len(outcomes) != 1 || outcomes[0].success {
		t.Fatalf("gate outcomes = %+v, want one failure", outcomes)
	}
	// Reverted trades lose the gas spend: 400k gas at 40 gwei.
	wantLoss := decimal.RequireFromString("-0.016")
	if !outcomes[0].pnl.Equal(wantLoss) {
		t.Errorf("pnl = %s, want %s", outcomes[0].pnl, wantLoss)
	}
	if f.pipeline.OpenPositions() != 0 {
		t.Error("position left open after failure")
	}
}

func TestPipelineRunDrainsChannel(t *testing.T) {
	f := newPipelineFixture(t)

	in := make(chan *arbDomain.Opportunity, 3)
	for i := 0; i < 3; i++ {
		in <- testOpportunity()
	}
	close(in)

	if err := f.pipeline.Run(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	stats := f.pipeline.Stats()
	if stats.Received != 3 || stats.Succeeded != 3 {
		t.Errorf("stats = %+v, want 3 received and succeeded", stats)
	}
}
