// Package cex maintains centralized-exchange order-book snapshots and
// presents them to the graph as a synthetic venue: each book becomes a
// pseudo-pool whose reserves reflect visible depth around the mid price,
// so the spatial detector can compare CEX and DEX prices uniformly.
package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/market/app"
	"github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/asset"
	"github.com/fd1az/flasharb/internal/httpclient"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/market/infra/cex"
	meterName  = "github.com/fd1az/flasharb/business/market/infra/cex"
)

// Ensure Feed implements the port.
var _ app.PoolStateFetcher = (*Feed)(nil)

// SymbolMapping binds an exchange symbol to the token pair it trades.
type SymbolMapping struct {
	Symbol string
	Base   asset.AssetID
	Quote  asset.AssetID
}

// FeedConfig holds order-book feed configuration.
type FeedConfig struct {
	BaseURL      string
	RESTBaseURL  string
	Symbols      []SymbolMapping
	DepthSpeedMs int
	TakerFeeBps  decimal.Decimal
	StaleAfter   time.Duration
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig(baseURL string, symbols []SymbolMapping) FeedConfig {
	return FeedConfig{
		BaseURL:      baseURL,
		RESTBaseURL:  "https://api.binance.com",
		Symbols:      symbols,
		DepthSpeedMs: 100,
		TakerFeeBps:  decimal.NewFromInt(10),
		StaleAfter:   5 * time.Second,
	}
}

type bookState struct {
	snapshot   DepthSnapshot
	receivedAt time.Time
}

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	messagesReceived metric.Int64Counter
	depthUpdates     metric.Int64Counter
	parseErrors      metric.Int64Counter
	staleBooks       metric.Int64Counter
}

// Feed is the order-book snapshot feed.
type Feed struct {
	config  FeedConfig
	logger  logger.LoggerInterface
	mapping map[string]SymbolMapping

	conn   *wsconn.Client
	connMu sync.RWMutex
	rest   httpclient.Client

	books   map[string]bookState
	booksMu sync.RWMutex

	tracer  trace.Tracer
	metrics *feedMetrics
}

// NewFeed creates an order-book feed.
func NewFeed(cfg FeedConfig, log logger.LoggerInterface) (*Feed, error) {
	mapping := make(map[string]SymbolMapping, len(cfg.Symbols))
	for _, m := range cfg.Symbols {
		mapping[strings.ToUpper(m.Symbol)] = m
	}

	rest, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("cex-rest"))
	if err != nil {
		return nil, fmt.Errorf("create rest client: %w", err)
	}

	f := &Feed{
		config:  cfg,
		logger:  log,
		mapping: mapping,
		rest:    rest,
		books:   make(map[string]bookState),
		tracer:  otel.Tracer(tracerName),
	}

	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return f, nil
}

func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.messagesReceived, err = meter.Int64Counter(
		"cex_messages_total",
		metric.WithDescription("Total messages received"),
	)
	if err != nil {
		return err
	}

	f.metrics.depthUpdates, err = meter.Int64Counter(
		"cex_depth_updates_total",
		metric.WithDescription("Total depth snapshots received"),
	)
	if err != nil {
		return err
	}

	f.metrics.parseErrors, err = meter.Int64Counter(
		"cex_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	if err != nil {
		return err
	}

	f.metrics.staleBooks, err = meter.Int64Counter(
		"cex_stale_books_total",
		metric.WithDescription("Books skipped for staleness"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Connect establishes the WebSocket connection to the combined depth streams.
func (f *Feed) Connect(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "cex.connect",
		trace.WithAttributes(attribute.Int("symbols", len(f.config.Symbols))),
	)
	defer span.End()

	streamURL, err := f.buildStreamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(streamURL, "cex-depth")
	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeOrderbookFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}

	conn.OnMessage(f.handleMessage)

	if err := conn.ConnectWithRetry(ctx); err != nil {
		return apperror.New(apperror.CodeOrderbookFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect to depth streams"))
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	// Seed books over REST so the first graph refresh does not wait for
	// stream updates. Failures are non-fatal; the stream fills the gap.
	f.primeBooks(ctx)

	f.logger.Info(ctx, "cex feed connected", "url", streamURL)
	return nil
}

// primeBooks fetches an initial depth snapshot per symbol. A snapshot
// never overwrites a book the stream already delivered.
func (f *Feed) primeBooks(ctx context.Context) {
	for symbol := range f.mapping {
		snap, err := f.fetchSnapshot(ctx, symbol)
		if err != nil {
			f.logger.Warn(ctx, "depth snapshot fetch failed", "symbol", symbol, "error", err.Error())
			continue
		}
		snap.Symbol = symbol

		f.booksMu.Lock()
		if _, ok := f.books[symbol]; !ok {
			f.books[symbol] = bookState{snapshot: snap, receivedAt: time.Now()}
		}
		f.booksMu.Unlock()
		f.metrics.depthUpdates.Add(ctx, 1)
	}
}

func (f *Feed) fetchSnapshot(ctx context.Context, symbol string) (DepthSnapshot, error) {
	var snap DepthSnapshot
	resp, err := f.rest.NewRequest().
		SetQueryParam("symbol", strings.ToUpper(symbol)).
		SetQueryParam("limit", "50").
		SetResult(&snap).
		Get(ctx, f.config.RESTBaseURL+"/api/v3/depth")
	if err != nil {
		return snap, err
	}
	if resp.IsError() {
		return snap, fmt.Errorf("depth snapshot for %s: status %d", symbol, resp.StatusCode)
	}
	return snap, nil
}

func (f *Feed) buildStreamURL() (string, error) {
	if len(f.config.Symbols) == 0 {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no cex symbols configured"))
	}

	streams := make([]string, 0, len(f.config.Symbols))
	for _, m := range f.config.Symbols {
		streams = append(streams, DepthStream(m.Symbol, f.config.DepthSpeedMs))
	}

	u, err := url.Parse(f.config.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// handleMessage processes incoming stream messages.
func (f *Feed) handleMessage(ctx context.Context, data []byte) {
	f.metrics.messagesReceived.Add(ctx, 1)

	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil {
			return // subscription ack
		}
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}

	if !strings.Contains(event.Stream, "@depth") {
		return
	}

	var depth DepthSnapshot
	if err := json.Unmarshal(event.Data, &depth); err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		f.logger.Warn(ctx, "failed to parse depth snapshot", "stream", event.Stream, "error", err)
		return
	}
	depth.Symbol = symbolFromStream(event.Stream)

	f.booksMu.Lock()
	f.books[depth.Symbol] = bookState{snapshot: depth, receivedAt: time.Now()}
	f.booksMu.Unlock()

	f.metrics.depthUpdates.Add(ctx, 1)
}

// Venue identifies this fetcher as the synthetic CEX venue.
func (f *Feed) Venue() domain.Venue {
	return domain.VenueCEX
}

// FetchPools converts the latest book snapshots into synthetic pools. Stale
// or missing books are skipped.
func (f *Feed) FetchPools(ctx context.Context, generation uint64) ([]*domain.Pool, error) {
	_, span := f.tracer.Start(ctx, "cex.fetch_pools")
	defer span.End()

	now := time.Now()
	pools := make([]*domain.Pool, 0, len(f.mapping))

	f.booksMu.RLock()
	defer f.booksMu.RUnlock()

	for symbol, m := range f.mapping {
		state, ok := f.books[symbol]
		if !ok {
			continue
		}
		if f.config.StaleAfter > 0 && now.Sub(state.receivedAt) > f.config.StaleAfter {
			f.metrics.staleBooks.Add(ctx, 1)
			continue
		}

		pool, err := f.bookToPool(m, state, generation)
		if err != nil {
			f.logger.Warn(ctx, "book conversion failed", "symbol", symbol, "error", err)
			continue
		}
		pools = append(pools, pool)
	}

	span.SetAttributes(attribute.Int("pools", len(pools)))
	return pools, nil
}

// bookToPool derives pseudo-reserves from visible depth: base reserve is the
// quantity on both sides of the book, quote reserve is that quantity at the
// mid price. The resulting constant-product pool quotes approximately the
// mid price for small trades and degrades with size, mirroring how the book
// itself would fill.
func (f *Feed) bookToPool(m SymbolMapping, state bookState, generation uint64) (*domain.Pool, error) {
	snap := state.snapshot
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return nil, fmt.Errorf("empty book for %s", m.Symbol)
	}

	bestBid, err := decimal.NewFromString(snap.Bids[0][0])
	if err != nil {
		return nil, err
	}
	bestAsk, err := decimal.NewFromString(snap.Asks[0][0])
	if err != nil {
		return nil, err
	}
	mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return nil, fmt.Errorf("non-positive mid for %s", m.Symbol)
	}

	baseDepth := decimal.Zero
	for _, lvl := range snap.Bids {
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			continue
		}
		baseDepth = baseDepth.Add(qty)
	}
	for _, lvl := range snap.Asks {
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			continue
		}
		baseDepth = baseDepth.Add(qty)
	}
	if !baseDepth.IsPositive() {
		return nil, fmt.Errorf("no depth for %s", m.Symbol)
	}

	return &domain.Pool{
		Address:        syntheticAddress(m.Symbol),
		Venue:          domain.VenueCEX,
		Token0:         m.Base,
		Token1:         m.Quote,
		Reserve0:       baseDepth,
		Reserve1:       baseDepth.Mul(mid),
		FeeBps:         f.config.TakerFeeBps,
		BlockTimestamp: state.receivedAt,
		Generation:     generation,
	}, nil
}

// syntheticAddress derives a stable pseudo-address for a symbol's book.
func syntheticAddress(symbol string) common.Address {
	hash := crypto.Keccak256([]byte("cex-book:" + strings.ToUpper(symbol)))
	return common.BytesToAddress(hash[12:])
}

// Close closes the feed.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// IsConnected reports whether the stream connection is up.
func (f *Feed) IsConnected() bool {
	f.connMu.RLock()
	defer f.connMu.RUnlock()
	return f.conn != nil && f.conn.IsConnected()
}
