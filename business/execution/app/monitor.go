package app

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/execution/domain"
	"github.com/fd1az/flasharb/internal/logger"
)

// AlertType classifies monitor alerts.
type AlertType string

const (
	AlertBreakerOpen   AlertType = "breaker-open"
	AlertBreakerClosed AlertType = "breaker-closed"
	AlertFailureBurst  AlertType = "failure-burst"
)

// Alert is an operator-facing condition raised by the monitor.
type Alert struct {
	Type    AlertType
	Message string
	At      time.Time
}

// HealthSnapshot is the pipeline state on request.
type HealthSnapshot struct {
	BreakerState  string
	Exposure      decimal.Decimal
	OpenPositions int
	OpenNotional  decimal.Decimal
	Stats         domain.Stats
	LastEvent     time.Time
}

// MonitorConfig holds alerting thresholds.
type MonitorConfig struct {
	PollInterval time.Duration
	// Consecutive failed executions that raise a failure-burst alert.
	FailureBurst int
	AlertBuffer  int
}

// Monitor consumes pipeline events, watches the breaker, and aggregates
// health. Alerts go out on a buffered channel; a full buffer drops.
type Monitor struct {
	cfg      MonitorConfig
	pipeline *Pipeline
	gate     AdmissionGate
	logger   logger.LoggerInterface

	alerts chan Alert

	mu           sync.Mutex
	lastEvent    time.Time
	failStreak   int
	breakerState string
}

// NewMonitor creates a pipeline monitor.
func NewMonitor(cfg MonitorConfig, pipeline *Pipeline, gate AdmissionGate, log logger.LoggerInterface) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.FailureBurst <= 0 {
		cfg.FailureBurst = 3
	}
	if cfg.AlertBuffer <= 0 {
		cfg.AlertBuffer = 16
	}
	return &Monitor{
		cfg:      cfg,
		pipeline: pipeline,
		gate:     gate,
		logger:   log,
		alerts:   make(chan Alert, cfg.AlertBuffer),
	}
}

// Alerts returns the outbound alert channel.
func (m *Monitor) Alerts() <-chan Alert {
	return m.alerts
}

// Run consumes pipeline events and polls the breaker until the context
// is cancelled or the event channel closes.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	events := m.pipeline.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.observe(ctx, ev)
		case <-ticker.C:
			m.pollBreaker(ctx)
		}
	}
}

// Health returns the current snapshot.
func (m *Monitor) Health() HealthSnapshot {
	m.mu.Lock()
	lastEvent := m.lastEvent
	m.mu.Unlock()

	return HealthSnapshot{
		BreakerState:  m.gate.BreakerState(),
		Exposure:      m.gate.Exposure(),
		OpenPositions: m.pipeline.OpenPositions(),
		OpenNotional:  m.pipeline.OpenNotional(),
		Stats:         m.pipeline.Stats(),
		LastEvent:     lastEvent,
	}
}

func (m *Monitor) observe(ctx context.Context, ev Event) {
	m.mu.Lock()
	m.lastEvent = ev.At

	switch ev.Type {
	case EventFailed:
		m.failStreak++
		streak := m.failStreak
		m.mu.Unlock()
		if streak == m.cfg.FailureBurst {
			m.raise(ctx, Alert{
				Type:    AlertFailureBurst,
				Message: "consecutive execution failures",
				At:      time.Now(),
			})
		}
	case EventCompleted:
		m.failStreak = 0
		m.mu.Unlock()
	default:
		m.mu.Unlock()
	}
}

func (m *Monitor) pollBreaker(ctx context.Context) {
	state := m.gate.BreakerState()

	m.mu.Lock()
	prev := m.breakerState
	m.breakerState = state
	m.mu.Unlock()

	if prev == state || prev == "" {
		return
	}
	switch state {
	case "open":
		m.raise(ctx, Alert{Type: AlertBreakerOpen, Message: "trading breaker opened", At: time.Now()})
	case "closed":
		m.raise(ctx, Alert{Type: AlertBreakerClosed, Message: "trading breaker closed", At: time.Now()})
	}
}

func (m *Monitor) raise(ctx context.Context, a Alert) {
	m.logger.Warn(ctx, "monitor alert", "type", string(a.Type), "message", a.Message)
	select {
	case m.alerts <- a:
	default:
	}
}
