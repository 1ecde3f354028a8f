package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flasharb/business/risk/domain"
	"github.com/fd1az/flasharb/internal/cache"
	"github.com/fd1az/flasharb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flasharb/business/risk/app"
	meterName  = "github.com/fd1az/flasharb/business/risk/app"
)

// HubConfig holds sensor hub tuning.
type HubConfig struct {
	CacheTTL        time.Duration
	DegradedReading float64 // reading substituted when a sensor fails
}

type hubMetrics struct {
	samples        metric.Int64Counter
	degradedReads  metric.Int64Counter
	lastCongestion metric.Float64Gauge
	lastDensity    metric.Float64Gauge
}

// HubSnapshot is a point-in-time metrics view for debugging.
type HubSnapshot struct {
	Congestion    float64
	Density       float64
	Samples       uint64
	DegradedReads uint64
}

// SensorHub serves cached sensor readings. A sensor failure degrades to a
// fixed mid-scale reading instead of blocking the pipeline.
type SensorHub struct {
	config     HubConfig
	congestion Sensor
	density    Sensor
	logger     logger.LoggerInterface

	readings *cache.Cache[string, float64]

	sampleCount   atomic.Uint64
	degradedCount atomic.Uint64
	lastCong      atomic.Value // float64
	lastDens      atomic.Value // float64

	tracer  trace.Tracer
	metrics *hubMetrics
}

// NewSensorHub creates a sensor hub.
func NewSensorHub(cfg HubConfig, congestion, density Sensor, log logger.LoggerInterface) (*SensorHub, error) {
	h := &SensorHub{
		config:     cfg,
		congestion: congestion,
		density:    density,
		logger:     log,
		readings:   cache.New[string, float64](time.Minute),
		tracer:     otel.Tracer(tracerName),
	}
	h.lastCong.Store(0.0)
	h.lastDens.Store(0.0)

	if err := h.initMetrics(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *SensorHub) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	h.metrics = &hubMetrics{}

	h.metrics.samples, err = meter.Int64Counter(
		"risk_sensor_samples_total",
		metric.WithDescription("Sensor samples taken"),
	)
	if err != nil {
		return err
	}

	h.metrics.degradedReads, err = meter.Int64Counter(
		"risk_sensor_degraded_total",
		metric.WithDescription("Sensor failures substituted with the degraded reading"),
	)
	if err != nil {
		return err
	}

	h.metrics.lastCongestion, err = meter.Float64Gauge(
		"risk_congestion",
		metric.WithDescription("Last congestion reading"),
	)
	if err != nil {
		return err
	}

	h.metrics.lastDensity, err = meter.Float64Gauge(
		"risk_searcher_density",
		metric.WithDescription("Last searcher density reading"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Signals returns the current network signals, reading through the cache.
func (h *SensorHub) Signals(ctx context.Context) domain.NetworkSignals {
	ctx, span := h.tracer.Start(ctx, "risk.signals")
	defer span.End()

	congestion, degradedC := h.read(ctx, h.congestion)
	density, degradedD := h.read(ctx, h.density)

	h.lastCong.Store(congestion)
	h.lastDens.Store(density)
	h.metrics.lastCongestion.Record(ctx, congestion)
	h.metrics.lastDensity.Record(ctx, density)

	span.SetAttributes(
		attribute.Float64("congestion", congestion),
		attribute.Float64("density", density),
	)

	return domain.NetworkSignals{
		Congestion:      congestion,
		SearcherDensity: density,
		SampledAt:       time.Now(),
		Degraded:        degradedC || degradedD,
	}
}

// read returns the cached reading or samples the sensor, substituting the
// degraded reading on failure.
func (h *SensorHub) read(ctx context.Context, sensor Sensor) (float64, bool) {
	if v, found := h.readings.Get(ctx, sensor.Name()); found {
		return v, false
	}

	h.sampleCount.Add(1)
	h.metrics.samples.Add(ctx, 1, metric.WithAttributes(attribute.String("sensor", sensor.Name())))

	v, err := sensor.Sample(ctx)
	if err != nil {
		h.degradedCount.Add(1)
		h.metrics.degradedReads.Add(ctx, 1, metric.WithAttributes(attribute.String("sensor", sensor.Name())))
		h.logger.Warn(ctx, "sensor sample failed, using degraded reading",
			"sensor", sensor.Name(), "reading", h.config.DegradedReading, "error", err)
		return h.config.DegradedReading, true
	}

	h.readings.Set(ctx, sensor.Name(), v, h.config.CacheTTL)
	return v, false
}

// Metrics returns a snapshot of the hub's counters and last readings.
func (h *SensorHub) Metrics() HubSnapshot {
	return HubSnapshot{
		Congestion:    h.lastCong.Load().(float64),
		Density:       h.lastDens.Load().(float64),
		Samples:       h.sampleCount.Load(),
		DegradedReads: h.degradedCount.Load(),
	}
}

// Close releases the hub's cache resources.
func (h *SensorHub) Close() {
	h.readings.Close()
}
