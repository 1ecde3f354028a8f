// Command flasharb runs the flash-loan arbitrage engine: market graph,
// detectors, risk model, safety gate, funding selector, and the
// execution pipeline, assembled as one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fd1az/flasharb/business/arbitrage"
	"github.com/fd1az/flasharb/business/blockchain"
	blockchainDI "github.com/fd1az/flasharb/business/blockchain/di"
	blockchainDomain "github.com/fd1az/flasharb/business/blockchain/domain"
	"github.com/fd1az/flasharb/business/execution"
	execDI "github.com/fd1az/flasharb/business/execution/di"
	"github.com/fd1az/flasharb/business/funding"
	"github.com/fd1az/flasharb/business/market"
	marketDI "github.com/fd1az/flasharb/business/market/di"
	"github.com/fd1az/flasharb/business/risk"
	"github.com/fd1az/flasharb/business/safety"
	"github.com/fd1az/flasharb/internal/apm"
	"github.com/fd1az/flasharb/internal/config"
	"github.com/fd1az/flasharb/internal/health"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/metrics"
	"github.com/fd1az/flasharb/internal/monolith"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "shutdown with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.LoggerInterface) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(ctx, "starting", "version", version, "environment", cfg.App.Environment, "chain_id", cfg.Ethereum.ChainID)

	// Telemetry. Disabled telemetry still installs the empty provider so
	// instrumented code keeps working.
	traceProvider := apm.NewTraceProvider(log, apm.WithProvider(traceBackend(cfg), log))
	defer func() { _ = traceProvider.Stop() }()

	if cfg.Telemetry.Enabled {
		meterProvider := metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.NewOtelCollectorConfig(
				cfg.Telemetry.OTLPEndpoint,
				parseHeaders(cfg.Telemetry.OTLPHeaders),
				metrics.InsecureOtel,
			)),
		)
		defer func() { _ = meterProvider.Shutdown(context.Background()) }()

		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(cfg.Telemetry.PrometheusPort)))
	}

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("monolith: %w", err)
	}

	// Registration order follows the dependency direction: chain plumbing
	// first, the pipeline last.
	modules := []monolith.Module{
		&blockchain.Module{},
		&market.Module{},
		&risk.Module{},
		&funding.Module{},
		&safety.Module{},
		&arbitrage.Module{},
		&execution.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("start modules: %w", err)
	}

	healthServer := startHealth(mono)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Execution.ConfirmTimeout)
		defer cancel()
		_ = healthServer.Stop(shutdownCtx)
	}()

	log.Info(ctx, "engine running", "health_port", cfg.App.HealthPort)
	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	return nil
}

// traceBackend picks the span exporter: console locally, OTLP when
// telemetry is on elsewhere, empty when it is off.
func traceBackend(cfg *config.Config) apm.Provider {
	if !cfg.Telemetry.Enabled {
		return apm.EmptyProvider
	}
	if cfg.App.Environment == "development" {
		return apm.ConsoleProvider
	}
	return apm.HoneycombProvider
}

// parseHeaders splits "k=v,k2=v2" OTLP header strings.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if k, v, ok := strings.Cut(strings.TrimSpace(pair), "="); ok && k != "" {
			headers[k] = v
		}
	}
	return headers
}

// startHealth exposes liveness plus readiness over the chain feed, the
// market graph, and the trading breaker.
func startHealth(mono monolith.Monolith) *health.Server {
	server := health.NewServer(mono.Config().App.HealthPort, version)
	sr := mono.Services()

	server.RegisterCheck("chain", func(ctx context.Context) (bool, string) {
		status := blockchainDI.GetBlockchainService(sr).ConnectionStatus()
		return status.State == blockchainDomain.StateConnected, string(status.State)
	})

	server.RegisterCheck("graph", func(ctx context.Context) (bool, string) {
		gen := marketDI.GetGraphService(sr).Generation()
		if gen == 0 {
			return false, "no refresh completed yet"
		}
		return true, fmt.Sprintf("generation %d", gen)
	})

	server.RegisterCheck("breaker", func(ctx context.Context) (bool, string) {
		h := execDI.GetMonitor(sr).Health()
		return h.BreakerState != "open", h.BreakerState
	})

	_ = server.Start()
	return server
}
