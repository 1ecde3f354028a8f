// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Market    MarketConfig    `mapstructure:"market"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Funding   FundingConfig   `mapstructure:"funding"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	BlockInterval  time.Duration `mapstructure:"block_interval"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	RPCRateLimit   float64       `mapstructure:"rpc_rate_limit"`
	RPCRateBurst   int           `mapstructure:"rpc_rate_burst"`
}

// MarketConfig holds pool graph construction configuration.
type MarketConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MinLiquidity    float64       `mapstructure:"min_liquidity"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	Pools           []string      `mapstructure:"pools"`
	Venues          []string      `mapstructure:"venues"`
	CEXWebSocketURL string        `mapstructure:"cex_websocket_url"`
	CEXSymbols      []string      `mapstructure:"cex_symbols"`
	FetchBatchSize  int           `mapstructure:"fetch_batch_size"`
}

// MinLiquidityDecimal returns the liquidity floor as decimal.Decimal.
func (c *MarketConfig) MinLiquidityDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinLiquidity)
}

// DetectConfig holds opportunity detection configuration.
type DetectConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MinProfitBps  float64       `mapstructure:"min_profit_bps"`
	MaxHops       int           `mapstructure:"max_hops"`
	TradeSizes    []float64     `mapstructure:"trade_sizes"`
	StartTokens   []string      `mapstructure:"start_tokens"`
	FlashFeeBps   float64       `mapstructure:"flash_fee_bps"`
	GasPerSwap    uint64        `mapstructure:"gas_per_swap"`
	GasBase       uint64        `mapstructure:"gas_base"`
	GasFlashExtra uint64        `mapstructure:"gas_flash_extra"`
}

// MinProfitBpsDecimal returns min profit bps as decimal.Decimal.
func (c *DetectConfig) MinProfitBpsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitBps)
}

// FlashFeeBpsDecimal returns the flash-loan fee bps as decimal.Decimal.
func (c *DetectConfig) FlashFeeBpsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FlashFeeBps)
}

// TradeSizesDecimal returns trade sizes as decimal.Decimal slice.
func (c *DetectConfig) TradeSizesDecimal() []decimal.Decimal {
	result := make([]decimal.Decimal, len(c.TradeSizes))
	for i, s := range c.TradeSizes {
		result[i] = decimal.NewFromFloat(s)
	}
	return result
}

// RiskConfig holds risk model tuning parameters.
type RiskConfig struct {
	Base            float64       `mapstructure:"base"`
	Alpha           float64       `mapstructure:"alpha"`
	Beta            float64       `mapstructure:"beta"`
	Gamma           float64       `mapstructure:"gamma"`
	SensorWindow    int           `mapstructure:"sensor_window"`
	SensorCacheTTL  time.Duration `mapstructure:"sensor_cache_ttl"`
	DegradedReading float64       `mapstructure:"degraded_reading"`
	PendingNormal   float64       `mapstructure:"pending_normal"`
}

// SafetyConfig holds circuit breaker, sizing, and policy configuration.
type SafetyConfig struct {
	// Circuit breaker
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	FailureRateLimit  float64       `mapstructure:"failure_rate_limit"`
	FailureWindow     time.Duration `mapstructure:"failure_window"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	SuccessThreshold  int           `mapstructure:"success_threshold"`
	MaxLossAbsolute   float64       `mapstructure:"max_loss_absolute"`
	MaxLossPctCapital float64       `mapstructure:"max_loss_pct_capital"`

	// Position sizing
	Capital             float64 `mapstructure:"capital"`
	MaxAbsolutePerTrade float64 `mapstructure:"max_absolute_per_trade"`
	MaxPctPerTrade      float64 `mapstructure:"max_pct_per_trade"`
	MaxTotalExposurePct float64 `mapstructure:"max_total_exposure_pct"`
	StreakStep          float64 `mapstructure:"streak_step"`
	PctFloor            float64 `mapstructure:"pct_floor"`
	PctCeiling          float64 `mapstructure:"pct_ceiling"`

	// Policy
	DeniedActions []string `mapstructure:"denied_actions"`
}

// CapitalDecimal returns working capital as decimal.Decimal.
func (c *SafetyConfig) CapitalDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Capital)
}

// FundingConfig holds flash-loan source configuration.
type FundingConfig struct {
	Sources          []FundingSourceConfig `mapstructure:"sources"`
	HybridThreshold  float64               `mapstructure:"hybrid_threshold"`
	LiquidityTimeout time.Duration         `mapstructure:"liquidity_timeout"`
}

// FundingSourceConfig describes one flash-loan provider.
type FundingSourceConfig struct {
	Name         string   `mapstructure:"name"`
	FeeBps       float64  `mapstructure:"fee_bps"`
	VaultAddress string   `mapstructure:"vault_address"`
	Assets       []string `mapstructure:"assets"`
	ChainIDs     []uint64 `mapstructure:"chain_ids"`
	Priority     int      `mapstructure:"priority"`
}

// ExecutionConfig holds execution pipeline configuration.
type ExecutionConfig struct {
	MaxWorkers          int           `mapstructure:"max_workers"`
	OpportunityDeadline time.Duration `mapstructure:"opportunity_deadline"`
	ConfirmDepth        uint64        `mapstructure:"confirm_depth"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
	GasBumpMultiplier   float64       `mapstructure:"gas_bump_multiplier"`
	MaxGasPriceGwei     float64       `mapstructure:"max_gas_price_gwei"`
	SlippageBps         float64       `mapstructure:"slippage_bps"`
	EventBufferSize     int           `mapstructure:"event_buffer_size"`
	ExecutorAddress     string        `mapstructure:"executor_address"`
	PrivateKey          string        `mapstructure:"private_key"`
	DryRun              bool          `mapstructure:"dry_run"`
}

// SlippageBpsDecimal returns slippage tolerance as decimal.Decimal.
func (c *ExecutionConfig) SlippageBpsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SlippageBps)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "ARB_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "ARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Market
	v.BindEnv("market.cex_websocket_url", "ARB_CEX_WS_URL", "CEX_WS_URL")
	v.BindEnv("market.pools", "ARB_POOLS")

	// Detect
	v.BindEnv("detect.min_profit_bps", "ARB_MIN_PROFIT_BPS")
	v.BindEnv("detect.max_hops", "ARB_MAX_HOPS")

	// Safety
	v.BindEnv("safety.capital", "ARB_CAPITAL")
	v.BindEnv("safety.failure_threshold", "ARB_FAILURE_THRESHOLD")

	// Execution
	v.BindEnv("execution.executor_address", "ARB_EXECUTOR_ADDRESS")
	v.BindEnv("execution.private_key", "ARB_PRIVATE_KEY", "PRIVATE_KEY")
	v.BindEnv("execution.dry_run", "ARB_DRY_RUN")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "flasharb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.block_interval", "12s")
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")
	v.SetDefault("ethereum.rpc_rate_limit", 20)
	v.SetDefault("ethereum.rpc_rate_burst", 40)

	// Market defaults
	v.SetDefault("market.refresh_interval", "12s")
	v.SetDefault("market.min_liquidity", 1000)
	v.SetDefault("market.stale_after", "12s")
	v.SetDefault("market.venues", []string{"uniswap-v2"})
	v.SetDefault("market.fetch_batch_size", 20)
	v.SetDefault("market.cex_symbols", []string{"ETHUSDC"})

	// Detect defaults
	v.SetDefault("detect.interval", "3s")
	v.SetDefault("detect.min_profit_bps", 10)
	v.SetDefault("detect.max_hops", 4)
	v.SetDefault("detect.trade_sizes", []float64{0.1, 0.5, 1.0})
	v.SetDefault("detect.flash_fee_bps", 9)
	v.SetDefault("detect.gas_base", 100_000)
	v.SetDefault("detect.gas_flash_extra", 150_000)
	v.SetDefault("detect.gas_per_swap", 120_000)

	// Risk defaults
	v.SetDefault("risk.base", 0.001)
	v.SetDefault("risk.alpha", 0.0005)
	v.SetDefault("risk.beta", 0.01)
	v.SetDefault("risk.gamma", 0.02)
	v.SetDefault("risk.sensor_window", 5)
	v.SetDefault("risk.sensor_cache_ttl", "10s")
	v.SetDefault("risk.degraded_reading", 0.5)
	v.SetDefault("risk.pending_normal", 2000)

	// Safety defaults
	v.SetDefault("safety.failure_threshold", 5)
	v.SetDefault("safety.failure_rate_limit", 0.6)
	v.SetDefault("safety.failure_window", "10m")
	v.SetDefault("safety.cooldown", "5m")
	v.SetDefault("safety.success_threshold", 3)
	v.SetDefault("safety.max_loss_absolute", 1.0)
	v.SetDefault("safety.max_loss_pct_capital", 0.05)
	v.SetDefault("safety.capital", 100)
	v.SetDefault("safety.max_absolute_per_trade", 10)
	v.SetDefault("safety.max_pct_per_trade", 0.10)
	v.SetDefault("safety.max_total_exposure_pct", 0.50)
	v.SetDefault("safety.streak_step", 0.01)
	v.SetDefault("safety.pct_floor", 0.02)
	v.SetDefault("safety.pct_ceiling", 0.25)
	v.SetDefault("safety.denied_actions", []string{"sandwich"})

	// Funding defaults
	v.SetDefault("funding.hybrid_threshold", 1_000_000)
	v.SetDefault("funding.liquidity_timeout", "5s")

	// Execution defaults
	v.SetDefault("execution.max_workers", 5)
	v.SetDefault("execution.opportunity_deadline", "90s")
	v.SetDefault("execution.confirm_depth", 2)
	v.SetDefault("execution.confirm_timeout", "3m")
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_backoff", "2s")
	v.SetDefault("execution.gas_bump_multiplier", 1.25)
	v.SetDefault("execution.max_gas_price_gwei", 300)
	v.SetDefault("execution.slippage_bps", 50)
	v.SetDefault("execution.event_buffer_size", 64)
	v.SetDefault("execution.dry_run", true)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flasharb")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if c.Detect.MaxHops < 2 {
		return fmt.Errorf("detect.max_hops must be >= 2, got %d", c.Detect.MaxHops)
	}
	if c.Detect.MaxHops > 6 {
		return fmt.Errorf("detect.max_hops must be <= 6 to bound search, got %d", c.Detect.MaxHops)
	}
	if c.Safety.FailureThreshold <= 0 {
		return fmt.Errorf("safety.failure_threshold must be positive")
	}
	if c.Safety.SuccessThreshold <= 0 {
		return fmt.Errorf("safety.success_threshold must be positive")
	}
	if c.Safety.Capital <= 0 {
		return fmt.Errorf("safety.capital must be positive")
	}
	if c.Safety.MaxPctPerTrade <= 0 || c.Safety.MaxPctPerTrade > 1 {
		return fmt.Errorf("safety.max_pct_per_trade must be in (0,1]")
	}
	if c.Safety.MaxTotalExposurePct <= 0 || c.Safety.MaxTotalExposurePct > 1 {
		return fmt.Errorf("safety.max_total_exposure_pct must be in (0,1]")
	}
	if c.Safety.PctFloor > c.Safety.PctCeiling {
		return fmt.Errorf("safety.pct_floor must not exceed safety.pct_ceiling")
	}
	if c.Execution.MaxWorkers <= 0 {
		return fmt.Errorf("execution.max_workers must be positive")
	}
	if c.Execution.GasBumpMultiplier <= 1 {
		return fmt.Errorf("execution.gas_bump_multiplier must be > 1")
	}
	return nil
}
