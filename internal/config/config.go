// Package config defines all configuration for the paper trader.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// fields overridable via TRADER_* environment variables. Every tunable has
// a default; only the database URL, market-data endpoint, and screener path
// must be supplied.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"paper-trader/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Screener   ScreenerConfig   `mapstructure:"screener"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Validator  ValidatorConfig  `mapstructure:"validator"`
	Engines    EnginesConfig    `mapstructure:"engines"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Report     ReportConfig     `mapstructure:"report"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig points at the Postgres ledger. The URL is the only secret
// in the system; set TRADER_DATABASE_URL rather than committing it.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// MarketDataConfig wires the three-tier market data source: primary HTTP
// API, local gzip daily-bar cache, fallback HTTP API. An empty CacheDir
// disables the cache tier; an empty FallbackURL disables the last tier.
type MarketDataConfig struct {
	PrimaryURL  string        `mapstructure:"primary_url"`
	FallbackURL string        `mapstructure:"fallback_url"`
	CacheDir    string        `mapstructure:"cache_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
}

// ScreenerConfig controls the candidate poller: where the screener drops
// its JSON file, how often to re-read it, and how duplicates are coalesced.
type ScreenerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Path         string        `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	QueueSize    int           `mapstructure:"queue_size"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

// RoutingConfig holds the classifier thresholds and the router's rule
// inputs.
//
//   - PennyThreshold: price below this classifies as penny_stock.
//   - HighVolThreshold: annualized volatility above this prefers momentum.
//   - LargeCapThreshold: market cap above this classifies as large_cap.
//   - MinStopBuffer: minimum gap between entry price and stop, as a fraction.
//   - ETFSymbols: symbols always classified as ETFs.
//   - MomentumSectors: sectors routed to momentum_breakout.
type RoutingConfig struct {
	PennyThreshold    float64  `mapstructure:"penny_threshold"`
	HighVolThreshold  float64  `mapstructure:"high_vol_threshold"`
	LargeCapThreshold float64  `mapstructure:"large_cap_threshold"`
	MinStopBuffer     float64  `mapstructure:"min_stop_buffer"`
	ETFSymbols        []string `mapstructure:"etf_symbols"`
	MomentumSectors   []string `mapstructure:"momentum_sectors"`
}

// ValidatorConfig tunes the entry validator.
//
//   - MinConfidence: reject recommendations below this level.
//   - MaxDataAge: reject recommendations older than this.
//   - EntryTolerance: how far below the entry band still counts as
//     "wait for a better price" rather than a hard reject, as a fraction.
type ValidatorConfig struct {
	MinConfidence  types.Confidence `mapstructure:"min_confidence"`
	MaxDataAge     time.Duration    `mapstructure:"max_data_age"`
	EntryTolerance float64          `mapstructure:"entry_tolerance"`
}

// EnginesConfig groups the per-strategy parameter sets.
type EnginesConfig struct {
	RSI       RSIConfig       `mapstructure:"rsi"`
	Momentum  MomentumConfig  `mapstructure:"momentum"`
	Bollinger BollingerConfig `mapstructure:"bollinger"`
}

// RSIConfig tunes the RSI mean-reversion engine.
type RSIConfig struct {
	Period       int     `mapstructure:"period"`
	Oversold     float64 `mapstructure:"oversold"`
	Overbought   float64 `mapstructure:"overbought"`
	PositionSize float64 `mapstructure:"position_size"` // fraction of cash per entry
	ProfitTarget float64 `mapstructure:"profit_target"` // fractional gain to take
	MaxHoldDays  int     `mapstructure:"max_hold_days"`
}

// MomentumConfig tunes the momentum breakout engine.
type MomentumConfig struct {
	BreakoutPeriod int     `mapstructure:"breakout_period"`
	VolumeMultiple float64 `mapstructure:"volume_multiple"` // current volume must exceed avg by this factor
	PositionSize   float64 `mapstructure:"position_size"`
	StopLoss       float64 `mapstructure:"stop_loss"`     // initial stop distance, fraction below entry
	TrailingStop   float64 `mapstructure:"trailing_stop"` // trail distance below the highest seen price
	ProfitTarget   float64 `mapstructure:"profit_target"`
	MaxHoldDays    int     `mapstructure:"max_hold_days"`
}

// BollingerConfig tunes the Bollinger-band mean-reversion engine.
type BollingerConfig struct {
	Period       int     `mapstructure:"period"`
	StdDev       float64 `mapstructure:"std_dev"`
	PositionSize float64 `mapstructure:"position_size"`
	StopLoss     float64 `mapstructure:"stop_loss"`
	ProfitTarget float64 `mapstructure:"profit_target"`
	ExitAtMiddle bool    `mapstructure:"exit_at_middle"` // exit at the middle band, else the upper
	MaxHoldDays  int     `mapstructure:"max_hold_days"`
}

// ExecutionConfig sets the executor's hard limits and the circuit breakers.
type ExecutionConfig struct {
	StartingCash          float64       `mapstructure:"starting_cash"`
	Workers               int           `mapstructure:"workers"`
	MaxPositions          int           `mapstructure:"max_positions"`
	MaxDailyTrades        int           `mapstructure:"max_daily_trades"`
	MaxStrategyAllocation float64       `mapstructure:"max_strategy_allocation"` // fraction of equity per strategy
	Circuit               CircuitConfig `mapstructure:"circuit"`
}

// CircuitConfig sets the breaker thresholds.
//
//   - DailyLoss: realized+unrealized loss as a fraction of the day's
//     starting equity that disables BUYs until the next day.
//   - ConsecutiveLosses: closed losers in a row that pause BUYs.
//   - LossPause: how long the consecutive-loss pause lasts.
//   - MinWinRate / WinRateWindow: a strategy whose win rate over the last
//     WinRateWindow closed trades falls below MinWinRate is disabled until
//     manually re-enabled.
//   - MaxPositionDrawdown: per-position drawdown that forces a SELL on the
//     next monitor tick.
type CircuitConfig struct {
	DailyLoss           float64       `mapstructure:"daily_loss"`
	ConsecutiveLosses   int           `mapstructure:"consecutive_losses"`
	LossPause           time.Duration `mapstructure:"loss_pause"`
	MinWinRate          float64       `mapstructure:"min_win_rate"`
	WinRateWindow       int           `mapstructure:"win_rate_window"`
	MaxPositionDrawdown float64       `mapstructure:"max_position_drawdown"`
}

// MonitorConfig sets the position-monitor cadence.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ReportConfig sets how often the performance report is logged.
type ReportConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// The database URL may be supplied via TRADER_DATABASE_URL instead of the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if url := os.Getenv("TRADER_DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("marketdata.timeout", "30s")
	v.SetDefault("marketdata.rate_per_sec", 5.0)

	v.SetDefault("screener.enabled", true)
	v.SetDefault("screener.poll_interval", "5m")
	v.SetDefault("screener.queue_size", 32)
	v.SetDefault("screener.cooldown", "30m")

	v.SetDefault("routing.penny_threshold", 5.0)
	v.SetDefault("routing.high_vol_threshold", 0.30)
	v.SetDefault("routing.large_cap_threshold", 100e9)
	v.SetDefault("routing.min_stop_buffer", 0.05)
	v.SetDefault("routing.etf_symbols", []string{"SPY", "QQQ", "IWM", "DIA"})
	v.SetDefault("routing.momentum_sectors", []string{"semiconductors"})

	v.SetDefault("validator.min_confidence", "MEDIUM")
	v.SetDefault("validator.max_data_age", "24h")
	v.SetDefault("validator.entry_tolerance", 0.05)

	v.SetDefault("engines.rsi.period", 14)
	v.SetDefault("engines.rsi.oversold", 45.0)
	v.SetDefault("engines.rsi.overbought", 55.0)
	v.SetDefault("engines.rsi.position_size", 0.25)
	v.SetDefault("engines.rsi.profit_target", 0.025)
	v.SetDefault("engines.rsi.max_hold_days", 12)

	v.SetDefault("engines.momentum.breakout_period", 20)
	v.SetDefault("engines.momentum.volume_multiple", 1.5)
	v.SetDefault("engines.momentum.position_size", 0.20)
	v.SetDefault("engines.momentum.stop_loss", 0.08)
	v.SetDefault("engines.momentum.trailing_stop", 0.10)
	v.SetDefault("engines.momentum.profit_target", 0.08)
	v.SetDefault("engines.momentum.max_hold_days", 20)

	v.SetDefault("engines.bollinger.period", 20)
	v.SetDefault("engines.bollinger.std_dev", 2.0)
	v.SetDefault("engines.bollinger.position_size", 0.25)
	v.SetDefault("engines.bollinger.stop_loss", 0.03)
	v.SetDefault("engines.bollinger.profit_target", 0.04)
	v.SetDefault("engines.bollinger.exit_at_middle", true)
	v.SetDefault("engines.bollinger.max_hold_days", 15)

	v.SetDefault("execution.starting_cash", 100000.0)
	v.SetDefault("execution.workers", 4)
	v.SetDefault("execution.max_positions", 10)
	v.SetDefault("execution.max_daily_trades", 20)
	v.SetDefault("execution.max_strategy_allocation", 0.50)
	v.SetDefault("execution.circuit.daily_loss", 0.05)
	v.SetDefault("execution.circuit.consecutive_losses", 5)
	v.SetDefault("execution.circuit.loss_pause", "30m")
	v.SetDefault("execution.circuit.min_win_rate", 0.30)
	v.SetDefault("execution.circuit.win_rate_window", 20)
	v.SetDefault("execution.circuit.max_position_drawdown", 0.20)

	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("report.interval", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set TRADER_DATABASE_URL)")
	}
	if c.MarketData.PrimaryURL == "" {
		return fmt.Errorf("marketdata.primary_url is required")
	}
	if c.MarketData.Timeout <= 0 {
		return fmt.Errorf("marketdata.timeout must be > 0")
	}
	if c.MarketData.RatePerSec <= 0 {
		return fmt.Errorf("marketdata.rate_per_sec must be > 0")
	}
	if c.Screener.Enabled && c.Screener.Path == "" {
		return fmt.Errorf("screener.path is required when screener.enabled is true")
	}
	if c.Screener.QueueSize <= 0 {
		return fmt.Errorf("screener.queue_size must be > 0")
	}
	if c.Routing.PennyThreshold <= 0 {
		return fmt.Errorf("routing.penny_threshold must be > 0")
	}
	if c.Routing.MinStopBuffer <= 0 || c.Routing.MinStopBuffer >= 1 {
		return fmt.Errorf("routing.min_stop_buffer must be in (0, 1)")
	}
	switch c.Validator.MinConfidence {
	case types.ConfidenceLow, types.ConfidenceMedium, types.ConfidenceHigh:
	default:
		return fmt.Errorf("validator.min_confidence must be one of: LOW, MEDIUM, HIGH")
	}
	if c.Validator.MaxDataAge <= 0 {
		return fmt.Errorf("validator.max_data_age must be > 0")
	}
	if c.Execution.StartingCash <= 0 {
		return fmt.Errorf("execution.starting_cash must be > 0")
	}
	if c.Execution.Workers <= 0 {
		return fmt.Errorf("execution.workers must be > 0")
	}
	if c.Execution.MaxPositions <= 0 {
		return fmt.Errorf("execution.max_positions must be > 0")
	}
	if c.Execution.MaxDailyTrades <= 0 {
		return fmt.Errorf("execution.max_daily_trades must be > 0")
	}
	if c.Execution.MaxStrategyAllocation <= 0 || c.Execution.MaxStrategyAllocation > 1 {
		return fmt.Errorf("execution.max_strategy_allocation must be in (0, 1]")
	}
	for name, frac := range map[string]float64{
		"engines.rsi.position_size":       c.Engines.RSI.PositionSize,
		"engines.momentum.position_size":  c.Engines.Momentum.PositionSize,
		"engines.bollinger.position_size": c.Engines.Bollinger.PositionSize,
	} {
		if frac <= 0 || frac > 1 {
			return fmt.Errorf("%s must be in (0, 1]", name)
		}
	}
	if c.Engines.RSI.Period <= 1 {
		return fmt.Errorf("engines.rsi.period must be > 1")
	}
	if c.Engines.Momentum.BreakoutPeriod <= 1 {
		return fmt.Errorf("engines.momentum.breakout_period must be > 1")
	}
	if c.Engines.Bollinger.Period <= 1 {
		return fmt.Errorf("engines.bollinger.period must be > 1")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be > 0")
	}
	if c.Screener.PollInterval <= 0 {
		return fmt.Errorf("screener.poll_interval must be > 0")
	}
	return nil
}
