// Package config loads the stratlab YAML configuration and defines the
// experiment parameter set shared by the CLI, the HTTP API, and the
// comparison orchestrator.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stratlab/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stratlab platform.
type Config struct {
	Storage     Storage        `yaml:"storage"`
	Server      Server         `yaml:"server"`
	Alpaca      Alpaca         `yaml:"alpaca"`
	Logging     Logging        `yaml:"logging"`
	Fetch       FetchConfig    `yaml:"fetch"`
	Backtest    BacktestConfig `yaml:"backtest"`
	Experiments []Experiment   `yaml:"experiments"`
}

// Storage holds paths and backend selection for price persistence.
// Backend selects where the loader reads bars from: "csv", "sqlite", or
// "parquet".
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Backend    string `yaml:"backend"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetchConfig controls the daily-bar acquisition job.
type FetchConfig struct {
	Tickers         []string `yaml:"tickers"`
	StartDate       string   `yaml:"start_date"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxRetries      int      `yaml:"max_retries"`
}

// BacktestConfig holds engine-wide simulation parameters.
type BacktestConfig struct {
	TradingDaysPerYear int      `yaml:"trading_days_per_year"`
	MaxWorkers         int      `yaml:"max_workers"`
	ScriptTimeout      Duration `yaml:"script_timeout"`
	DefaultCapital     float64  `yaml:"default_capital"`
}

// Duration wraps time.Duration so YAML values like "10s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ---------------------------------------------------------------------------
// Experiment (per-run strategy configuration)
// ---------------------------------------------------------------------------

// Built-in strategy identifiers.
const (
	StrategyBuyAndHold  = "buy_and_hold"
	StrategyMACrossover = "ma_crossover"
	StrategyVolTrigger  = "vol_trigger"
	StrategyCustom      = "custom"
)

// Experiment is the closed parameter set for a single backtest run. It is
// immutable for the duration of the run; every component receives it by
// value.
type Experiment struct {
	Ticker             string  `yaml:"ticker" json:"ticker"`
	Strategy           string  `yaml:"strategy" json:"strategy"`
	BuyDate            string  `yaml:"buy_date" json:"buy_date"`
	EndDate            string  `yaml:"end_date" json:"end_date"`
	HoldingPeriodDays  int     `yaml:"holding_period_days" json:"holding_period_days"`
	InitialCapital     float64 `yaml:"initial_capital" json:"initial_capital"`
	TransactionCostPct float64 `yaml:"transaction_cost_pct" json:"transaction_cost_pct"`

	// ma_crossover parameters.
	ShortWindow int `yaml:"short_window" json:"short_window,omitempty"`
	LongWindow  int `yaml:"long_window" json:"long_window,omitempty"`

	// vol_trigger parameters. StopLoss of zero means no stop-loss exit.
	VolThreshold float64 `yaml:"vol_threshold" json:"vol_threshold,omitempty"`
	TakeProfit   float64 `yaml:"take_profit" json:"take_profit,omitempty"`
	StopLoss     float64 `yaml:"stop_loss" json:"stop_loss,omitempty"`

	// custom strategy script source. Never echoed back in responses.
	CustomSource string `yaml:"custom_source" json:"-"`
}

const dateLayout = "2006-01-02"

// DateRange resolves the experiment's simulation window. The end date comes
// from EndDate when set, otherwise from BuyDate plus HoldingPeriodDays. A
// zero end time means the range is open-ended.
func (e Experiment) DateRange() (start, end time.Time, err error) {
	if e.BuyDate != "" {
		start, err = time.Parse(dateLayout, e.BuyDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad buy_date %q", domain.ErrInvalidConfig, e.BuyDate)
		}
	}
	switch {
	case e.EndDate != "":
		end, err = time.Parse(dateLayout, e.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad end_date %q", domain.ErrInvalidConfig, e.EndDate)
		}
	case e.HoldingPeriodDays > 0 && !start.IsZero():
		end = start.AddDate(0, 0, e.HoldingPeriodDays)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %s before buy date %s",
			domain.ErrInvalidConfig, end.Format(dateLayout), start.Format(dateLayout))
	}
	return start, end, nil
}

// Validate checks the experiment before any simulation starts. Violations
// are reported as domain.ErrInvalidConfig.
func (e Experiment) Validate() error {
	if e.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", domain.ErrInvalidConfig)
	}
	if e.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %v", domain.ErrInvalidConfig, e.InitialCapital)
	}
	if e.TransactionCostPct < 0 {
		return fmt.Errorf("%w: transaction cost must be non-negative", domain.ErrInvalidConfig)
	}
	if e.HoldingPeriodDays < 0 {
		return fmt.Errorf("%w: holding period must be non-negative", domain.ErrInvalidConfig)
	}
	if _, _, err := e.DateRange(); err != nil {
		return err
	}

	switch e.Strategy {
	case StrategyBuyAndHold:
	case StrategyMACrossover:
		if e.ShortWindow <= 0 || e.LongWindow <= 0 {
			return fmt.Errorf("%w: ma_crossover windows must be positive", domain.ErrInvalidConfig)
		}
		if e.ShortWindow >= e.LongWindow {
			return fmt.Errorf("%w: short window %d must be below long window %d",
				domain.ErrInvalidConfig, e.ShortWindow, e.LongWindow)
		}
	case StrategyVolTrigger:
		if e.VolThreshold <= 0 {
			return fmt.Errorf("%w: vol_trigger threshold must be positive", domain.ErrInvalidConfig)
		}
		if e.TakeProfit <= 0 {
			return fmt.Errorf("%w: vol_trigger take profit must be positive", domain.ErrInvalidConfig)
		}
		if e.StopLoss < 0 {
			return fmt.Errorf("%w: vol_trigger stop loss must be non-negative", domain.ErrInvalidConfig)
		}
	case StrategyCustom:
		if e.CustomSource == "" {
			return fmt.Errorf("%w: custom strategy requires script source", domain.ErrInvalidConfig)
		}
	case "":
		return fmt.Errorf("%w: strategy is required", domain.ErrInvalidConfig)
	default:
		// Unknown identifiers are rejected at registry lookup so that
		// externally registered strategies remain usable.
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-valued fields with engine defaults.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "csv"
	}
	if cfg.Backtest.TradingDaysPerYear == 0 {
		cfg.Backtest.TradingDaysPerYear = 252
	}
	if cfg.Backtest.MaxWorkers == 0 {
		cfg.Backtest.MaxWorkers = 4
	}
	if cfg.Backtest.ScriptTimeout == 0 {
		cfg.Backtest.ScriptTimeout = Duration(10 * time.Second)
	}
	if cfg.Backtest.DefaultCapital == 0 {
		cfg.Backtest.DefaultCapital = 10_000
	}
	if cfg.Fetch.RateLimitPerMin == 0 {
		cfg.Fetch.RateLimitPerMin = 200
	}
	if cfg.Fetch.MaxRetries == 0 {
		cfg.Fetch.MaxRetries = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
