// Package config provides configuration management for the paper
// broker server and CLI tools.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	QuoteSource QuoteSourceConfig `yaml:"quote_source"`
	Estimator   EstimatorConfig   `yaml:"estimator"`
	Risk        RiskConfig        `yaml:"risk"`
	Expiration  ExpirationConfig  `yaml:"expiration"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper (the only supported mode; kept for parity with config shape)
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig defines the REST surface's listen settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig points at the directory of per-account JSON files.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// QuoteSourceConfig configures the quote vendor client's resilience
// wrapping: retry backoff and circuit breaker thresholds.
type QuoteSourceConfig struct {
	Provider string `yaml:"provider"` // mock | vendor-name

	RetryMaxRetries     int           `yaml:"retry_max_retries"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff"`
	RetryTimeout        time.Duration `yaml:"retry_timeout"`

	BreakerMaxRequests  uint32        `yaml:"breaker_max_requests"`
	BreakerInterval     time.Duration `yaml:"breaker_interval"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout"`
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio"`
}

// EstimatorConfig names the fill price estimator and its parameters,
// using the same keys internal/estimator.Factory accepts.
type EstimatorConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// DecimalParams converts the float64 YAML params into the decimal.Decimal
// map internal/estimator.Factory expects.
func (e EstimatorConfig) DecimalParams() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(e.Params))
	for k, v := range e.Params {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}

// RiskConfig defines the optional contextual-validation policy limits. A
// zero value means "no limit" for that dimension.
type RiskConfig struct {
	MaxPositionNotional  float64 `yaml:"max_position_notional"`
	MaxGrossExposure     float64 `yaml:"max_gross_exposure"`
	MaxDailyRealizedLoss float64 `yaml:"max_daily_realized_loss"`
	MaxAbsPortfolioDelta float64 `yaml:"max_abs_portfolio_delta"`
}

// ExpirationConfig controls the daily settlement sweep's schedule.
type ExpirationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CronSpec string `yaml:"cron_spec"` // robfig/cron/v3 5-field spec
}

// Load reads and parses the configuration file from the specified path,
// expanding environment variable references, then normalises and
// validates it.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Normalize fills in defaults for zero-valued fields.
func (c *Config) Normalize() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "paper"
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/accounts"
	}
	if c.QuoteSource.Provider == "" {
		c.QuoteSource.Provider = "mock"
	}
	if c.QuoteSource.RetryMaxRetries == 0 {
		c.QuoteSource.RetryMaxRetries = 3
	}
	if c.QuoteSource.RetryInitialBackoff == 0 {
		c.QuoteSource.RetryInitialBackoff = 200 * time.Millisecond
	}
	if c.QuoteSource.RetryMaxBackoff == 0 {
		c.QuoteSource.RetryMaxBackoff = 5 * time.Second
	}
	if c.QuoteSource.RetryTimeout == 0 {
		c.QuoteSource.RetryTimeout = 10 * time.Second
	}
	if c.QuoteSource.BreakerMaxRequests == 0 {
		c.QuoteSource.BreakerMaxRequests = 1
	}
	if c.QuoteSource.BreakerInterval == 0 {
		c.QuoteSource.BreakerInterval = 60 * time.Second
	}
	if c.QuoteSource.BreakerTimeout == 0 {
		c.QuoteSource.BreakerTimeout = 30 * time.Second
	}
	if c.QuoteSource.BreakerMinRequests == 0 {
		c.QuoteSource.BreakerMinRequests = 10
	}
	if c.QuoteSource.BreakerFailureRatio == 0 {
		c.QuoteSource.BreakerFailureRatio = 0.5
	}
	if c.Estimator.Name == "" {
		c.Estimator.Name = "market"
	}
	if c.Expiration.CronSpec == "" {
		c.Expiration.CronSpec = "0 0 * * *" // daily at midnight
	}
}

// Validate checks that configuration values are internally consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" {
		return fmt.Errorf("environment.mode must be 'paper'")
	}

	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.QuoteSource.BreakerFailureRatio <= 0 || c.QuoteSource.BreakerFailureRatio > 1 {
		return fmt.Errorf("quote_source.breaker_failure_ratio must be in (0,1]")
	}
	if c.QuoteSource.RetryMaxRetries < 0 {
		return fmt.Errorf("quote_source.retry_max_retries must be >= 0")
	}

	if c.Expiration.Enabled {
		if _, err := cronFieldCount(c.Expiration.CronSpec); err != nil {
			return fmt.Errorf("expiration.cron_spec invalid: %w", err)
		}
	}

	return nil
}

// cronFieldCount is a light sanity check that a cron spec has the
// 5 whitespace-separated fields robfig/cron/v3's standard parser
// expects, without depending on the cron package just to validate
// config shape.
func cronFieldCount(spec string) (int, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return len(fields), fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	return len(fields), nil
}

// IsPaperTrading reports whether the configured mode is paper trading —
// always true today, kept so callers don't need to string-compare
// Environment.Mode directly.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}
