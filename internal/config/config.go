// Package config loads strategy-lab settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/optimize"
	"strategy-lab/internal/strategy"
	"strategy-lab/internal/trials"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration.
type Config struct {
	Data     domain.DataConfig     `yaml:"data"`
	Backtest domain.BacktestConfig `yaml:"backtest"`
	Optimize Optimize              `yaml:"optimize"`
	Storage  Storage               `yaml:"storage"`
	Server   Server                `yaml:"server"`
	Logging  Logging               `yaml:"logging"`
}

// Optimize controls the hyperparameter search.
type Optimize struct {
	Strategy    string `yaml:"strategy"`
	Trials      int    `yaml:"trials"`
	Sampler     string `yaml:"sampler"`
	GridSteps   int    `yaml:"grid_steps"`
	Seed        int64  `yaml:"seed"`
	Parallelism int    `yaml:"parallelism"`
	RankMetric  string `yaml:"rank_metric"`
	TopN        int    `yaml:"top_n"`
}

// Storage holds persistence endpoints. Empty values disable a backend.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// Server holds HTTP listener configuration.
type Server struct {
	Addr string `yaml:"addr"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "console"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: domain.DataConfig{
			Source:   "synthetic",
			Ticker:   "AAPL",
			Start:    "2023-01-01T00:00:00",
			End:      "2024-01-01T00:00:00",
			Interval: "1d",
		},
		Backtest: domain.DefaultBacktestConfig(),
		Optimize: Optimize{
			Strategy:    strategy.TypeSMACross,
			Trials:      10,
			Sampler:     optimize.SamplerRandom,
			GridSteps:   5,
			Seed:        1,
			Parallelism: 1,
			RankMetric:  string(trials.MetricAbsoluteReturn),
			TopN:        10,
		},
		Server:  Server{Addr: ":8080"},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides fields from well-known environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STRATLAB_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("STRATLAB_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("STRATLAB_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STRATLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STRATLAB_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("%w: data: %w", ErrInvalidConfig, err)
	}
	if err := c.Backtest.Validate(); err != nil {
		return fmt.Errorf("%w: backtest: %w", ErrInvalidConfig, err)
	}
	if err := c.Optimize.Validate(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// Validate checks the optimization settings.
func (o Optimize) Validate() error {
	if !slices.Contains(strategy.Names(), o.Strategy) {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, o.Strategy)
	}
	if o.Trials < 1 {
		return fmt.Errorf("%w: trials must be >= 1", ErrInvalidConfig)
	}
	if o.Sampler != optimize.SamplerRandom && o.Sampler != optimize.SamplerGrid {
		return fmt.Errorf("%w: sampler %q", ErrInvalidConfig, o.Sampler)
	}
	if o.Sampler == optimize.SamplerGrid && (o.GridSteps < 2 || o.GridSteps > optimize.MaxGridSteps) {
		return fmt.Errorf("%w: grid_steps must be in [2, %d]", ErrInvalidConfig, optimize.MaxGridSteps)
	}
	if o.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be >= 1", ErrInvalidConfig)
	}
	if _, err := trials.ParseMetric(o.RankMetric); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
