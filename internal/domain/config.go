package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateTimeLayout is the accepted layout for DataConfig start/end.
const DateTimeLayout = "2006-01-02T15:04:05"

// Supported bar intervals.
var SupportedIntervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// Config errors
var (
	ErrInvalidInterval = errors.New("unsupported bar interval")
	ErrInvalidDate     = errors.New("date is not in the correct format")
	ErrInvalidBroker   = errors.New("invalid backtest broker settings")
)

// DataConfig selects a historical bar series.
type DataConfig struct {
	Source   string `yaml:"source" json:"source"` // "csv" | "store" | "synthetic"
	Ticker   string `yaml:"ticker" json:"ticker"`
	Start    string `yaml:"start" json:"start"`
	End      string `yaml:"end" json:"end"`
	Interval string `yaml:"interval" json:"interval"`
	Path     string `yaml:"path" json:"path,omitempty"` // CSV file or directory
}

// Range parses Start and End.
func (c DataConfig) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateTimeLayout, c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q", ErrInvalidDate, c.Start)
	}
	end, err := time.Parse(DateTimeLayout, c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q", ErrInvalidDate, c.End)
	}
	return start, end, nil
}

// Step returns the bar interval duration.
func (c DataConfig) Step() (time.Duration, error) {
	d, ok := SupportedIntervals[c.Interval]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, c.Interval)
	}
	return d, nil
}

// Validate checks interval and date formats.
func (c DataConfig) Validate() error {
	if _, err := c.Step(); err != nil {
		return err
	}
	_, _, err := c.Range()
	return err
}

// BacktestConfig holds broker settings for a run.
type BacktestConfig struct {
	Cash       float64 `yaml:"cash" json:"cash"`
	Commission float64 `yaml:"commission" json:"commission"` // fraction of notional
	Stake      int64   `yaml:"stake" json:"stake"`           // fixed order size
}

// DefaultBacktestConfig returns cash 10000, no commission, stake 1.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{Cash: 10000, Commission: 0, Stake: 1}
}

// Validate checks broker settings.
func (c BacktestConfig) Validate() error {
	if c.Cash <= 0 {
		return fmt.Errorf("%w: cash must be positive", ErrInvalidBroker)
	}
	if c.Commission < 0 {
		return fmt.Errorf("%w: commission must not be negative", ErrInvalidBroker)
	}
	if c.Stake <= 0 {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidBroker)
	}
	return nil
}
