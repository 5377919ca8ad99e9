package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// Data source names accepted in DataConfig.Source.
const (
	SourceCSV       = "csv"
	SourceStore     = "store"
	SourceSynthetic = "synthetic"
)

var (
	// ErrInvalidBars is returned when a feed breaks ordering or price rules.
	ErrInvalidBars = errors.New("invalid bar feed")

	// ErrNoData is returned when the requested range holds no bars.
	ErrNoData = errors.New("no bars in requested range")

	// ErrUnknownSource is returned for an unsupported DataConfig.Source.
	ErrUnknownSource = errors.New("unknown data source")
)

// Provider loads a historical bar series.
type Provider interface {
	Bars(ctx context.Context, cfg domain.DataConfig) ([]domain.Bar, error)
}

// FromConfig returns the provider named by cfg.Source. store backs the
// "store" source and may be nil otherwise.
func FromConfig(cfg domain.DataConfig, store storage.BarStore, seed int64) (Provider, error) {
	switch cfg.Source {
	case SourceCSV:
		return NewCSVProvider(cfg.Path), nil
	case SourceStore:
		if store == nil {
			return nil, fmt.Errorf("%w: store source requires a bar store", ErrUnknownSource)
		}
		return NewStoreProvider(store), nil
	case SourceSynthetic, "":
		return NewSyntheticProvider(seed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}

// Validate checks that bars are in strictly ascending timestamp order and
// carry finite positive prices with high >= low.
func Validate(bars []domain.Bar) error {
	for i, b := range bars {
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d at %s not after %s",
				ErrInvalidBars, i, b.Timestamp.Format(domain.DateTimeLayout),
				bars[i-1].Timestamp.Format(domain.DateTimeLayout))
		}
		for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return fmt.Errorf("%w: bar %d has price %v", ErrInvalidBars, i, p)
			}
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: bar %d high %v below low %v", ErrInvalidBars, i, b.High, b.Low)
		}
		if b.Volume < 0 || math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) {
			return fmt.Errorf("%w: bar %d has volume %v", ErrInvalidBars, i, b.Volume)
		}
	}
	return nil
}

// StoreProvider reads bars from a storage.BarStore.
type StoreProvider struct {
	store storage.BarStore
}

// NewStoreProvider creates a provider over store.
func NewStoreProvider(store storage.BarStore) *StoreProvider {
	return &StoreProvider{store: store}
}

// Bars returns the stored bars in [start, end).
func (p *StoreProvider) Bars(ctx context.Context, cfg domain.DataConfig) ([]domain.Bar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, end, _ := cfg.Range()

	bars, err := p.store.GetRange(ctx, cfg.Ticker, cfg.Interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("load %s %s bars: %w", cfg.Ticker, cfg.Interval, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, cfg.Ticker, cfg.Interval)
	}
	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}
