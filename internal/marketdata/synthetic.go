package marketdata

import (
	"context"
	"math"
	"math/rand"

	"strategy-lab/internal/domain"
)

// SyntheticProvider generates a seeded geometric random walk. The same seed
// and DataConfig always yield the same bars.
type SyntheticProvider struct {
	Seed       int64
	StartPrice float64
	Volatility float64 // per-bar log-return standard deviation
}

// NewSyntheticProvider creates a provider with start price 100 and 1% volatility.
func NewSyntheticProvider(seed int64) *SyntheticProvider {
	return &SyntheticProvider{Seed: seed, StartPrice: 100, Volatility: 0.01}
}

// Bars generates one bar per interval in [start, end).
func (p *SyntheticProvider) Bars(ctx context.Context, cfg domain.DataConfig) ([]domain.Bar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, end, _ := cfg.Range()
	step, _ := cfg.Step()

	rng := rand.New(rand.NewSource(p.Seed))
	price := p.StartPrice
	if price <= 0 {
		price = 100
	}

	var bars []domain.Bar
	for ts := start; ts.Before(end); ts = ts.Add(step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		open := price
		closePx := open * math.Exp(rng.NormFloat64()*p.Volatility)
		wick := math.Abs(rng.NormFloat64()) * p.Volatility / 2
		bars = append(bars, domain.Bar{
			Timestamp: ts,
			Open:      round(open),
			High:      round(math.Max(open, closePx) * (1 + wick)),
			Low:       round(math.Min(open, closePx) * (1 - wick)),
			Close:     round(closePx),
			Volume:    math.Round(1000 + rng.Float64()*9000),
		})
		price = closePx
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
