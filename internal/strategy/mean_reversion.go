package strategy

import "fmt"

// MeanReversionStrategy trades Bollinger band excursions.
//   - buy when close < lower band
//   - sell when close > upper band
//   - sell when close <= entry * (1 - StopLossPct)   (stop-loss)
//   - sell when close >= entry * (1 + TakeProfitPct) (take-profit)
//
// Bands are undefined until Period bars are available; no signal until then.
type MeanReversionStrategy struct {
	Period        int     // Bollinger period
	DevFactor     float64 // standard deviation multiplier
	StopLossPct   float64 // e.g. 0.01 = 1%
	TakeProfitPct float64 // e.g. 0.02 = 2%
}

// NewMeanReversionStrategy creates a new MeanReversionStrategy.
func NewMeanReversionStrategy(period int, devFactor, stopLossPct, takeProfitPct float64) *MeanReversionStrategy {
	return &MeanReversionStrategy{
		Period:        period,
		DevFactor:     devFactor,
		StopLossPct:   stopLossPct,
		TakeProfitPct: takeProfitPct,
	}
}

// Name returns the strategy identifier including parameters.
func (s *MeanReversionStrategy) Name() string {
	return fmt.Sprintf("%s_bb%d_dev%.2f_sl%.4f_tp%.4f",
		TypeMeanReversion, s.Period, s.DevFactor, s.StopLossPct, s.TakeProfitPct)
}

// ShouldBuy signals when the close crosses below the lower band.
func (s *MeanReversionStrategy) ShouldBuy(w Window) Decision {
	bot, _, _, ok := bollinger(w.Closes(s.Period), s.Period, s.DevFactor)
	if !ok {
		return Hold
	}
	if c := w.Current().Close; c < bot {
		return Signal("Price %.2f below lower BB %.2f", c, bot)
	}
	return Hold
}

// ShouldSell signals above the upper band, then on stop-loss, then on
// take-profit, in that order.
func (s *MeanReversionStrategy) ShouldSell(w Window) Decision {
	c := w.Current().Close

	if _, _, top, ok := bollinger(w.Closes(s.Period), s.Period, s.DevFactor); ok && c > top {
		return Signal("Price %.2f above upper BB %.2f", c, top)
	}

	if w.EntryPrice == nil {
		return Hold
	}
	entry := *w.EntryPrice

	if stop := entry * (1 - s.StopLossPct); c <= stop {
		return Signal("Price %.2f hit stop-loss at %.2f", c, stop)
	}
	if target := entry * (1 + s.TakeProfitPct); c >= target {
		return Signal("Price %.2f hit take-profit at %.2f", c, target)
	}
	return Hold
}

var _ Decider = (*MeanReversionStrategy)(nil)
