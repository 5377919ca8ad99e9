package strategy

import "fmt"

// SMACrossStrategy buys when the close is above its simple moving average
// and sells when it drops below.
type SMACrossStrategy struct {
	Period int // moving average length in bars
}

// NewSMACrossStrategy creates a new SMACrossStrategy.
func NewSMACrossStrategy(period int) *SMACrossStrategy {
	return &SMACrossStrategy{Period: period}
}

// Name returns the strategy identifier including parameters.
func (s *SMACrossStrategy) Name() string {
	return fmt.Sprintf("%s_%d", TypeSMACross, s.Period)
}

// ShouldBuy signals when close > SMA(period).
func (s *SMACrossStrategy) ShouldBuy(w Window) Decision {
	avg, ok := sma(w.Closes(s.Period), s.Period)
	if !ok {
		return Hold
	}
	if c := w.Current().Close; c > avg {
		return Signal("Price %.2f above SMA(%d) %.2f", c, s.Period, avg)
	}
	return Hold
}

// ShouldSell signals when close < SMA(period).
func (s *SMACrossStrategy) ShouldSell(w Window) Decision {
	avg, ok := sma(w.Closes(s.Period), s.Period)
	if !ok {
		return Hold
	}
	if c := w.Current().Close; c < avg {
		return Signal("Price %.2f below SMA(%d) %.2f", c, s.Period, avg)
	}
	return Hold
}

var _ Decider = (*SMACrossStrategy)(nil)
