package strategy

import "strategy-lab/internal/domain"

// Decider evaluates buy and sell conditions for a bar window.
// Implementations must be pure functions of the window and their own
// parameters so that repeated runs with identical inputs are identical.
type Decider interface {
	// Name returns the strategy identifier.
	Name() string

	// ShouldBuy reports whether to open a position on the current bar.
	ShouldBuy(w Window) Decision

	// ShouldSell reports whether to close the open position on the current bar.
	ShouldSell(w Window) Decision
}

// Window is the read-only view a Decider sees on each bar.
type Window struct {
	Bars       []domain.Bar // history, Bars[len-1] is the current bar
	EntryPrice *float64     // executed buy price while a position is open
}

// Current returns the current bar.
func (w Window) Current() domain.Bar {
	return w.Bars[len(w.Bars)-1]
}

// Closes returns the close prices of the last n bars (all bars if fewer).
func (w Window) Closes(n int) []float64 {
	if n > len(w.Bars) || n <= 0 {
		n = len(w.Bars)
	}
	out := make([]float64, n)
	for i, b := range w.Bars[len(w.Bars)-n:] {
		out[i] = b.Close
	}
	return out
}

// Decision is a signal with an optional justification.
type Decision struct {
	Signal        bool
	Justification *string
}

// Hold is the no-signal decision.
var Hold = Decision{}

// Signal builds a positive decision with a formatted justification.
func Signal(format string, args ...any) Decision {
	return Decision{Signal: true, Justification: domain.Justify(format, args...)}
}
