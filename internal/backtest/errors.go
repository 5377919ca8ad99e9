package backtest

import (
	"errors"
	"fmt"
)

// ErrSimulation matches any *SimulationError via errors.Is.
var ErrSimulation = errors.New("simulation failed")

// SimulationError reports an engine fault or an invalid bar feed.
type SimulationError struct {
	Variant string
	Bars    int
	Err     error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed (strategy %s, %d bars): %v", e.Variant, e.Bars, e.Err)
}

// Unwrap exposes both ErrSimulation and the underlying cause.
func (e *SimulationError) Unwrap() []error {
	return []error{ErrSimulation, e.Err}
}
