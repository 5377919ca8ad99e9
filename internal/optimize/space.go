package optimize

import (
	"errors"
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// Optimization errors
var (
	// ErrConfiguration marks an invalid parameter space or trial count.
	// Raised before any trial starts.
	ErrConfiguration = errors.New("invalid optimization configuration")

	// ErrSampler marks a sampler failure. Fatal to the optimize call.
	ErrSampler = errors.New("sampler failed")
)

// Spec is the sampling specification of one parameter.
type Spec = domain.ParamSpec

// Space maps parameter names to sampling specifications.
type Space = domain.ParamSpace

// ValidateSpace checks every parameter specification.
func ValidateSpace(space Space) error {
	for _, name := range space.Names() {
		if err := validateSpec(name, space[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateSpec(name string, s Spec) error {
	switch s.Type {
	case domain.ParamInt, domain.ParamFloat:
		if math.IsNaN(s.Min) || math.IsNaN(s.Max) || math.IsInf(s.Min, 0) || math.IsInf(s.Max, 0) {
			return fmt.Errorf("%w: %s has non-finite bounds", ErrConfiguration, name)
		}
		if s.Min > s.Max {
			return fmt.Errorf("%w: %s min %v > max %v", ErrConfiguration, name, s.Min, s.Max)
		}
		if s.Type == domain.ParamInt && math.Ceil(s.Min) > math.Floor(s.Max) {
			return fmt.Errorf("%w: %s has no integer in [%v, %v]", ErrConfiguration, name, s.Min, s.Max)
		}
	case domain.ParamCategorical:
		if len(s.Choices) == 0 {
			return fmt.Errorf("%w: %s has no categorical choices", ErrConfiguration, name)
		}
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrConfiguration, name, s.Type)
	}
	return nil
}
