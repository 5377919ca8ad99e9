package strategy

import (
	"errors"
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// Strategy type identifiers.
const (
	TypeFlat          = "flat"
	TypeSMACross      = "sma_cross"
	TypeMeanReversion = "mean_reversion"
)

// Parameter names.
const (
	ParamSMAPeriod     = "sma_period"
	ParamBBPeriod      = "bb_period"
	ParamDevFactor     = "devfactor"
	ParamStopLossPct   = "stop_loss_pct"
	ParamTakeProfitPct = "take_profit_pct"
)

// Factory errors
var (
	ErrUnknownStrategy = errors.New("unknown strategy type")
	ErrMissingParam    = errors.New("missing strategy parameter")
	ErrInvalidParam    = errors.New("invalid strategy parameter")
)

var spaces = map[string]domain.ParamSpace{
	TypeFlat: {},
	TypeSMACross: {
		ParamSMAPeriod: {Type: domain.ParamInt, Min: 2, Max: 200},
	},
	TypeMeanReversion: {
		ParamBBPeriod:      {Type: domain.ParamInt, Min: 1, Max: 500},
		ParamDevFactor:     {Type: domain.ParamFloat, Min: 1, Max: 4},
		ParamStopLossPct:   {Type: domain.ParamFloat, Min: 0.0001, Max: 0.15},
		ParamTakeProfitPct: {Type: domain.ParamFloat, Min: 0.0001, Max: 0.15},
	},
}

// Names returns the registered strategy types.
func Names() []string {
	return []string{TypeFlat, TypeMeanReversion, TypeSMACross}
}

// Space returns a copy of the default hyperparameter space for a strategy type.
func Space(name string) (domain.ParamSpace, error) {
	s, ok := spaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	out := make(domain.ParamSpace, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// FromConfig creates a Decider from a strategy type and parameter assignment.
// Validates required parameters per strategy type. Extra parameters are ignored.
func FromConfig(name string, params domain.Assignment) (Decider, error) {
	switch name {
	case TypeFlat:
		return NewFlatStrategy(), nil
	case TypeSMACross:
		return fromSMACrossConfig(params)
	case TypeMeanReversion:
		return fromMeanReversionConfig(params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func fromSMACrossConfig(params domain.Assignment) (*SMACrossStrategy, error) {
	period, err := intParam(params, ParamSMAPeriod, 1)
	if err != nil {
		return nil, err
	}
	return NewSMACrossStrategy(period), nil
}

func fromMeanReversionConfig(params domain.Assignment) (*MeanReversionStrategy, error) {
	period, err := intParam(params, ParamBBPeriod, 1)
	if err != nil {
		return nil, err
	}
	dev, err := floatParam(params, ParamDevFactor)
	if err != nil {
		return nil, err
	}
	sl, err := floatParam(params, ParamStopLossPct)
	if err != nil {
		return nil, err
	}
	tp, err := floatParam(params, ParamTakeProfitPct)
	if err != nil {
		return nil, err
	}
	if sl >= 1 {
		return nil, fmt.Errorf("%w: %s must be below 1, got %v", ErrInvalidParam, ParamStopLossPct, sl)
	}
	return NewMeanReversionStrategy(period, dev, sl, tp), nil
}

func intParam(params domain.Assignment, name string, min int64) (int, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, name)
	}
	if v.Type == domain.ParamFloat && v.F != math.Trunc(v.F) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParam, name, v.F)
	}
	n := v.Int()
	if n < min {
		return 0, fmt.Errorf("%w: %s must be >= %d, got %d", ErrInvalidParam, name, min, n)
	}
	return int(n), nil
}

func floatParam(params domain.Assignment, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, name)
	}
	f := v.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParam, name, f)
	}
	return f, nil
}
