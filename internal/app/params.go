package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"strategy-lab/internal/domain"
)

// ErrBadParam is returned for malformed name=value parameter flags.
var ErrBadParam = errors.New("bad parameter")

// ParseAssignment parses name=value pairs, typing each value by its spec in
// space. Names outside space are rejected.
func ParseAssignment(space domain.ParamSpace, pairs []string) (domain.Assignment, error) {
	out := make(domain.Assignment, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		raw = strings.TrimSpace(raw)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not name=value", ErrBadParam, pair)
		}
		spec, known := space[name]
		if !known {
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrBadParam, name)
		}

		switch spec.Type {
		case domain.ParamInt:
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrBadParam, name, err)
			}
			out[name] = domain.IntValue(v)
		case domain.ParamFloat:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrBadParam, name, err)
			}
			out[name] = domain.FloatValue(v)
		default:
			out[name] = domain.CategoricalValue(raw)
		}
	}
	return out, nil
}
