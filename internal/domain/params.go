package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParamType is the sampling type of a hyperparameter.
type ParamType string

// Parameter types.
const (
	ParamInt         ParamType = "int"
	ParamFloat       ParamType = "float"
	ParamCategorical ParamType = "categorical"
)

// ParamValue is one sampled hyperparameter value.
// Exactly one of the typed fields is meaningful, selected by Type.
type ParamValue struct {
	Type ParamType
	I    int64
	F    float64
	S    string
}

// IntValue builds an int ParamValue.
func IntValue(v int64) ParamValue { return ParamValue{Type: ParamInt, I: v} }

// FloatValue builds a float ParamValue.
func FloatValue(v float64) ParamValue { return ParamValue{Type: ParamFloat, F: v} }

// CategoricalValue builds a categorical ParamValue.
func CategoricalValue(v string) ParamValue { return ParamValue{Type: ParamCategorical, S: v} }

// Int returns the value as an integer. Floats are truncated.
func (v ParamValue) Int() int64 {
	switch v.Type {
	case ParamInt:
		return v.I
	case ParamFloat:
		return int64(v.F)
	default:
		n, _ := strconv.ParseInt(v.S, 10, 64)
		return n
	}
}

// Float returns the value as a float.
func (v ParamValue) Float() float64 {
	switch v.Type {
	case ParamInt:
		return float64(v.I)
	case ParamFloat:
		return v.F
	default:
		f, _ := strconv.ParseFloat(v.S, 64)
		return f
	}
}

// String renders the value without type information.
func (v ParamValue) String() string {
	switch v.Type {
	case ParamInt:
		return strconv.FormatInt(v.I, 10)
	case ParamFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	default:
		return v.S
	}
}

// Any returns the value as int64, float64 or string.
func (v ParamValue) Any() any {
	switch v.Type {
	case ParamInt:
		return v.I
	case ParamFloat:
		return v.F
	default:
		return v.S
	}
}

type paramJSON struct {
	Type  ParamType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value with its type so ints survive a round trip.
func (v ParamValue) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(v.Any())
	if err != nil {
		return nil, err
	}
	return json.Marshal(paramJSON{Type: v.Type, Value: raw})
}

// UnmarshalJSON decodes a typed value written by MarshalJSON.
func (v *ParamValue) UnmarshalJSON(data []byte) error {
	var p paramJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Type {
	case ParamInt:
		var i int64
		if err := json.Unmarshal(p.Value, &i); err != nil {
			return fmt.Errorf("decode int param: %w", err)
		}
		*v = IntValue(i)
	case ParamFloat:
		var f float64
		if err := json.Unmarshal(p.Value, &f); err != nil {
			return fmt.Errorf("decode float param: %w", err)
		}
		*v = FloatValue(f)
	case ParamCategorical:
		var s string
		if err := json.Unmarshal(p.Value, &s); err != nil {
			return fmt.Errorf("decode categorical param: %w", err)
		}
		*v = CategoricalValue(s)
	default:
		return fmt.Errorf("unknown param type %q", p.Type)
	}
	return nil
}

// Assignment maps parameter names to sampled values.
type Assignment map[string]ParamValue

// Clone returns a copy of the assignment.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Names returns parameter names in sorted order.
func (a Assignment) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Key returns a stable identity string, e.g. "bb_period=20;devfactor=2".
func (a Assignment) Key() string {
	names := a.Names()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%s", n, a[n].String())
	}
	return strings.Join(parts, ";")
}

// Map returns a plain map for JSON encoding.
func (a Assignment) Map() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.Any()
	}
	return out
}

// ParamSpec is the sampling specification of one hyperparameter:
// {int: [min,max]}, {float: [min,max]} or {categorical: [choices]}.
type ParamSpec struct {
	Type    ParamType `yaml:"type" json:"type"`
	Min     float64   `yaml:"min,omitempty" json:"min,omitempty"`
	Max     float64   `yaml:"max,omitempty" json:"max,omitempty"`
	Choices []string  `yaml:"choices,omitempty" json:"choices,omitempty"`
}

// ParamSpace maps parameter names to sampling specifications.
type ParamSpace map[string]ParamSpec

// Names returns parameter names in sorted order.
func (s ParamSpace) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
