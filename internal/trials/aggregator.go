// Package trials accumulates per-trial optimization results and ranks them.
package trials

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"strategy-lab/internal/domain"
)

// Aggregator errors
var (
	ErrDuplicateTrial = errors.New("trial index already recorded")
	ErrUnknownMetric  = errors.New("unknown ranking metric")
)

// Metric names a ranking key.
type Metric string

// Ranking metrics.
const (
	MetricAbsoluteReturn Metric = "absolute_return"
	MetricRelativeReturn Metric = "relative_return"
	MetricSharpeRatio    Metric = "sharpe_ratio"
	MetricMaxDrawdown    Metric = "max_drawdown"
	MetricSQN            Metric = "sqn"
	MetricFinalValue     Metric = "final_value"
)

// Metrics lists every supported ranking metric.
func Metrics() []Metric {
	return []Metric{
		MetricAbsoluteReturn,
		MetricRelativeReturn,
		MetricSharpeRatio,
		MetricMaxDrawdown,
		MetricSQN,
		MetricFinalValue,
	}
}

// ParseMetric validates a metric name. Empty selects absolute_return.
func ParseMetric(s string) (Metric, error) {
	if s == "" {
		return MetricAbsoluteReturn, nil
	}
	for _, m := range Metrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// Aggregator is an append-only, concurrency-safe collection of trial records.
type Aggregator struct {
	mu      sync.RWMutex
	records []domain.TrialRecord
	indexes map[int]struct{}
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{indexes: make(map[int]struct{})}
}

// Add appends a record. Returns ErrDuplicateTrial if the trial index exists.
func (a *Aggregator) Add(rec domain.TrialRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.indexes[rec.TrialIndex]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTrial, rec.TrialIndex)
	}
	a.indexes[rec.TrialIndex] = struct{}{}
	a.records = append(a.records, rec.Clone())
	return nil
}

// Len returns the number of recorded trials.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Failed returns the number of failed trials.
func (a *Aggregator) Failed() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := 0
	for i := range a.records {
		if a.records[i].Failed() {
			n++
		}
	}
	return n
}

// Records returns copies of all records in insertion order.
func (a *Aggregator) Records() []domain.TrialRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.TrialRecord, len(a.records))
	for i, r := range a.records {
		out[i] = r.Clone()
	}
	return out
}

// Ranked returns records ordered best-first by metric, ties broken by
// ascending trial index. Failed trials and undefined values sort last.
// max_drawdown ranks ascending; every other metric descending.
func (a *Aggregator) Ranked(metric Metric) ([]domain.TrialRecord, error) {
	if metric == "" {
		metric = MetricAbsoluteReturn
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}

	out := a.Records()
	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j], metric)
	})
	return out, nil
}

// Best returns the top completed trial by objective, or nil when none completed.
func (a *Aggregator) Best() *domain.TrialRecord {
	ranked, _ := a.Ranked(MetricAbsoluteReturn)
	if len(ranked) == 0 || ranked[0].Failed() {
		return nil
	}
	best := ranked[0]
	return &best
}

func less(a, b *domain.TrialRecord, metric Metric) bool {
	va, oka := value(a, metric)
	vb, okb := value(b, metric)

	if oka != okb {
		return oka
	}
	if oka && va != vb {
		if metric == MetricMaxDrawdown {
			return va < vb
		}
		return va > vb
	}
	return a.TrialIndex < b.TrialIndex
}

// value extracts the metric. ok is false for failed trials and undefined values.
func value(r *domain.TrialRecord, metric Metric) (float64, bool) {
	if r.Failed() {
		return 0, false
	}

	var v float64
	switch metric {
	case MetricAbsoluteReturn:
		v = r.AbsoluteReturn
	case MetricRelativeReturn:
		v = r.RelativeReturn
	case MetricSharpeRatio:
		if r.SharpeRatio == nil {
			return 0, false
		}
		v = *r.SharpeRatio
	case MetricMaxDrawdown:
		v = r.MaxDrawdown
	case MetricSQN:
		v = r.SystemQualityNumber
	case MetricFinalValue:
		v = r.FinalPortfolioValue
	}

	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Table is a tabular view of the records for export.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Table renders the records in insertion order. Parameter columns are the
// sorted union of all parameter names, prefixed with "param_".
func (a *Aggregator) Table() Table {
	records := a.Records()

	paramSet := make(map[string]struct{})
	for _, r := range records {
		for name := range r.Parameters {
			paramSet[name] = struct{}{}
		}
	}
	params := make([]string, 0, len(paramSet))
	for name := range paramSet {
		params = append(params, name)
	}
	sort.Strings(params)

	cols := []string{"trial", "status"}
	for _, p := range params {
		cols = append(cols, "param_"+p)
	}
	cols = append(cols,
		"initial_value", "final_value", "absolute_return", "relative_return",
		"sharpe_ratio", "max_drawdown", "sqn", "trades", "error")

	rows := make([][]string, len(records))
	for i, r := range records {
		row := []string{strconv.Itoa(r.TrialIndex), string(r.Status)}
		for _, p := range params {
			if v, ok := r.Parameters[p]; ok {
				row = append(row, v.String())
			} else {
				row = append(row, "")
			}
		}
		row = append(row,
			formatFloat(r.InitialPortfolioValue),
			formatFloat(r.FinalPortfolioValue),
			formatFloat(r.AbsoluteReturn),
			formatFloat(r.RelativeReturn),
			formatOptional(r.SharpeRatio),
			formatFloat(r.MaxDrawdown),
			formatFloat(r.SystemQualityNumber),
			strconv.Itoa(r.TradeCount),
			r.Error,
		)
		rows[i] = row
	}

	return Table{Columns: cols, Rows: rows}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
