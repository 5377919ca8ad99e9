package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/trials"
)

// DefaultTopN is the number of ranked trials included when Options.TopN is zero.
const DefaultTopN = 10

// Options selects what a report contains.
type Options struct {
	StudyID    string
	Strategy   string
	Data       domain.DataConfig
	RankMetric trials.Metric
	TopN       int
}

// Generator produces reports from aggregated trial results.
type Generator struct {
	agg *trials.Aggregator
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(agg *trials.Aggregator) *Generator {
	return &Generator{
		agg: agg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a study report.
func (g *Generator) Generate(opts Options) (*Report, error) {
	metric := opts.RankMetric
	if metric == "" {
		metric = trials.MetricAbsoluteReturn
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	ranked, err := g.agg.Ranked(metric)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		StudyID:     opts.StudyID,
		Strategy:    opts.Strategy,
		Ticker:      opts.Data.Ticker,
		Interval:    opts.Data.Interval,
		RankMetric:  string(metric),
		TotalTrials: len(ranked),
	}

	for _, rec := range ranked {
		if rec.Failed() {
			r.FailedTrials++
			r.Failures = append(r.Failures, FailureRow{
				TrialIndex: rec.TrialIndex,
				Parameters: FormatParams(rec.Parameters),
				Error:      rec.Error,
			})
			continue
		}
		r.CompletedTrials++
		if len(r.Top) < topN {
			r.Top = append(r.Top, toTrialRow(len(r.Top)+1, rec))
		}
	}
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].TrialIndex < r.Failures[j].TrialIndex
	})

	if best := g.agg.Best(); best != nil {
		row := toTrialRow(1, *best)
		r.Best = &row
	}

	return r, nil
}

func toTrialRow(rank int, rec domain.TrialRecord) TrialRow {
	return TrialRow{
		Rank:           rank,
		TrialIndex:     rec.TrialIndex,
		Parameters:     FormatParams(rec.Parameters),
		FinalValue:     rec.FinalPortfolioValue,
		AbsoluteReturn: rec.AbsoluteReturn,
		RelativeReturn: rec.RelativeReturn,
		SharpeRatio:    rec.SharpeRatio,
		MaxDrawdown:    rec.MaxDrawdown,
		SQN:            rec.SystemQualityNumber,
		Trades:         rec.TradeCount,
	}
}

// FormatParams renders an assignment as "a=1, b=0.5" sorted by name.
func FormatParams(a domain.Assignment) string {
	names := a.Names()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%s", name, a[name].String())
	}
	return strings.Join(parts, ", ")
}
