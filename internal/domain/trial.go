package domain

import "math"

// TrialStatus is the terminal state of a trial.
type TrialStatus string

// Trial statuses.
const (
	TrialCompleted TrialStatus = "completed"
	TrialFailed    TrialStatus = "failed"
)

// TrialRecord is the result of one complete backtest run under one sampled
// parameter assignment. Immutable once recorded.
type TrialRecord struct {
	StudyID    string
	TrialIndex int
	Parameters Assignment
	Status     TrialStatus
	Error      string // failure cause, empty when completed

	InitialPortfolioValue float64
	FinalPortfolioValue   float64
	AbsoluteReturn        float64
	RelativeReturn        float64
	SharpeRatio           *float64 // nil when return variance is zero
	MaxDrawdown           float64  // percent
	SystemQualityNumber   float64
	TradeCount            int

	// Objective is the value the optimizer maximizes: AbsoluteReturn for
	// completed trials, -Inf for failed ones.
	Objective float64

	Bars []Bar // bar log snapshot
}

// Failed reports whether the trial failed.
func (r *TrialRecord) Failed() bool {
	return r.Status == TrialFailed
}

// Clone returns a deep copy of the record.
func (r TrialRecord) Clone() TrialRecord {
	c := r
	c.Parameters = r.Parameters.Clone()
	if r.SharpeRatio != nil {
		v := *r.SharpeRatio
		c.SharpeRatio = &v
	}
	if r.Bars != nil {
		c.Bars = append([]Bar(nil), r.Bars...)
	}
	return c
}

// FailedTrial builds the record for a trial that did not complete.
func FailedTrial(studyID string, index int, params Assignment, err error) TrialRecord {
	rec := TrialRecord{
		StudyID:    studyID,
		TrialIndex: index,
		Parameters: params,
		Status:     TrialFailed,
		Objective:  math.Inf(-1),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
