package reporting

import "time"

// Report summarizes one optimization study.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	StudyID     string
	Strategy    string
	Ticker      string
	Interval    string
	RankMetric  string

	// Trial counts
	TotalTrials     int
	CompletedTrials int
	FailedTrials    int

	// Best completed trial, nil when every trial failed
	Best *TrialRow

	// Top trials by RankMetric, best first
	Top []TrialRow

	// Failures (trial index and cause), ordered by trial index
	Failures []FailureRow
}

// TrialRow is one ranked trial in a report.
type TrialRow struct {
	Rank           int
	TrialIndex     int
	Parameters     string // name=value pairs, sorted by name
	FinalValue     float64
	AbsoluteReturn float64
	RelativeReturn float64
	SharpeRatio    *float64
	MaxDrawdown    float64
	SQN            float64
	Trades         int
}

// FailureRow lists a failed trial.
type FailureRow struct {
	TrialIndex int
	Parameters string
	Error      string
}
