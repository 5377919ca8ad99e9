package backtest

import (
	"time"

	"strategy-lab/internal/domain"
)

// RunOutput holds the result of one backtest run.
type RunOutput struct {
	RunID      string
	Strategy   string // decider name including parameters
	Parameters domain.Assignment

	Initial     float64
	Final       float64
	Trades      []domain.ClosedTrade
	Sharpe      *float64
	MaxDrawdown float64
	SQN         float64

	Events   []domain.Event
	Bars     []domain.Bar
	Values   []float64 // portfolio value after each bar
	Duration time.Duration
}

// AbsoluteReturn is final minus initial portfolio value.
func (o *RunOutput) AbsoluteReturn() float64 {
	return o.Final - o.Initial
}

// RelativeReturn is AbsoluteReturn as a fraction of the initial value.
func (o *RunOutput) RelativeReturn() float64 {
	if o.Initial == 0 {
		return 0
	}
	return o.AbsoluteReturn() / o.Initial
}

// TrialRecord maps the run to a completed trial record.
func (o *RunOutput) TrialRecord(studyID string, index int) domain.TrialRecord {
	var sharpe *float64
	if o.Sharpe != nil {
		s := *o.Sharpe
		sharpe = &s
	}
	return domain.TrialRecord{
		StudyID:               studyID,
		TrialIndex:            index,
		Parameters:            o.Parameters.Clone(),
		Status:                domain.TrialCompleted,
		InitialPortfolioValue: o.Initial,
		FinalPortfolioValue:   o.Final,
		AbsoluteReturn:        o.AbsoluteReturn(),
		RelativeReturn:        o.RelativeReturn(),
		SharpeRatio:           sharpe,
		MaxDrawdown:           o.MaxDrawdown,
		SystemQualityNumber:   o.SQN,
		TradeCount:            len(o.Trades),
		Objective:             o.AbsoluteReturn(),
		Bars:                  o.Bars,
	}
}
