package httpapi

import (
	"math"

	"strategy-lab/internal/domain"
)

// TrialDTO is the JSON form of a trial record. Objective is null for failed
// trials.
type TrialDTO struct {
	StudyID        string         `json:"study_id"`
	TrialIndex     int            `json:"trial_index"`
	Status         string         `json:"status"`
	Parameters     map[string]any `json:"parameters"`
	InitialValue   float64        `json:"initial_value"`
	FinalValue     float64        `json:"final_value"`
	AbsoluteReturn float64        `json:"absolute_return"`
	RelativeReturn float64        `json:"relative_return"`
	SharpeRatio    *float64       `json:"sharpe_ratio"`
	MaxDrawdown    float64        `json:"max_drawdown"`
	SQN            float64        `json:"sqn"`
	Trades         int            `json:"trades"`
	Objective      *float64       `json:"objective"`
	Error          string         `json:"error,omitempty"`
}

// TrialsResponse lists the trials of a study.
type TrialsResponse struct {
	StudyID string     `json:"study_id"`
	Rank    string     `json:"rank,omitempty"`
	Failed  int        `json:"failed"`
	Trials  []TrialDTO `json:"trials"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toTrialDTO(r domain.TrialRecord) TrialDTO {
	dto := TrialDTO{
		StudyID:        r.StudyID,
		TrialIndex:     r.TrialIndex,
		Status:         string(r.Status),
		Parameters:     r.Parameters.Map(),
		InitialValue:   r.InitialPortfolioValue,
		FinalValue:     r.FinalPortfolioValue,
		AbsoluteReturn: r.AbsoluteReturn,
		RelativeReturn: r.RelativeReturn,
		SharpeRatio:    r.SharpeRatio,
		MaxDrawdown:    r.MaxDrawdown,
		SQN:            r.SystemQualityNumber,
		Trades:         r.TradeCount,
		Error:          r.Error,
	}
	if !math.IsInf(r.Objective, 0) && !math.IsNaN(r.Objective) {
		obj := r.Objective
		dto.Objective = &obj
	}
	return dto
}
