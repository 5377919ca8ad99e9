// Package verification re-runs stored trials and checks that the replayed
// metrics match what was recorded.
package verification

import (
	"math"

	"strategy-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // stored value
	Actual   any    // replayed value
}

// VerificationResult contains the result of verifying a single trial.
type VerificationResult struct {
	StudyID           string
	TrialIndex        int
	Match             bool              // true if all fields match
	Divergences       []FieldDivergence // list of divergent fields
	StoredObjective   float64
	ReplayedObjective float64
}

// VerificationReport contains results for a whole study.
type VerificationReport struct {
	StudyID         string
	TotalTrials     int
	MatchedTrials   int
	DivergentTrials int
	Results         []VerificationResult // ordered by trial index
}

// CompareTrialRecords compares two trial records and returns divergences.
// Bar snapshots are not compared.
func CompareTrialRecords(stored, replayed *domain.TrialRecord) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual any) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.Status != replayed.Status {
		add("Status", stored.Status, replayed.Status)
		// Metrics of a failed trial are undefined; nothing else is comparable.
		return divergences
	}
	if stored.Parameters.Key() != replayed.Parameters.Key() {
		add("Parameters", stored.Parameters.Key(), replayed.Parameters.Key())
	}
	if stored.Failed() {
		return divergences
	}

	if !floatEquals(stored.InitialPortfolioValue, replayed.InitialPortfolioValue) {
		add("InitialPortfolioValue", stored.InitialPortfolioValue, replayed.InitialPortfolioValue)
	}
	if !floatEquals(stored.FinalPortfolioValue, replayed.FinalPortfolioValue) {
		add("FinalPortfolioValue", stored.FinalPortfolioValue, replayed.FinalPortfolioValue)
	}
	if !floatEquals(stored.AbsoluteReturn, replayed.AbsoluteReturn) {
		add("AbsoluteReturn", stored.AbsoluteReturn, replayed.AbsoluteReturn)
	}
	if !floatEquals(stored.RelativeReturn, replayed.RelativeReturn) {
		add("RelativeReturn", stored.RelativeReturn, replayed.RelativeReturn)
	}
	if !floatPtrEquals(stored.SharpeRatio, replayed.SharpeRatio) {
		add("SharpeRatio", stored.SharpeRatio, replayed.SharpeRatio)
	}
	if !floatEquals(stored.MaxDrawdown, replayed.MaxDrawdown) {
		add("MaxDrawdown", stored.MaxDrawdown, replayed.MaxDrawdown)
	}
	if !floatEquals(stored.SystemQualityNumber, replayed.SystemQualityNumber) {
		add("SystemQualityNumber", stored.SystemQualityNumber, replayed.SystemQualityNumber)
	}
	if stored.TradeCount != replayed.TradeCount {
		add("TradeCount", stored.TradeCount, replayed.TradeCount)
	}
	if !floatEquals(stored.Objective, replayed.Objective) {
		add("Objective", stored.Objective, replayed.Objective)
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}
