package verification

import (
	"context"
	"errors"
	"fmt"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ErrTrialNotFound is returned when a trial does not exist.
var ErrTrialNotFound = errors.New("trial not found")

// Runner executes one backtest. *backtest.Adapter implements it.
type Runner interface {
	Run(ctx context.Context, params domain.Assignment, variant string, bars []domain.Bar) (*backtest.RunOutput, error)
}

// ReplayVerifier re-runs stored trials over the same bars.
type ReplayVerifier struct {
	trials  storage.TrialStore
	runner  Runner
	variant string
	bars    []domain.Bar
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	TrialStore storage.TrialStore
	Runner     Runner
	Variant    string       // strategy the study optimized
	Bars       []domain.Bar // series the study ran over
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		trials:  opts.TrialStore,
		runner:  opts.Runner,
		variant: opts.Variant,
		bars:    opts.Bars,
	}
}

// VerifyTrial verifies a single trial by replaying its backtest.
func (v *ReplayVerifier) VerifyTrial(ctx context.Context, studyID string, index int) (*VerificationResult, error) {
	stored, err := v.trials.GetByIndex(ctx, studyID, index)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%d", ErrTrialNotFound, studyID, index)
		}
		return nil, err
	}
	return v.verify(ctx, stored)
}

// VerifyStudy verifies every stored trial of a study.
func (v *ReplayVerifier) VerifyStudy(ctx context.Context, studyID string) (*VerificationReport, error) {
	records, err := v.trials.GetByStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		StudyID:     studyID,
		TotalTrials: len(records),
		Results:     make([]VerificationResult, 0, len(records)),
	}

	for _, rec := range records {
		result, err := v.verify(ctx, rec)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedTrials++
		} else {
			report.DivergentTrials++
		}
	}

	return report, nil
}

// verify replays stored. A replay error reproduces a failed trial; only
// context errors are returned.
func (v *ReplayVerifier) verify(ctx context.Context, stored *domain.TrialRecord) (*VerificationResult, error) {
	var replayed domain.TrialRecord
	out, err := v.runner.Run(ctx, stored.Parameters, v.variant, v.bars)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		replayed = domain.FailedTrial(stored.StudyID, stored.TrialIndex, stored.Parameters, err)
	default:
		replayed = out.TrialRecord(stored.StudyID, stored.TrialIndex)
	}

	divergences := CompareTrialRecords(stored, &replayed)
	return &VerificationResult{
		StudyID:           stored.StudyID,
		TrialIndex:        stored.TrialIndex,
		Match:             len(divergences) == 0,
		Divergences:       divergences,
		StoredObjective:   stored.Objective,
		ReplayedObjective: replayed.Objective,
	}, nil
}
