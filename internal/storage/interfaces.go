package storage

import (
	"context"
	"time"

	"strategy-lab/internal/domain"
)

// TrialStore provides access to trial_records storage.
type TrialStore interface {
	// Insert adds a new trial record. Returns ErrDuplicateKey if (study_id, trial_index) exists.
	Insert(ctx context.Context, r *domain.TrialRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.TrialRecord) error

	// GetByStudy retrieves all records of a study, ordered by trial_index ASC.
	GetByStudy(ctx context.Context, studyID string) ([]*domain.TrialRecord, error)

	// GetByIndex retrieves one record. Returns ErrNotFound if not exists.
	GetByIndex(ctx context.Context, studyID string, trialIndex int) (*domain.TrialRecord, error)
}

// EventStore provides access to run_events storage.
type EventStore interface {
	// InsertBulk stores the event log of a run in order.
	// Returns ErrDuplicateKey if events for runID already exist.
	InsertBulk(ctx context.Context, runID string, rows []domain.EventRow) error

	// GetByRun retrieves the event log of a run in emission order.
	// Returns an empty slice for unknown runs.
	GetByRun(ctx context.Context, runID string) ([]domain.EventRow, error)
}

// BarStore provides access to ohlcv_bars storage.
type BarStore interface {
	// InsertBulk adds bars for a ticker and interval.
	// Fails entire batch on duplicate (ticker, interval, timestamp).
	InsertBulk(ctx context.Context, ticker, interval string, bars []domain.Bar) error

	// GetRange retrieves bars within [start, end), ordered by timestamp ASC.
	GetRange(ctx context.Context, ticker, interval string, start, end time.Time) ([]domain.Bar, error)
}
