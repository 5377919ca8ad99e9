package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
)

// TrialStore implements storage.TrialStore using PostgreSQL.
// The per-trial bar log is not persisted.
type TrialStore struct {
	pool    *Pool
	metrics *observability.Metrics
}

// NewTrialStore creates a new TrialStore. metrics may be nil.
func NewTrialStore(pool *Pool, metrics *observability.Metrics) *TrialStore {
	return &TrialStore{pool: pool, metrics: metrics}
}

// Compile-time interface check.
var _ storage.TrialStore = (*TrialStore)(nil)

const insertTrialQuery = `
	INSERT INTO trial_records (
		study_id, trial_index, parameters, status, error,
		initial_value, final_value, absolute_return, relative_return,
		sharpe_ratio, max_drawdown, sqn, trade_count, objective
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13, $14
	)
`

const selectTrialColumns = `
	SELECT study_id, trial_index, parameters, status, error,
		initial_value, final_value, absolute_return, relative_return,
		sharpe_ratio, max_drawdown, sqn, trade_count, objective
	FROM trial_records
`

// Insert adds a new trial record. Returns ErrDuplicateKey if (study_id, trial_index) exists.
func (s *TrialStore) Insert(ctx context.Context, r *domain.TrialRecord) error {
	if r == nil || r.StudyID == "" {
		return storage.ErrInvalidInput
	}
	args, err := trialArgs(r)
	if err != nil {
		return err
	}

	started := time.Now()
	_, err = s.pool.Exec(ctx, insertTrialQuery, args...)
	s.metrics.RecordDBQuery("postgres", "insert_trial", time.Since(started).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trial record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *TrialStore) InsertBulk(ctx context.Context, records []*domain.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r == nil || r.StudyID == "" {
			return storage.ErrInvalidInput
		}
		args, err := trialArgs(r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertTrialQuery, args...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trial record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByStudy retrieves all records of a study, ordered by trial_index ASC.
func (s *TrialStore) GetByStudy(ctx context.Context, studyID string) ([]*domain.TrialRecord, error) {
	started := time.Now()
	rows, err := s.pool.Query(ctx, selectTrialColumns+` WHERE study_id = $1 ORDER BY trial_index ASC`, studyID)
	s.metrics.RecordDBQuery("postgres", "get_trials", time.Since(started).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query trial records: %w", err)
	}
	defer rows.Close()

	var result []*domain.TrialRecord
	for rows.Next() {
		r, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trial records: %w", err)
	}
	return result, nil
}

// GetByIndex retrieves one record. Returns ErrNotFound if not exists.
func (s *TrialStore) GetByIndex(ctx context.Context, studyID string, trialIndex int) (*domain.TrialRecord, error) {
	row := s.pool.QueryRow(ctx, selectTrialColumns+` WHERE study_id = $1 AND trial_index = $2`, studyID, trialIndex)
	r, err := scanTrial(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func trialArgs(r *domain.TrialRecord) ([]any, error) {
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	return []any{
		r.StudyID, r.TrialIndex, params, string(r.Status), r.Error,
		r.InitialPortfolioValue, r.FinalPortfolioValue, r.AbsoluteReturn, r.RelativeReturn,
		r.SharpeRatio, r.MaxDrawdown, r.SystemQualityNumber, r.TradeCount, r.Objective,
	}, nil
}

func scanTrial(row pgx.Row) (*domain.TrialRecord, error) {
	var (
		r          domain.TrialRecord
		params     []byte
		status     string
	)
	err := row.Scan(
		&r.StudyID, &r.TrialIndex, &params, &status, &r.Error,
		&r.InitialPortfolioValue, &r.FinalPortfolioValue, &r.AbsoluteReturn, &r.RelativeReturn,
		&r.SharpeRatio, &r.MaxDrawdown, &r.SystemQualityNumber, &r.TradeCount, &r.Objective,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trial record: %w", err)
	}
	if err := json.Unmarshal(params, &r.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	r.Status = domain.TrialStatus(status)
	return &r, nil
}
