// Package sqlite provides a file-backed trial store for local CLI runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/storage/migrations"
)

// Compile-time interface check.
var _ storage.TrialStore = (*TrialStore)(nil)

// TrialStore implements storage.TrialStore backed by a SQLite database.
// Failed trials store a NULL objective, read back as -Inf.
type TrialStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and applies migrations.
func Open(ctx context.Context, path string) (*TrialStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &TrialStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *TrialStore) Close() error {
	return s.db.Close()
}

const insertTrialQuery = `
	INSERT INTO trial_records (
		study_id, trial_index, parameters, status, error,
		initial_value, final_value, absolute_return, relative_return,
		sharpe_ratio, max_drawdown, sqn, trade_count, objective
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectTrialColumns = `
	SELECT study_id, trial_index, parameters, status, error,
		initial_value, final_value, absolute_return, relative_return,
		sharpe_ratio, max_drawdown, sqn, trade_count, objective
	FROM trial_records
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert adds a new trial record. Returns ErrDuplicateKey if (study_id, trial_index) exists.
func (s *TrialStore) Insert(ctx context.Context, r *domain.TrialRecord) error {
	return insertTrial(ctx, s.db, r)
}

// InsertBulk adds multiple records in one transaction. Fails entire batch on any duplicate.
func (s *TrialStore) InsertBulk(ctx context.Context, records []*domain.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := insertTrial(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByStudy retrieves all records of a study, ordered by trial_index ASC.
func (s *TrialStore) GetByStudy(ctx context.Context, studyID string) ([]*domain.TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectTrialColumns+` WHERE study_id = ? ORDER BY trial_index ASC`, studyID)
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
	row := s.db.QueryRowContext(ctx, selectTrialColumns+` WHERE study_id = ? AND trial_index = ?`, studyID, trialIndex)
	r, err := scanTrial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return r, err
}

func insertTrial(ctx context.Context, db execer, r *domain.TrialRecord) error {
	if r == nil || r.StudyID == "" {
		return storage.ErrInvalidInput
	}
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}

	var objective *float64
	if !math.IsInf(r.Objective, 0) && !math.IsNaN(r.Objective) {
		objective = &r.Objective
	}

	_, err = db.ExecContext(ctx, insertTrialQuery,
		r.StudyID, r.TrialIndex, string(params), string(r.Status), r.Error,
		r.InitialPortfolioValue, r.FinalPortfolioValue, r.AbsoluteReturn, r.RelativeReturn,
		r.SharpeRatio, r.MaxDrawdown, r.SystemQualityNumber, r.TradeCount, objective,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trial record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrial(row scanner) (*domain.TrialRecord, error) {
	var (
		r          domain.TrialRecord
		params     string
		status     string
		sharpe     sql.NullFloat64
		objective  sql.NullFloat64
	)
	err := row.Scan(
		&r.StudyID, &r.TrialIndex, &params, &status, &r.Error,
		&r.InitialPortfolioValue, &r.FinalPortfolioValue, &r.AbsoluteReturn, &r.RelativeReturn,
		&sharpe, &r.MaxDrawdown, &r.SystemQualityNumber, &r.TradeCount, &objective,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trial record: %w", err)
	}

	if err := json.Unmarshal([]byte(params), &r.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	r.Status = domain.TrialStatus(status)
	if sharpe.Valid {
		v := sharpe.Float64
		r.SharpeRatio = &v
	}
	r.Objective = math.Inf(-1)
	if objective.Valid {
		r.Objective = objective.Float64
	}
	return &r, nil
}

// isDuplicateKeyError matches SQLite primary key and unique violations.
func isDuplicateKeyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY")
}
