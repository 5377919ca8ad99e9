package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

var eventColumns = []string{
	"run_id", "seq", "event_type", "ts", "submission_id", "size", "ref_price", "justification",
}

// InsertBulk copies the event log of a run. Returns ErrDuplicateKey if the run exists.
func (s *EventStore) InsertBulk(ctx context.Context, runID string, rows []domain.EventRow) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM run_events WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("check run exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"run_events"}, eventColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				runID, i, string(r.EventType), r.Timestamp, r.SubmissionID,
				r.Size, r.RefPrice, r.Justification,
			}, nil
		}))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy run events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves the event log of a run in emission order.
func (s *EventStore) GetByRun(ctx context.Context, runID string) ([]domain.EventRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, ts, submission_id, size, ref_price, justification
		FROM run_events
		WHERE run_id = $1
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	result := []domain.EventRow{}
	for rows.Next() {
		var (
			r    domain.EventRow
			kind string
		)
		if err := rows.Scan(&kind, &r.Timestamp, &r.SubmissionID, &r.Size, &r.RefPrice, &r.Justification); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		r.EventType = domain.EventKind(kind)
		r.Timestamp = r.Timestamp.UTC()
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return result, nil
}
