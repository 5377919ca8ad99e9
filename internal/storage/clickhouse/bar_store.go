package clickhouse

import (
	"context"
	"fmt"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds bars for a ticker and interval. MergeTree does not enforce
// uniqueness, so duplicates (intra-batch and against stored rows) are checked
// before the batch is sent.
func (s *BarStore) InsertBulk(ctx context.Context, ticker, interval string, bars []domain.Bar) error {
	if ticker == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(bars))
	lo, hi := bars[0].Timestamp, bars[0].Timestamp
	for _, b := range bars {
		ms := b.Timestamp.UnixMilli()
		if _, exists := seen[ms]; exists {
			return storage.ErrDuplicateKey
		}
		seen[ms] = struct{}{}
		if b.Timestamp.Before(lo) {
			lo = b.Timestamp
		}
		if b.Timestamp.After(hi) {
			hi = b.Timestamp
		}
	}

	existing, err := s.GetRange(ctx, ticker, interval, lo, hi.Add(time.Millisecond))
	if err != nil {
		return fmt.Errorf("check existing bars: %w", err)
	}
	for _, b := range existing {
		if _, dup := seen[b.Timestamp.UnixMilli()]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ohlcv_bars (
			ticker, bar_interval, ts, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			ticker, interval, b.Timestamp.UTC(),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange retrieves bars within [start, end), ordered by timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, ticker, interval string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE ticker = ? AND bar_interval = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, ticker, interval, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var result []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return result, nil
}
