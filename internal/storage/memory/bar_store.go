package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

type seriesKey struct {
	ticker   string
	interval string
}

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[seriesKey][]domain.Bar // kept sorted by timestamp
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[seriesKey][]domain.Bar),
	}
}

// InsertBulk adds bars atomically. Fails entire batch on duplicate (ticker, interval, timestamp).
func (s *BarStore) InsertBulk(_ context.Context, ticker, interval string, bars []domain.Bar) error {
	if ticker == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey{ticker, interval}
	existing := s.data[key]

	seen := make(map[int64]struct{}, len(existing)+len(bars))
	for _, b := range existing {
		seen[b.Timestamp.UnixNano()] = struct{}{}
	}
	for _, b := range bars {
		ts := b.Timestamp.UnixNano()
		if _, exists := seen[ts]; exists {
			return storage.ErrDuplicateKey
		}
		seen[ts] = struct{}{}
	}

	merged := make([]domain.Bar, 0, len(existing)+len(bars))
	merged = append(merged, existing...)
	merged = append(merged, bars...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	s.data[key] = merged
	return nil
}

// GetRange retrieves bars within [start, end), ordered by timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, ticker, interval string, start, end time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Bar
	for _, b := range s.data[seriesKey{ticker, interval}] {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			result = append(result, b)
		}
	}
	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
