package memory

import (
	"context"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string][]domain.EventRow // keyed by run_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string][]domain.EventRow),
	}
}

// InsertBulk stores the event log of a run. Returns ErrDuplicateKey if the run exists.
func (s *EventStore) InsertBulk(_ context.Context, runID string, rows []domain.EventRow) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[runID] = append([]domain.EventRow{}, rows...)
	return nil
}

// GetByRun retrieves the event log of a run in emission order.
func (s *EventStore) GetByRun(_ context.Context, runID string) ([]domain.EventRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.EventRow{}, s.data[runID]...), nil
}

// Runs returns the number of stored runs.
func (s *EventStore) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.EventStore = (*EventStore)(nil)
