package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

type trialKey struct {
	studyID    string
	trialIndex int
}

// TrialStore is an in-memory implementation of storage.TrialStore.
type TrialStore struct {
	mu   sync.RWMutex
	data map[trialKey]*domain.TrialRecord
}

// NewTrialStore creates a new in-memory trial store.
func NewTrialStore() *TrialStore {
	return &TrialStore{
		data: make(map[trialKey]*domain.TrialRecord),
	}
}

// Insert adds a new trial record. Returns ErrDuplicateKey if (study_id, trial_index) exists.
func (s *TrialStore) Insert(_ context.Context, r *domain.TrialRecord) error {
	if r == nil || r.StudyID == "" || r.TrialIndex < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := trialKey{r.StudyID, r.TrialIndex}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = cloneTrial(r)
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *TrialStore) InsertBulk(_ context.Context, records []*domain.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[trialKey]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if r == nil || r.StudyID == "" || r.TrialIndex < 0 {
			return storage.ErrInvalidInput
		}
		key := trialKey{r.StudyID, r.TrialIndex}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range records {
		s.data[trialKey{r.StudyID, r.TrialIndex}] = cloneTrial(r)
	}
	return nil
}

// GetByStudy retrieves all records of a study, ordered by trial_index ASC.
func (s *TrialStore) GetByStudy(_ context.Context, studyID string) ([]*domain.TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TrialRecord
	for k, r := range s.data {
		if k.studyID == studyID {
			result = append(result, cloneTrial(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TrialIndex < result[j].TrialIndex
	})
	return result, nil
}

// GetByIndex retrieves one record. Returns ErrNotFound if not exists.
func (s *TrialStore) GetByIndex(_ context.Context, studyID string, trialIndex int) (*domain.TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[trialKey{studyID, trialIndex}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneTrial(r), nil
}

func cloneTrial(r *domain.TrialRecord) *domain.TrialRecord {
	c := r.Clone()
	return &c
}

var _ storage.TrialStore = (*TrialStore)(nil)
