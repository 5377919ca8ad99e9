// Package idgen generates identifiers for runs and order submissions.
package idgen

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"strategy-lab/internal/domain"
)

// Generator produces submission ids that are unique within one run.
type Generator interface {
	Next() domain.SubmissionID
}

// Random draws 128-bit random ids (UUIDv4).
type Random struct{}

// NewRandom creates a random generator.
func NewRandom() Random { return Random{} }

// Next returns a fresh random id.
func (Random) Next() domain.SubmissionID {
	return domain.SubmissionID(uuid.New())
}

// Sequence derives ids from a run id and a monotonic counter.
// Two sequences with the same run id yield the same ids, which keeps
// repeated runs byte-identical.
type Sequence struct {
	mu    sync.Mutex
	runID string
	n     uint64
}

// NewSequence creates a run-scoped sequence generator.
func NewSequence(runID string) *Sequence {
	return &Sequence{runID: runID}
}

// Next returns the id for the next counter value.
// Formula: first 16 bytes of SHA256(run_id|counter).
func (s *Sequence) Next() domain.SubmissionID {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%x", s.runID, buf)))

	var id domain.SubmissionID
	copy(id[:], hash[:16])
	return id
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

var (
	_ Generator = Random{}
	_ Generator = (*Sequence)(nil)
)
