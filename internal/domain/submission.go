package domain

import (
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// SubmissionID correlates an order submission event with its later
// execution or rejection. It is a 128-bit value; uniqueness is only
// required within a single run's event log.
type SubmissionID uuid.UUID

// NilSubmissionID is the zero identifier.
var NilSubmissionID SubmissionID

// String renders the id in base58 (22 characters at most).
func (id SubmissionID) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether id is the zero identifier.
func (id SubmissionID) IsZero() bool {
	return id == NilSubmissionID
}

// ParseSubmissionID decodes a base58 rendering produced by String.
func ParseSubmissionID(s string) (SubmissionID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return NilSubmissionID, err
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return NilSubmissionID, err
	}
	return SubmissionID(u), nil
}
