package lifecycle

import (
	"fmt"

	"strategy-lab/internal/domain"
)

// CheckIntegrity verifies an event log: submission ids are unique, every
// execution or rejection resolves exactly one earlier unresolved submission
// of the same side, and at most one submission is outstanding at a time.
func CheckIntegrity(events []domain.Event) error {
	var (
		seen    = make(map[domain.SubmissionID]bool)
		pending *domain.SubmissionID
		buy     bool
	)

	for i, e := range events {
		kind := e.Kind()
		if kind == domain.EventNoAction {
			continue
		}
		ref, ok := e.(domain.Referencing)
		if !ok {
			return fmt.Errorf("%w: event %d (%s) carries no submission id", ErrInvariantViolation, i, kind)
		}
		id := ref.Submission()

		switch {
		case kind.IsSubmission():
			if seen[id] {
				return fmt.Errorf("%w: event %d reuses submission id %s", ErrInvariantViolation, i, id)
			}
			if pending != nil {
				return fmt.Errorf("%w: event %d submits while %s is pending", ErrInvariantViolation, i, *pending)
			}
			seen[id] = true
			pending = &id
			buy = kind == domain.EventBuyOrderSubmission

		default:
			if pending == nil || *pending != id {
				return fmt.Errorf("%w: event %d resolves unknown submission %s", ErrInvariantViolation, i, id)
			}
			isBuy := kind == domain.EventBuyOrderExecution || kind == domain.EventBuyOrderRejection
			if isBuy != buy {
				return fmt.Errorf("%w: event %d (%s) does not match submission side", ErrInvariantViolation, i, kind)
			}
			pending = nil
		}
	}
	return nil
}
