package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EventKind names a concrete event variant.
type EventKind string

// Event kinds.
const (
	EventNoAction            EventKind = "NoAction"
	EventBuyOrderSubmission  EventKind = "BuyOrderSubmission"
	EventSellOrderSubmission EventKind = "SellOrderSubmission"
	EventBuyOrderExecution   EventKind = "BuyOrderExecution"
	EventSellOrderExecution  EventKind = "SellOrderExecution"
	EventBuyOrderRejection   EventKind = "BuyOrderRejection"
	EventSellOrderRejection  EventKind = "SellOrderRejection"
)

// IsSubmission reports whether k is a buy or sell submission.
func (k EventKind) IsSubmission() bool {
	return k == EventBuyOrderSubmission || k == EventSellOrderSubmission
}

// IsExecution reports whether k is a buy or sell execution.
func (k EventKind) IsExecution() bool {
	return k == EventBuyOrderExecution || k == EventSellOrderExecution
}

// IsRejection reports whether k is a buy or sell rejection.
func (k EventKind) IsRejection() bool {
	return k == EventBuyOrderRejection || k == EventSellOrderRejection
}

// Event is an immutable record of a strategy action or an order lifecycle
// transition, stamped with the wall-clock time of the simulated bar.
type Event interface {
	Time() time.Time
	Kind() EventKind
	String() string
}

// Referencing is implemented by events that carry a submission id.
type Referencing interface {
	Event
	Submission() SubmissionID
}

// Action is the common part of strategy-initiated events.
type Action struct {
	Timestamp     time.Time
	Justification *string // free-form diagnostic, nil when absent
}

// Time returns the bar timestamp.
func (a Action) Time() time.Time { return a.Timestamp }

// NoAction records a bar on which nothing happened.
type NoAction struct {
	Action
}

// Kind returns EventNoAction.
func (NoAction) Kind() EventKind { return EventNoAction }

func (e NoAction) String() string {
	return render(e.Kind(), e.Timestamp, map[string]string{
		"justification": renderJustification(e.Justification),
	})
}

// Order carries the fields shared by submissions and executions.
type Order struct {
	Action
	SubmissionID SubmissionID
	Size         int64 // signed: negative for sells as reported by the engine
	RefPrice     float64
}

// Submission returns the order's submission id.
func (o Order) Submission() SubmissionID { return o.SubmissionID }

func (o Order) fields() map[string]string {
	return map[string]string{
		"justification": renderJustification(o.Justification),
		"ref_price":     strconv.FormatFloat(o.RefPrice, 'g', -1, 64),
		"size":          strconv.FormatInt(o.Size, 10),
		"submission_id": o.SubmissionID.String(),
	}
}

// BuyOrderSubmission is emitted when a buy order is sent to the engine.
type BuyOrderSubmission struct{ Order }

// Kind returns EventBuyOrderSubmission.
func (BuyOrderSubmission) Kind() EventKind { return EventBuyOrderSubmission }

func (e BuyOrderSubmission) String() string { return render(e.Kind(), e.Timestamp, e.fields()) }

// SellOrderSubmission is emitted when a sell order is sent to the engine.
type SellOrderSubmission struct{ Order }

// Kind returns EventSellOrderSubmission.
func (SellOrderSubmission) Kind() EventKind { return EventSellOrderSubmission }

func (e SellOrderSubmission) String() string { return render(e.Kind(), e.Timestamp, e.fields()) }

// BuyOrderExecution is emitted when the engine fills a buy order.
type BuyOrderExecution struct{ Order }

// Kind returns EventBuyOrderExecution.
func (BuyOrderExecution) Kind() EventKind { return EventBuyOrderExecution }

func (e BuyOrderExecution) String() string { return render(e.Kind(), e.Timestamp, e.fields()) }

// SellOrderExecution is emitted when the engine fills a sell order.
type SellOrderExecution struct{ Order }

// Kind returns EventSellOrderExecution.
func (SellOrderExecution) Kind() EventKind { return EventSellOrderExecution }

func (e SellOrderExecution) String() string { return render(e.Kind(), e.Timestamp, e.fields()) }

// Rejection records an order the engine refused, cancelled or margin-called.
type Rejection struct {
	Timestamp     time.Time
	SubmissionID  SubmissionID
	Justification *string
}

// Time returns the bar timestamp.
func (r Rejection) Time() time.Time { return r.Timestamp }

// Submission returns the rejected order's submission id.
func (r Rejection) Submission() SubmissionID { return r.SubmissionID }

func (r Rejection) fields() map[string]string {
	return map[string]string{
		"justification": renderJustification(r.Justification),
		"submission_id": r.SubmissionID.String(),
	}
}

// BuyOrderRejection is emitted when a buy order fails.
type BuyOrderRejection struct{ Rejection }

// Kind returns EventBuyOrderRejection.
func (BuyOrderRejection) Kind() EventKind { return EventBuyOrderRejection }

func (e BuyOrderRejection) String() string { return render(e.Kind(), e.Timestamp, e.fields()) }

// SellOrderRejection is emitted when a sell order fails.
type SellOrderRejection struct{ Rejection }

// Kind returns EventSellOrderRejection.
func (SellOrderRejection) Kind() EventKind { return EventSellOrderRejection }

func (e SellOrderRejection) String() string { return render(e.Kind(), e.Timestamp, e.fields()) }

// Justify returns a pointer to a formatted justification string.
func Justify(format string, args ...any) *string {
	s := fmt.Sprintf(format, args...)
	return &s
}

// render produces Kind(t=<iso>, a=.., b=..) with fields sorted by name.
func render(kind EventKind, ts time.Time, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return fmt.Sprintf("%s(t=%s, %s)", kind, ts.Format(time.RFC3339Nano), strings.Join(parts, ", "))
}

func renderJustification(j *string) string {
	if j == nil {
		return "null"
	}
	return *j
}

// Compile-time interface checks.
var (
	_ Event       = NoAction{}
	_ Referencing = BuyOrderSubmission{}
	_ Referencing = SellOrderSubmission{}
	_ Referencing = BuyOrderExecution{}
	_ Referencing = SellOrderExecution{}
	_ Referencing = BuyOrderRejection{}
	_ Referencing = SellOrderRejection{}
)
