package domain

import "time"

// EventRow is the flat, tidy form of an event used by exports.
// Fields that do not apply to the event kind are left zero / nil.
type EventRow struct {
	EventType     EventKind
	Timestamp     time.Time
	SubmissionID  string
	Size          *int64
	RefPrice      *float64
	Justification *string
}

// ToRow flattens an event into an EventRow.
func ToRow(e Event) EventRow {
	row := EventRow{EventType: e.Kind(), Timestamp: e.Time()}

	switch v := e.(type) {
	case NoAction:
		row.Justification = v.Justification
	case BuyOrderSubmission:
		fillOrderRow(&row, v.Order)
	case SellOrderSubmission:
		fillOrderRow(&row, v.Order)
	case BuyOrderExecution:
		fillOrderRow(&row, v.Order)
	case SellOrderExecution:
		fillOrderRow(&row, v.Order)
	case BuyOrderRejection:
		row.SubmissionID = v.SubmissionID.String()
		row.Justification = v.Justification
	case SellOrderRejection:
		row.SubmissionID = v.SubmissionID.String()
		row.Justification = v.Justification
	}

	return row
}

// ToRows flattens an event log, preserving order.
func ToRows(events []Event) []EventRow {
	rows := make([]EventRow, len(events))
	for i, e := range events {
		rows[i] = ToRow(e)
	}
	return rows
}

func fillOrderRow(row *EventRow, o Order) {
	size := o.Size
	price := o.RefPrice
	row.SubmissionID = o.SubmissionID.String()
	row.Size = &size
	row.RefPrice = &price
	row.Justification = o.Justification
}
