package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/trials"
)

// EventColumns is the header of the tidy event export.
var EventColumns = []string{"event_type", "timestamp", "submission_id", "size", "ref_price", "justification"}

// WriteTrialsCSV writes the aggregator table as CSV.
func WriteTrialsCSV(w io.Writer, table trials.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteEventsCSV writes a tidy event log. Fields that do not apply to an
// event kind are left empty.
func WriteEventsCSV(w io.Writer, rows []domain.EventRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			string(r.EventType),
			r.Timestamp.UTC().Format(time.RFC3339),
			r.SubmissionID,
			"",
			"",
			"",
		}
		if r.Size != nil {
			rec[3] = strconv.FormatInt(*r.Size, 10)
		}
		if r.RefPrice != nil {
			rec[4] = strconv.FormatFloat(*r.RefPrice, 'f', -1, 64)
		}
		if r.Justification != nil {
			rec[5] = *r.Justification
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
