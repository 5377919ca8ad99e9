package domain

import "time"

// Bar is one OHLCV sample for a fixed time interval.
// Feeds are ordered by Timestamp ASC with no duplicates; gaps are allowed.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
