package domain

import "time"

// ClosedTrade is one round trip reported by the engine's analytics.
type ClosedTrade struct {
	OpenTime   time.Time
	CloseTime  time.Time
	Size       int64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64 // gross realized profit/loss
	PnLComm    float64 // realized profit/loss net of commission
}
