// Package engine defines the narrow interface to the bar-by-bar market
// simulation (order matching, commission and cash accounting) and ships
// SimEngine, an in-process implementation of it.
package engine

import (
	"context"
	"errors"
	"time"

	"strategy-lab/internal/domain"
)

// Engine errors
var (
	// ErrFeed is returned when the bar feed violates ordering or price rules.
	ErrFeed = errors.New("invalid bar feed")

	// ErrHook wraps errors returned by strategy hooks; the run is aborted.
	ErrHook = errors.New("strategy hook failed")

	// ErrOrder is returned by Broker.Submit for malformed requests.
	ErrOrder = errors.New("invalid order request")
)

// Side is the direction of an order.
type Side int

// Order sides.
const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderStatus is the terminal status reported in a Notification.
type OrderStatus int

// Order statuses.
const (
	StatusCompleted OrderStatus = iota + 1
	StatusCanceled
	StatusMargin
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	case StatusMargin:
		return "margin"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// OrderRequest asks the broker for a market order sized by the configured
// sizing policy. ClientID is opaque to the engine and echoed back on the
// notification.
type OrderRequest struct {
	Side     Side
	ClientID string
}

// Ticket acknowledges an accepted submission.
type Ticket struct {
	Ref      int
	Side     Side
	Size     int64 // signed: positive buy, negative sell
	ClientID string
	Created  time.Time
}

// Notification reports the resolution of a submitted order.
type Notification struct {
	Ref           int
	ClientID      string
	Side          Side
	Status        OrderStatus
	Time          time.Time
	ExecutedPrice float64
	ExecutedSize  int64 // signed like Ticket.Size; zero unless completed
}

// Broker is the order-entry surface handed to hooks on every bar.
type Broker interface {
	Submit(req OrderRequest) (Ticket, error)
	Position() int64
	Cash() float64
	Value() float64
}

// Hooks receive the simulation callbacks. For each bar, notifications for
// orders resolved on that bar are delivered before OnBar.
type Hooks interface {
	OnNotification(n Notification) error
	OnBar(bar domain.Bar, index int, broker Broker) error
}

// Result holds end-of-run analytics.
type Result struct {
	InitialValue     float64
	FinalValue       float64
	Trades           []domain.ClosedTrade
	Sharpe           *float64 // nil when undefined
	MaxDrawdown      float64  // percent of peak value
	MaxDrawdownMoney float64
	SQN              float64
	Values           []float64 // portfolio value after each bar
}

// Engine runs one simulation over a bar feed.
type Engine interface {
	Run(ctx context.Context, bars []domain.Bar, hooks Hooks) (*Result, error)
}
