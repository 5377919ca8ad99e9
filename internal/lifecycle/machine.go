// Package lifecycle turns strategy signals and broker notifications into the
// ordered event log of one simulation run.
package lifecycle

import (
	"errors"
	"fmt"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/engine"
	"strategy-lab/internal/idgen"
	"strategy-lab/internal/strategy"
)

// ErrInvariantViolation marks a broken order-lifecycle invariant. It is a
// programming error, never a market outcome.
var ErrInvariantViolation = errors.New("order lifecycle invariant violation")

// Rejection justifications.
const (
	JustificationMargin   = "Order rejected due to insufficient margin."
	JustificationCanceled = "Order canceled."
)

// State is the position/order state of a run.
type State int

// States.
const (
	StateFlat State = iota
	StateBuyPending
	StateLong
	StateSellPending
)

func (s State) String() string {
	switch s {
	case StateFlat:
		return "FLAT"
	case StateBuyPending:
		return "BUY_PENDING"
	case StateLong:
		return "LONG"
	case StateSellPending:
		return "SELL_PENDING"
	default:
		return "UNKNOWN"
	}
}

// Pending reports whether an order is outstanding.
func (s State) Pending() bool {
	return s == StateBuyPending || s == StateSellPending
}

// Machine is the per-run order lifecycle. It implements engine.Hooks and
// must not be shared between runs.
type Machine struct {
	decider strategy.Decider
	ids     idgen.Generator

	state      State
	pending    *domain.SubmissionID
	open       *domain.SubmissionID
	entryPrice *float64
	events     []domain.Event
	bars       []domain.Bar
}

// New creates a Machine in the FLAT state.
func New(decider strategy.Decider, ids idgen.Generator) *Machine {
	if ids == nil {
		ids = idgen.NewRandom()
	}
	return &Machine{decider: decider, ids: ids, state: StateFlat}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// EntryPrice returns the executed buy price of the open position, or nil.
func (m *Machine) EntryPrice() *float64 {
	if m.entryPrice == nil {
		return nil
	}
	p := *m.entryPrice
	return &p
}

// Events returns a copy of the event log.
func (m *Machine) Events() []domain.Event {
	out := make([]domain.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Bars returns a copy of the bars seen so far.
func (m *Machine) Bars() []domain.Bar {
	out := make([]domain.Bar, len(m.bars))
	copy(out, m.bars)
	return out
}

// OnNotification resolves the pending order.
func (m *Machine) OnNotification(n engine.Notification) error {
	id, err := domain.ParseSubmissionID(n.ClientID)
	if err != nil {
		return fmt.Errorf("%w: notification ref %d: %w", ErrInvariantViolation, n.Ref, err)
	}
	if m.pending == nil || *m.pending != id {
		return fmt.Errorf("%w: notification for non-pending submission %s", ErrInvariantViolation, id)
	}

	switch m.state {
	case StateBuyPending:
		if n.Side != engine.SideBuy {
			return fmt.Errorf("%w: %s notification while buy pending", ErrInvariantViolation, n.Side)
		}
		if n.Status == engine.StatusCompleted {
			price := n.ExecutedPrice
			m.entryPrice = &price
			m.open = &id
			m.emit(domain.BuyOrderExecution{Order: domain.Order{
				Action:       domain.Action{Timestamp: n.Time},
				SubmissionID: id,
				Size:         n.ExecutedSize,
				RefPrice:     n.ExecutedPrice,
			}})
			m.state = StateLong
		} else {
			m.emit(domain.BuyOrderRejection{Rejection: rejection(n, id)})
			m.state = StateFlat
		}

	case StateSellPending:
		if n.Side != engine.SideSell {
			return fmt.Errorf("%w: %s notification while sell pending", ErrInvariantViolation, n.Side)
		}
		if n.Status == engine.StatusCompleted {
			m.entryPrice = nil
			m.open = nil
			m.emit(domain.SellOrderExecution{Order: domain.Order{
				Action:       domain.Action{Timestamp: n.Time},
				SubmissionID: id,
				Size:         n.ExecutedSize,
				RefPrice:     n.ExecutedPrice,
			}})
			m.state = StateFlat
		} else {
			m.emit(domain.SellOrderRejection{Rejection: rejection(n, id)})
			m.state = StateLong
		}

	default:
		return fmt.Errorf("%w: pending submission in state %s", ErrInvariantViolation, m.state)
	}

	m.pending = nil
	return nil
}

// OnBar evaluates the decider for the current bar. While an order is pending
// the decider is not consulted and no event is recorded for the bar.
func (m *Machine) OnBar(bar domain.Bar, _ int, broker engine.Broker) error {
	m.bars = append(m.bars, bar)

	switch m.state {
	case StateBuyPending, StateSellPending:
		return nil

	case StateFlat:
		if d := m.decider.ShouldBuy(m.window()); d.Signal {
			return m.submitBuy(bar, broker, d)
		}

	case StateLong:
		if d := m.decider.ShouldSell(m.window()); d.Signal {
			return m.submitSell(bar, broker, d)
		}
	}

	m.emit(domain.NoAction{Action: domain.Action{Timestamp: bar.Timestamp}})
	return nil
}

func (m *Machine) submitBuy(bar domain.Bar, broker engine.Broker, d strategy.Decision) error {
	id := m.ids.Next()
	ticket, err := broker.Submit(engine.OrderRequest{Side: engine.SideBuy, ClientID: id.String()})
	if err != nil {
		return fmt.Errorf("submit buy: %w", err)
	}

	m.emit(domain.BuyOrderSubmission{Order: domain.Order{
		Action:       domain.Action{Timestamp: bar.Timestamp, Justification: d.Justification},
		SubmissionID: id,
		Size:         ticket.Size,
		RefPrice:     bar.Close,
	}})
	m.pending = &id
	m.state = StateBuyPending
	return nil
}

func (m *Machine) submitSell(bar domain.Bar, broker engine.Broker, d strategy.Decision) error {
	if m.open == nil || m.entryPrice == nil {
		return fmt.Errorf("%w: sell submission without an executed buy", ErrInvariantViolation)
	}

	id := m.ids.Next()
	ticket, err := broker.Submit(engine.OrderRequest{Side: engine.SideSell, ClientID: id.String()})
	if err != nil {
		return fmt.Errorf("submit sell: %w", err)
	}

	m.emit(domain.SellOrderSubmission{Order: domain.Order{
		Action:       domain.Action{Timestamp: bar.Timestamp, Justification: d.Justification},
		SubmissionID: id,
		Size:         ticket.Size,
		RefPrice:     bar.Close,
	}})
	m.pending = &id
	m.state = StateSellPending
	return nil
}

func (m *Machine) window() strategy.Window {
	return strategy.Window{
		Bars:       m.bars[:len(m.bars):len(m.bars)],
		EntryPrice: m.EntryPrice(),
	}
}

func (m *Machine) emit(e domain.Event) {
	m.events = append(m.events, e)
}

func rejection(n engine.Notification, id domain.SubmissionID) domain.Rejection {
	msg := JustificationCanceled
	if n.Status == engine.StatusMargin {
		msg = JustificationMargin
	}
	return domain.Rejection{Timestamp: n.Time, SubmissionID: id, Justification: &msg}
}

var _ engine.Hooks = (*Machine)(nil)
