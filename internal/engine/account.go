package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategy-lab/internal/domain"
)

// account is the per-run broker state. It implements Broker.
type account struct {
	stake      int64
	commission decimal.Decimal
	cash       decimal.Decimal

	position int64
	avgPrice float64

	// open round trip
	openTime time.Time
	openSize int64
	openComm float64
	openPnL  float64

	nextRef int
	pending []Ticket
	closed  []domain.ClosedTrade

	now       time.Time
	lastClose float64
}

func newAccount(cfg domain.BacktestConfig) *account {
	return &account{
		stake:      cfg.Stake,
		commission: decimal.NewFromFloat(cfg.Commission),
		cash:       decimal.NewFromFloat(cfg.Cash),
	}
}

// Submit queues a market order sized by the fixed stake.
func (a *account) Submit(req OrderRequest) (Ticket, error) {
	var size int64
	switch req.Side {
	case SideBuy:
		size = a.stake
	case SideSell:
		size = -a.stake
	default:
		return Ticket{}, fmt.Errorf("%w: side %d", ErrOrder, req.Side)
	}

	a.nextRef++
	t := Ticket{
		Ref:      a.nextRef,
		Side:     req.Side,
		Size:     size,
		ClientID: req.ClientID,
		Created:  a.now,
	}
	a.pending = append(a.pending, t)
	return t, nil
}

// Position returns the signed open position size.
func (a *account) Position() int64 { return a.position }

// Cash returns available cash.
func (a *account) Cash() float64 {
	f, _ := a.cash.Float64()
	return f
}

// Value returns cash plus the position marked at the last close.
func (a *account) Value() float64 { return a.value(a.lastClose) }

func (a *account) value(price float64) float64 {
	pos := decimal.NewFromInt(a.position).Mul(decimal.NewFromFloat(price))
	f, _ := a.cash.Add(pos).Float64()
	return f
}

// match resolves every pending order at the bar's open.
func (a *account) match(bar domain.Bar) []Notification {
	if len(a.pending) == 0 {
		return nil
	}

	out := make([]Notification, 0, len(a.pending))
	for _, t := range a.pending {
		out = append(out, a.fill(t, bar.Open))
	}
	a.pending = nil
	return out
}

func (a *account) fill(t Ticket, open float64) Notification {
	n := Notification{
		Ref:      t.Ref,
		ClientID: t.ClientID,
		Side:     t.Side,
		Time:     a.now,
	}

	qty := t.Size
	if qty < 0 {
		qty = -qty
	}
	price := decimal.NewFromFloat(open)
	notional := price.Mul(decimal.NewFromInt(qty))
	comm := notional.Mul(a.commission)
	commF, _ := comm.Float64()

	switch t.Side {
	case SideBuy:
		if notional.Add(comm).GreaterThan(a.cash) {
			n.Status = StatusMargin
			return n
		}
		a.cash = a.cash.Sub(notional).Sub(comm)
		a.applyBuy(open, qty, commF)
	case SideSell:
		if a.position < qty {
			n.Status = StatusRejected
			return n
		}
		a.cash = a.cash.Add(notional).Sub(comm)
		a.applySell(open, qty, commF)
	}

	n.Status = StatusCompleted
	n.ExecutedPrice = open
	n.ExecutedSize = t.Size
	return n
}

func (a *account) applyBuy(price float64, qty int64, comm float64) {
	if a.position == 0 {
		a.openTime = a.now
		a.openSize = 0
		a.openComm = 0
		a.openPnL = 0
		a.avgPrice = price
	} else {
		a.avgPrice = weightedAvg(a.avgPrice, a.position, price, qty)
	}
	a.position += qty
	a.openSize += qty
	a.openComm += comm
}

func (a *account) applySell(price float64, qty int64, comm float64) {
	a.openPnL += (price - a.avgPrice) * float64(qty)
	a.openComm += comm
	a.position -= qty

	if a.position == 0 {
		a.closed = append(a.closed, domain.ClosedTrade{
			OpenTime:   a.openTime,
			CloseTime:  a.now,
			Size:       a.openSize,
			EntryPrice: a.avgPrice,
			ExitPrice:  price,
			PnL:        a.openPnL,
			PnLComm:    a.openPnL - a.openComm,
		})
		a.avgPrice = 0
	}
}

// cancelPending cancels all orders still queued at the end of the feed.
func (a *account) cancelPending() []Notification {
	out := make([]Notification, 0, len(a.pending))
	for _, t := range a.pending {
		out = append(out, Notification{
			Ref:      t.Ref,
			ClientID: t.ClientID,
			Side:     t.Side,
			Status:   StatusCanceled,
			Time:     a.now,
		})
	}
	a.pending = nil
	return out
}

func weightedAvg(p1 float64, q1 int64, p2 float64, q2 int64) float64 {
	if q1+q2 == 0 {
		return 0
	}
	return (p1*float64(q1) + p2*float64(q2)) / float64(q1+q2)
}

var _ Broker = (*account)(nil)
