package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/engine"
	"strategy-lab/internal/idgen"
	"strategy-lab/internal/strategy"
)

// scriptedDecider signals on fixed bar indexes.
type scriptedDecider struct {
	buyAt  map[int]bool
	sellAt map[int]bool
	calls  int
}

func (d *scriptedDecider) Name() string { return "scripted" }

func (d *scriptedDecider) ShouldBuy(w strategy.Window) strategy.Decision {
	d.calls++
	if d.buyAt[len(w.Bars)-1] {
		return strategy.Signal("buy at %d", len(w.Bars)-1)
	}
	return strategy.Hold
}

func (d *scriptedDecider) ShouldSell(w strategy.Window) strategy.Decision {
	d.calls++
	if d.sellAt[len(w.Bars)-1] {
		return strategy.Signal("sell at %d", len(w.Bars)-1)
	}
	return strategy.Hold
}

type stubBroker struct {
	submitted []engine.OrderRequest
}

func (b *stubBroker) Submit(req engine.OrderRequest) (engine.Ticket, error) {
	b.submitted = append(b.submitted, req)
	size := int64(1)
	if req.Side == engine.SideSell {
		size = -1
	}
	return engine.Ticket{Ref: len(b.submitted), Side: req.Side, Size: size, ClientID: req.ClientID}, nil
}

func (b *stubBroker) Position() int64 { return 0 }
func (b *stubBroker) Cash() float64   { return 0 }
func (b *stubBroker) Value() float64  { return 0 }

func makeBars(opens ...float64) []domain.Bar {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(opens))
	for i, o := range opens {
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      o,
			High:      o + 1,
			Low:       o - 1,
			Close:     o + 0.5,
			Volume:    100,
		}
	}
	return bars
}

func runSim(t *testing.T, cfg domain.BacktestConfig, bars []domain.Bar, d strategy.Decider) *Machine {
	t.Helper()
	m := New(d, idgen.NewSequence("test-run"))
	_, err := engine.NewSimEngine(engine.SimOptions{Broker: cfg}).Run(context.Background(), bars, m)
	require.NoError(t, err)
	return m
}

func kinds(events []domain.Event) []domain.EventKind {
	out := make([]domain.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func TestMachine_FlatStrategyEmitsNoActionPerBar(t *testing.T) {
	opens := make([]float64, 100)
	for i := range opens {
		opens[i] = 100 + float64(i%7)
	}

	m := runSim(t, domain.DefaultBacktestConfig(), makeBars(opens...), strategy.NewFlatStrategy())

	events := m.Events()
	require.Len(t, events, 100)
	for _, e := range events {
		assert.Equal(t, domain.EventNoAction, e.Kind())
	}
	assert.Equal(t, StateFlat, m.State())
	assert.Len(t, m.Bars(), 100)
}

func TestMachine_RoundTrip(t *testing.T) {
	bars := makeBars(100, 101, 102, 103, 104, 105)
	d := &scriptedDecider{buyAt: map[int]bool{0: true}, sellAt: map[int]bool{3: true}}

	m := runSim(t, domain.DefaultBacktestConfig(), bars, d)

	events := m.Events()
	assert.Equal(t, []domain.EventKind{
		domain.EventBuyOrderSubmission,
		domain.EventBuyOrderExecution,
		domain.EventNoAction,
		domain.EventNoAction,
		domain.EventSellOrderSubmission,
		domain.EventSellOrderExecution,
		domain.EventNoAction,
		domain.EventNoAction,
	}, kinds(events))
	require.NoError(t, CheckIntegrity(events))

	buySub := events[0].(domain.BuyOrderSubmission)
	assert.Equal(t, int64(1), buySub.Size)
	assert.Equal(t, 100.5, buySub.RefPrice)
	require.NotNil(t, buySub.Justification)
	assert.Equal(t, "buy at 0", *buySub.Justification)

	buyExec := events[1].(domain.BuyOrderExecution)
	assert.Equal(t, buySub.SubmissionID, buyExec.SubmissionID)
	assert.Equal(t, 101.0, buyExec.RefPrice)
	assert.Equal(t, bars[1].Timestamp, buyExec.Timestamp)

	sellSub := events[4].(domain.SellOrderSubmission)
	assert.NotEqual(t, buySub.SubmissionID, sellSub.SubmissionID)
	assert.Equal(t, int64(-1), sellSub.Size)

	sellExec := events[5].(domain.SellOrderExecution)
	assert.Equal(t, sellSub.SubmissionID, sellExec.SubmissionID)
	assert.Equal(t, 104.0, sellExec.RefPrice)

	assert.Equal(t, StateFlat, m.State())
	assert.Nil(t, m.EntryPrice())
}

func TestMachine_MarginRejection(t *testing.T) {
	cfg := domain.BacktestConfig{Cash: 50, Stake: 1}
	d := &scriptedDecider{buyAt: map[int]bool{0: true}}

	m := runSim(t, cfg, makeBars(100, 100, 100), d)

	events := m.Events()
	assert.Equal(t, []domain.EventKind{
		domain.EventBuyOrderSubmission,
		domain.EventBuyOrderRejection,
		domain.EventNoAction,
		domain.EventNoAction,
	}, kinds(events))

	rej := events[1].(domain.BuyOrderRejection)
	require.NotNil(t, rej.Justification)
	assert.Equal(t, JustificationMargin, *rej.Justification)
	assert.Equal(t, StateFlat, m.State())
	require.NoError(t, CheckIntegrity(events))
}

func TestMachine_CancelledAtEndOfFeed(t *testing.T) {
	d := &scriptedDecider{buyAt: map[int]bool{2: true}}

	m := runSim(t, domain.DefaultBacktestConfig(), makeBars(100, 100, 100), d)

	events := m.Events()
	require.Len(t, events, 4)
	rej, ok := events[3].(domain.BuyOrderRejection)
	require.True(t, ok)
	assert.Equal(t, JustificationCanceled, *rej.Justification)
	assert.Equal(t, StateFlat, m.State())
}

func TestMachine_PendingSkipsDecider(t *testing.T) {
	d := &scriptedDecider{buyAt: map[int]bool{0: true, 1: true}}
	m := New(d, idgen.NewSequence("pending"))
	broker := &stubBroker{}
	bars := makeBars(100, 101, 102)

	require.NoError(t, m.OnBar(bars[0], 0, broker))
	require.Equal(t, StateBuyPending, m.State())
	calls := d.calls

	require.NoError(t, m.OnBar(bars[1], 1, broker))
	require.NoError(t, m.OnBar(bars[2], 2, broker))

	assert.Equal(t, calls, d.calls)
	assert.Len(t, broker.submitted, 1)
	assert.Len(t, m.Events(), 1)
	assert.Len(t, m.Bars(), 3)
}

func TestMachine_SellWithoutEntryPrice(t *testing.T) {
	d := &scriptedDecider{sellAt: map[int]bool{0: true}}
	m := New(d, nil)
	m.state = StateLong

	err := m.OnBar(makeBars(100)[0], 0, &stubBroker{})
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestMachine_UnknownNotification(t *testing.T) {
	m := New(strategy.NewFlatStrategy(), nil)

	err := m.OnNotification(engine.Notification{
		ClientID: idgen.NewRandom().Next().String(),
		Side:     engine.SideBuy,
		Status:   engine.StatusCompleted,
	})
	require.ErrorIs(t, err, ErrInvariantViolation)

	err = m.OnNotification(engine.Notification{ClientID: "not-base58-0OIl"})
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestMachine_SellRejectionReturnsToLong(t *testing.T) {
	d := &scriptedDecider{buyAt: map[int]bool{0: true}, sellAt: map[int]bool{1: true}}
	m := New(d, idgen.NewSequence("sell-reject"))
	broker := &stubBroker{}
	bars := makeBars(100, 101, 102)

	require.NoError(t, m.OnBar(bars[0], 0, broker))
	require.NoError(t, m.OnNotification(engine.Notification{
		ClientID: broker.submitted[0].ClientID, Side: engine.SideBuy,
		Status: engine.StatusCompleted, Time: bars[1].Timestamp,
		ExecutedPrice: 101, ExecutedSize: 1,
	}))
	require.NoError(t, m.OnBar(bars[1], 1, broker))
	require.Equal(t, StateSellPending, m.State())

	require.NoError(t, m.OnNotification(engine.Notification{
		ClientID: broker.submitted[1].ClientID, Side: engine.SideSell,
		Status: engine.StatusRejected, Time: bars[2].Timestamp,
	}))
	assert.Equal(t, StateLong, m.State())
	require.NotNil(t, m.EntryPrice())
	assert.Equal(t, 101.0, *m.EntryPrice())

	last := m.Events()[len(m.Events())-1]
	assert.Equal(t, domain.EventSellOrderRejection, last.Kind())
	require.NoError(t, CheckIntegrity(m.Events()))
}

func TestCheckIntegrity_Violations(t *testing.T) {
	ids := idgen.NewSequence("integrity")
	a, b := ids.Next(), ids.Next()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	buySub := func(id domain.SubmissionID) domain.Event {
		return domain.BuyOrderSubmission{Order: domain.Order{Action: domain.Action{Timestamp: ts}, SubmissionID: id, Size: 1}}
	}
	buyExec := func(id domain.SubmissionID) domain.Event {
		return domain.BuyOrderExecution{Order: domain.Order{Action: domain.Action{Timestamp: ts}, SubmissionID: id, Size: 1}}
	}
	sellRej := func(id domain.SubmissionID) domain.Event {
		return domain.SellOrderRejection{Rejection: domain.Rejection{Timestamp: ts, SubmissionID: id}}
	}

	tests := []struct {
		name   string
		events []domain.Event
		ok     bool
	}{
		{"valid", []domain.Event{buySub(a), buyExec(a)}, true},
		{"orphan execution", []domain.Event{buyExec(a)}, false},
		{"wrong id", []domain.Event{buySub(a), buyExec(b)}, false},
		{"double submit", []domain.Event{buySub(a), buySub(b)}, false},
		{"reused id", []domain.Event{buySub(a), buyExec(a), buySub(a)}, false},
		{"side mismatch", []domain.Event{buySub(a), sellRej(a)}, false},
		{"double resolve", []domain.Event{buySub(a), buyExec(a), buyExec(a)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckIntegrity(tt.events)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvariantViolation)
		})
	}
}
