package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
)

// scriptedHooks submits orders on predetermined bar indexes and records
// every notification.
type scriptedHooks struct {
	orders        map[int]Side
	notifications []Notification
	tickets       []Ticket
}

func (h *scriptedHooks) OnNotification(n Notification) error {
	h.notifications = append(h.notifications, n)
	return nil
}

func (h *scriptedHooks) OnBar(_ domain.Bar, index int, broker Broker) error {
	side, ok := h.orders[index]
	if !ok {
		return nil
	}
	t, err := broker.Submit(OrderRequest{Side: side, ClientID: side.String()})
	if err != nil {
		return err
	}
	h.tickets = append(h.tickets, t)
	return nil
}

func makeBars(opens ...float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(opens))
	for i, o := range opens {
		bars[i] = domain.Bar{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      o,
			High:      o + 1,
			Low:       o - 1,
			Close:     o,
			Volume:    100,
		}
	}
	return bars
}

func TestSimEngine_RoundTrip(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.BacktestConfig{Cash: 1000, Commission: 0.01, Stake: 2}})
	hooks := &scriptedHooks{orders: map[int]Side{0: SideBuy, 2: SideSell}}

	res, err := eng.Run(context.Background(), makeBars(100, 100, 110, 120, 120), hooks)
	require.NoError(t, err)

	require.Len(t, hooks.notifications, 2)
	buy := hooks.notifications[0]
	assert.Equal(t, StatusCompleted, buy.Status)
	assert.Equal(t, "buy", buy.ClientID)
	assert.Equal(t, 100.0, buy.ExecutedPrice)
	assert.Equal(t, int64(2), buy.ExecutedSize)

	sell := hooks.notifications[1]
	assert.Equal(t, StatusCompleted, sell.Status)
	assert.Equal(t, 120.0, sell.ExecutedPrice)
	assert.Equal(t, int64(-2), sell.ExecutedSize)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, int64(2), trade.Size)
	assert.InDelta(t, 40.0, trade.PnL, 1e-9)
	// commission: 2*100*0.01 + 2*120*0.01 = 4.4
	assert.InDelta(t, 35.6, trade.PnLComm, 1e-9)

	assert.Equal(t, 1000.0, res.InitialValue)
	assert.InDelta(t, 1035.6, res.FinalValue, 1e-9)
	assert.Len(t, res.Values, 5)
}

func TestSimEngine_MarginRejection(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.BacktestConfig{Cash: 50, Stake: 1}})
	hooks := &scriptedHooks{orders: map[int]Side{0: SideBuy}}

	res, err := eng.Run(context.Background(), makeBars(100, 100), hooks)
	require.NoError(t, err)

	require.Len(t, hooks.notifications, 1)
	assert.Equal(t, StatusMargin, hooks.notifications[0].Status)
	assert.Zero(t, hooks.notifications[0].ExecutedSize)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 50.0, res.FinalValue)
}

func TestSimEngine_SellWithoutPositionRejected(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.DefaultBacktestConfig()})
	hooks := &scriptedHooks{orders: map[int]Side{0: SideSell}}

	_, err := eng.Run(context.Background(), makeBars(100, 100), hooks)
	require.NoError(t, err)

	require.Len(t, hooks.notifications, 1)
	assert.Equal(t, StatusRejected, hooks.notifications[0].Status)
}

func TestSimEngine_CancelPendingAtEnd(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.DefaultBacktestConfig()})
	hooks := &scriptedHooks{orders: map[int]Side{2: SideBuy}}

	bars := makeBars(100, 101, 102)
	_, err := eng.Run(context.Background(), bars, hooks)
	require.NoError(t, err)

	require.Len(t, hooks.notifications, 1)
	n := hooks.notifications[0]
	assert.Equal(t, StatusCanceled, n.Status)
	assert.Equal(t, bars[2].Timestamp, n.Time)
}

func TestSimEngine_InvalidFeed(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.DefaultBacktestConfig()})

	bars := makeBars(100, 101)
	bars[1].Timestamp = bars[0].Timestamp
	_, err := eng.Run(context.Background(), bars, &scriptedHooks{})
	assert.ErrorIs(t, err, ErrFeed)

	bars = makeBars(100, math.NaN())
	_, err = eng.Run(context.Background(), bars, &scriptedHooks{})
	assert.ErrorIs(t, err, ErrFeed)

	for _, vol := range []float64{math.Inf(1), math.NaN(), -1} {
		bars = makeBars(100, 101)
		bars[1].Volume = vol
		_, err = eng.Run(context.Background(), bars, &scriptedHooks{})
		assert.ErrorIs(t, err, ErrFeed, "volume %v", vol)
	}
}

type failingHooks struct{ scriptedHooks }

func (h *failingHooks) OnBar(domain.Bar, int, Broker) error {
	return assert.AnError
}

func TestSimEngine_HookErrorAborts(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.DefaultBacktestConfig()})

	_, err := eng.Run(context.Background(), makeBars(100, 101), &failingHooks{})
	assert.ErrorIs(t, err, ErrHook)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSimEngine_EmptyFeed(t *testing.T) {
	eng := NewSimEngine(SimOptions{Broker: domain.DefaultBacktestConfig()})

	res, err := eng.Run(context.Background(), nil, &scriptedHooks{})
	require.NoError(t, err)
	assert.Equal(t, res.InitialValue, res.FinalValue)
	assert.Nil(t, res.Sharpe)
}

func TestComputeMaxDrawdown(t *testing.T) {
	pct, money := computeMaxDrawdown(100, []float64{110, 99, 120, 108})
	assert.InDelta(t, 10.0, pct, 1e-9)
	assert.InDelta(t, 12.0, money, 1e-9)
}

func TestComputeSQN(t *testing.T) {
	assert.Zero(t, computeSQN(nil))
	assert.Zero(t, computeSQN([]float64{5}))
	assert.Zero(t, computeSQN([]float64{3, 3, 3}))

	// mean 2, population stddev 1 -> sqrt(2)*2/1
	assert.InDelta(t, math.Sqrt(2)*2, computeSQN([]float64{1, 3}), 1e-9)
}

func TestComputeSharpe_ZeroVariance(t *testing.T) {
	assert.Nil(t, computeSharpe(nil, 0.01, 252))
	assert.Nil(t, computeSharpe([]float64{0.01, 0.01, 0.01}, 0, 252))

	s := computeSharpe([]float64{0.01, -0.01, 0.02}, 0, 252)
	require.NotNil(t, s)
	assert.Greater(t, *s, 0.0)
}

func TestDailyReturns_BucketsByDay(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		day.Add(1 * time.Hour),
		day.Add(2 * time.Hour),
		day.Add(25 * time.Hour),
	}
	returns := dailyReturns(100, times, []float64{101, 110, 121})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, 0.10, returns[1], 1e-9)
}
