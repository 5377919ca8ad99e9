package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"strategy-lab/internal/domain"
)

// SimOptions configures SimEngine.
type SimOptions struct {
	Broker         domain.BacktestConfig
	RiskFreeRate   float64 // annual, used by the Sharpe ratio (default 0.01)
	PeriodsPerYear float64 // annualization factor for daily returns (default 252)
	Logger         *zap.Logger
}

// SimEngine fills market orders at the next bar's open, charges commission
// as a fraction of notional, rejects buys the cash cannot cover (margin) and
// cancels whatever is still pending when the feed ends. Long-only: a sell
// larger than the open position is rejected.
type SimEngine struct {
	broker         domain.BacktestConfig
	riskFreeRate   float64
	periodsPerYear float64
	logger         *zap.Logger
}

// NewSimEngine creates a simulation engine.
func NewSimEngine(opts SimOptions) *SimEngine {
	if opts.RiskFreeRate == 0 {
		opts.RiskFreeRate = 0.01
	}
	if opts.PeriodsPerYear == 0 {
		opts.PeriodsPerYear = 252
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &SimEngine{
		broker:         opts.Broker,
		riskFreeRate:   opts.RiskFreeRate,
		periodsPerYear: opts.PeriodsPerYear,
		logger:         opts.Logger,
	}
}

// Run executes the simulation. Each call owns its own account state, so one
// SimEngine may serve concurrent runs.
func (e *SimEngine) Run(ctx context.Context, bars []domain.Bar, hooks Hooks) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.broker.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateFeed(bars); err != nil {
		return nil, err
	}

	acct := newAccount(e.broker)
	initial := acct.value(0)
	stamps := make([]time.Time, 0, len(bars))
	values := make([]float64, 0, len(bars))

	for i, bar := range bars {
		acct.now = bar.Timestamp
		for _, n := range acct.match(bar) {
			if err := hooks.OnNotification(n); err != nil {
				return nil, fmt.Errorf("%w: bar %d notification: %w", ErrHook, i, err)
			}
		}

		acct.lastClose = bar.Close
		if err := hooks.OnBar(bar, i, acct); err != nil {
			return nil, fmt.Errorf("%w: bar %d: %w", ErrHook, i, err)
		}

		stamps = append(stamps, bar.Timestamp)
		values = append(values, acct.value(bar.Close))
	}

	for _, n := range acct.cancelPending() {
		e.logger.Debug("order cancelled at end of feed",
			zap.Int("ref", n.Ref),
			zap.String("side", n.Side.String()))
		if err := hooks.OnNotification(n); err != nil {
			return nil, fmt.Errorf("%w: end of feed notification: %w", ErrHook, err)
		}
	}

	return e.analyze(initial, acct, stamps, values), nil
}

func (e *SimEngine) analyze(initial float64, acct *account, stamps []time.Time, values []float64) *Result {
	final := initial
	if len(values) > 0 {
		final = values[len(values)-1]
	}

	pnls := make([]float64, len(acct.closed))
	for i, t := range acct.closed {
		pnls[i] = t.PnLComm
	}

	ddPct, ddMoney := computeMaxDrawdown(initial, values)

	return &Result{
		InitialValue:     initial,
		FinalValue:       final,
		Trades:           acct.closed,
		Sharpe:           computeSharpe(dailyReturns(initial, stamps, values), e.riskFreeRate, e.periodsPerYear),
		MaxDrawdown:      ddPct,
		MaxDrawdownMoney: ddMoney,
		SQN:              computeSQN(pnls),
		Values:           values,
	}
}

// ValidateFeed checks that bars are strictly ascending by timestamp and that
// prices are finite and positive.
func ValidateFeed(bars []domain.Bar) error {
	for i, b := range bars {
		for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return fmt.Errorf("%w: bar %d at %s has invalid price %v", ErrFeed, i, b.Timestamp, p)
			}
		}
		if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
			return fmt.Errorf("%w: bar %d at %s has invalid volume %v", ErrFeed, i, b.Timestamp, b.Volume)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d at %s is not after %s", ErrFeed, i, b.Timestamp, bars[i-1].Timestamp)
		}
	}
	return nil
}

var _ Engine = (*SimEngine)(nil)
