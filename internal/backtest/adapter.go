// Package backtest runs one full simulation of a strategy variant under a
// parameter assignment and packages its metrics and logs.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/engine"
	"strategy-lab/internal/idgen"
	"strategy-lab/internal/lifecycle"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

// Options configures an Adapter.
type Options struct {
	// Engine runs the simulation. Defaults to a SimEngine over Backtest.
	Engine engine.Engine

	// Backtest holds cash, commission and stake for the default engine.
	Backtest domain.BacktestConfig

	// IDs creates the submission id generator for a run. Defaults to random ids.
	IDs func(runID string) idgen.Generator

	// Events, when set, receives the event log of every successful run.
	Events storage.EventStore

	// CheckIntegrity verifies the event log after each run.
	CheckIntegrity bool

	Logger *zap.Logger
}

// Adapter executes backtest runs. Runs share no mutable state, so one Adapter
// may serve concurrent callers when its Engine does.
type Adapter struct {
	engine    engine.Engine
	ids       func(runID string) idgen.Generator
	events    storage.EventStore
	integrity bool
	logger    *zap.Logger
}

// NewAdapter creates a new Adapter.
func NewAdapter(opts Options) *Adapter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Backtest == (domain.BacktestConfig{}) {
		opts.Backtest = domain.DefaultBacktestConfig()
	}
	if opts.Engine == nil {
		opts.Engine = engine.NewSimEngine(engine.SimOptions{
			Broker: opts.Backtest,
			Logger: opts.Logger,
		})
	}
	if opts.IDs == nil {
		opts.IDs = func(string) idgen.Generator { return idgen.NewRandom() }
	}
	return &Adapter{
		engine:    opts.Engine,
		ids:       opts.IDs,
		events:    opts.Events,
		integrity: opts.CheckIntegrity,
		logger:    opts.Logger,
	}
}

// Run simulates variant under params over bars.
//
// Errors: strategy factory errors (strategy.ErrUnknownStrategy,
// ErrMissingParam, ErrInvalidParam) are returned as-is, lifecycle
// violations match lifecycle.ErrInvariantViolation, context errors are
// returned unchanged and everything else the engine reports is a
// *SimulationError.
func (a *Adapter) Run(ctx context.Context, params domain.Assignment, variant string, bars []domain.Bar) (*RunOutput, error) {
	decider, err := strategy.FromConfig(variant, params)
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}

	runID := idgen.NewRunID()
	machine := lifecycle.New(decider, a.ids(runID))
	started := time.Now()

	res, err := a.engine.Run(ctx, bars, machine)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrInvariantViolation):
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, &SimulationError{Variant: variant, Bars: len(bars), Err: err}
		}
	}

	events := machine.Events()
	if a.integrity {
		if err := lifecycle.CheckIntegrity(events); err != nil {
			return nil, err
		}
	}

	out := &RunOutput{
		RunID:       runID,
		Strategy:    decider.Name(),
		Parameters:  params.Clone(),
		Initial:     res.InitialValue,
		Final:       res.FinalValue,
		Trades:      res.Trades,
		Sharpe:      res.Sharpe,
		MaxDrawdown: res.MaxDrawdown,
		SQN:         res.SQN,
		Events:      events,
		Bars:        machine.Bars(),
		Values:      res.Values,
		Duration:    time.Since(started),
	}

	if a.events != nil {
		if err := a.events.InsertBulk(ctx, runID, domain.ToRows(events)); err != nil {
			return nil, fmt.Errorf("store events for run %s: %w", runID, err)
		}
	}

	a.logger.Debug("backtest run complete",
		zap.String("run_id", runID),
		zap.String("strategy", out.Strategy),
		zap.Int("bars", len(bars)),
		zap.Int("events", len(events)),
		zap.Int("trades", len(out.Trades)),
		zap.Float64("final_value", out.Final),
		zap.Duration("duration", out.Duration))

	return out, nil
}
