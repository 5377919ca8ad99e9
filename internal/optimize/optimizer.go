// Package optimize searches a strategy's parameter space by repeatedly
// running full backtests and keeping every trial's metrics.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/idgen"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
	"strategy-lab/internal/trials"
)

// Runner executes one backtest. *backtest.Adapter implements it.
type Runner interface {
	Run(ctx context.Context, params domain.Assignment, variant string, bars []domain.Bar) (*backtest.RunOutput, error)
}

// Progress is reported after every trial.
type Progress struct {
	StudyID       string  `json:"study_id"`
	Trial         int     `json:"trial"` // 1-based count of finished trials
	Total         int     `json:"total"`
	BestObjective float64 `json:"best_objective"` // -Inf until a trial completes
	Failed        bool    `json:"failed"`         // whether this trial failed
}

// Options configures an Optimizer.
type Options struct {
	// StudyID labels trial records. Generated when empty.
	StudyID string

	// Runner executes trials. Defaults to a backtest.Adapter with default options.
	Runner Runner

	// Parallelism > 1 runs batches of trials concurrently when the sampler
	// is a BatchSampler.
	Parallelism int

	// OnProgress is called synchronously after each trial.
	OnProgress func(Progress)

	// TrialStore, when set, receives every trial record. A failed insert is
	// logged and counted in Result.StoreFailures; the study continues.
	TrialStore storage.TrialStore

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Result is the outcome of an optimize call.
type Result struct {
	StudyID    string
	Best       *domain.TrialRecord // nil when every trial failed
	Trials     []domain.TrialRecord
	Aggregator *trials.Aggregator

	// StoreFailures counts trials the TrialStore did not accept.
	StoreFailures int
}

// Optimizer drives the trial loop.
type Optimizer struct {
	opts Options
}

// New creates an Optimizer.
func New(opts Options) *Optimizer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Runner == nil {
		opts.Runner = backtest.NewAdapter(backtest.Options{Logger: opts.Logger})
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Optimizer{opts: opts}
}

// study holds the mutable state of one optimize call.
type study struct {
	id      string
	variant string
	total   int
	agg     *trials.Aggregator
	history []Observation
	best    float64

	storeFailures int
}

// Optimize runs trials backtests of variant over bars, sampling parameters
// from space, and maximizes final minus initial portfolio value.
//
// A trial whose simulation fails is recorded as failed with objective -Inf
// and the search continues. Configuration and sampler errors abort.
func (o *Optimizer) Optimize(ctx context.Context, space Space, variant string, bars []domain.Bar, trialCount int, sampler Sampler) (*Result, error) {
	if sampler == nil {
		return nil, fmt.Errorf("%w: no sampler", ErrConfiguration)
	}
	if err := Check(space, variant, trialCount); err != nil {
		return nil, err
	}

	st := &study{
		id:      o.opts.StudyID,
		variant: variant,
		total:   trialCount,
		agg:     trials.NewAggregator(),
		best:    math.Inf(-1),
	}
	if st.id == "" {
		st.id = idgen.NewRunID()
	}

	o.opts.Logger.Info("optimization started",
		zap.String("study_id", st.id),
		zap.String("strategy", variant),
		zap.Int("trials", trialCount),
		zap.Int("bars", len(bars)),
		zap.Int("parallelism", o.opts.Parallelism))

	var err error
	if batch, ok := sampler.(BatchSampler); ok && o.opts.Parallelism > 1 {
		err = o.runBatches(ctx, st, bars, batch)
	} else {
		err = o.runSequential(ctx, st, bars, sampler)
	}
	if err != nil {
		o.opts.Metrics.RecordStudy("failed", time.Now().Unix())
		return nil, err
	}

	res := &Result{
		StudyID:    st.id,
		Best:       st.agg.Best(),
		Trials:        st.agg.Records(),
		Aggregator:    st.agg,
		StoreFailures: st.storeFailures,
	}

	fields := []zap.Field{
		zap.String("study_id", st.id),
		zap.Int("completed", st.agg.Len()-st.agg.Failed()),
		zap.Int("failed", st.agg.Failed()),
		zap.Int("store_failures", st.storeFailures),
	}
	if res.Best != nil {
		fields = append(fields, zap.Int("best_trial", res.Best.TrialIndex), zap.Float64("best_objective", res.Best.Objective))
	}
	o.opts.Logger.Info("optimization finished", fields...)
	o.opts.Metrics.RecordStudy("completed", time.Now().Unix())

	return res, nil
}

func (o *Optimizer) runSequential(ctx context.Context, st *study, bars []domain.Bar, sampler Sampler) error {
	for i := 0; i < st.total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		params, err := sampler.Propose(st.history)
		if err != nil {
			return fmt.Errorf("%w: trial %d: %w", ErrSampler, i, err)
		}

		rec, err := o.runTrial(ctx, st, i, params, bars)
		if err != nil {
			return err
		}
		if err := o.record(ctx, st, rec, sampler); err != nil {
			return err
		}
	}
	return nil
}

func (o *Optimizer) runBatches(ctx context.Context, st *study, bars []domain.Bar, sampler BatchSampler) error {
	for start := 0; start < st.total; start += o.opts.Parallelism {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := min(o.opts.Parallelism, st.total-start)
		batch, err := sampler.ProposeBatch(st.history, n)
		if err != nil {
			return fmt.Errorf("%w: trials %d-%d: %w", ErrSampler, start, start+n-1, err)
		}
		if len(batch) != n {
			return fmt.Errorf("%w: proposed %d assignments, want %d", ErrSampler, len(batch), n)
		}

		recs := make([]domain.TrialRecord, n)
		g, gctx := errgroup.WithContext(ctx)
		for j := range batch {
			g.Go(func() error {
				rec, err := o.runTrial(gctx, st, start+j, batch[j], bars)
				if err != nil {
					return err
				}
				recs[j] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Observe and record in trial-index order.
		for _, rec := range recs {
			if err := o.record(ctx, st, rec, sampler); err != nil {
				return err
			}
		}
	}
	return nil
}

// runTrial runs one backtest. Only context errors are returned; every other
// failure becomes a failed trial record.
func (o *Optimizer) runTrial(ctx context.Context, st *study, index int, params domain.Assignment, bars []domain.Bar) (domain.TrialRecord, error) {
	started := time.Now()
	out, err := o.opts.Runner.Run(ctx, params, st.variant, bars)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.TrialRecord{}, err
		}
		o.opts.Logger.Warn("trial failed",
			zap.String("study_id", st.id),
			zap.Int("trial", index),
			zap.String("params", params.Key()),
			zap.Error(err))

		rec := domain.FailedTrial(st.id, index, params, err)
		o.opts.Metrics.RecordTrial(st.variant, string(domain.TrialFailed), elapsed.Seconds(), len(bars))
		return rec, nil
	}

	for _, e := range out.Events {
		o.opts.Metrics.RecordOrderEvent(string(e.Kind()))
	}
	o.opts.Metrics.RecordTrial(st.variant, string(domain.TrialCompleted), elapsed.Seconds(), len(bars))

	o.opts.Logger.Debug("trial completed",
		zap.String("study_id", st.id),
		zap.Int("trial", index),
		zap.String("params", params.Key()),
		zap.Float64("objective", out.AbsoluteReturn()),
		zap.Int("trades", len(out.Trades)))

	return out.TrialRecord(st.id, index), nil
}

func (o *Optimizer) record(ctx context.Context, st *study, rec domain.TrialRecord, sampler Sampler) error {
	if err := st.agg.Add(rec); err != nil {
		return err
	}
	if o.opts.TrialStore != nil {
		if err := o.opts.TrialStore.Insert(ctx, &rec); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			st.storeFailures++
			o.opts.Logger.Error("store trial failed",
				zap.String("study_id", st.id),
				zap.Int("trial", rec.TrialIndex),
				zap.Error(err))
		}
	}

	sampler.Observe(rec.Parameters, rec.Objective)
	st.history = append(st.history, Observation{Params: rec.Parameters.Clone(), Objective: rec.Objective})

	if !rec.Failed() && rec.Objective > st.best {
		st.best = rec.Objective
		o.opts.Metrics.SetBestObjective(st.id, st.best)
	}

	if o.opts.OnProgress != nil {
		o.opts.OnProgress(Progress{
			StudyID:       st.id,
			Trial:         st.agg.Len(),
			Total:         st.total,
			BestObjective: st.best,
			Failed:        rec.Failed(),
		})
	}
	return nil
}

// Check validates an optimization request without running it: the trial
// count, every parameter spec and the variant's required parameters.
func Check(space Space, variant string, trialCount int) error {
	if trialCount < 1 {
		return fmt.Errorf("%w: trial count must be >= 1, got %d", ErrConfiguration, trialCount)
	}
	if err := ValidateSpace(space); err != nil {
		return err
	}
	return checkVariant(space, variant)
}

// checkVariant rejects unknown strategies and spaces that leave a required
// parameter unsampled.
func checkVariant(space Space, variant string) error {
	required, err := strategy.Space(variant)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	for _, name := range required.Names() {
		if _, ok := space[name]; !ok {
			return fmt.Errorf("%w: %s requires parameter %s", ErrConfiguration, variant, name)
		}
	}
	return nil
}
