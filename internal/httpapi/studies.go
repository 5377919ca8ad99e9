package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/idgen"
	"strategy-lab/internal/marketdata"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/optimize"
	"strategy-lab/internal/progress"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

// ErrInvalidRequest marks a study request rejected before any trial runs.
var ErrInvalidRequest = errors.New("invalid study request")

// Study states.
const (
	StudyRunning   = "running"
	StudyCompleted = "completed"
	StudyFailed    = "failed"
)

// StudyRequest starts an optimization.
type StudyRequest struct {
	Strategy    string                 `json:"strategy"`
	Trials      int                    `json:"trials"`
	Sampler     string                 `json:"sampler,omitempty"`
	GridSteps   int                    `json:"grid_steps,omitempty"`
	Seed        int64                  `json:"seed,omitempty"`
	Parallelism int                    `json:"parallelism,omitempty"`
	Space       domain.ParamSpace      `json:"space,omitempty"` // defaults to the strategy's space
	Data        domain.DataConfig      `json:"data"`
	Backtest    *domain.BacktestConfig `json:"backtest,omitempty"`
}

// StudyStatus reports the state of a launched study.
type StudyStatus struct {
	StudyID    string    `json:"study_id"`
	Strategy   string    `json:"strategy"`
	State      string    `json:"state"`
	Trials     int       `json:"trials"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// LauncherOptions configures a Launcher.
type LauncherOptions struct {
	// Bars backs the "store" data source. Optional.
	Bars storage.BarStore

	// Trials receives every trial record. Required for results to be served.
	Trials storage.TrialStore

	// Events receives run event logs. Optional.
	Events storage.EventStore

	// Backtest is used when a request carries no broker settings.
	Backtest domain.BacktestConfig

	Hub     *progress.Hub
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Launcher runs optimizations in the background.
type Launcher struct {
	ctx  context.Context
	opts LauncherOptions

	wg     sync.WaitGroup
	mu     sync.RWMutex
	status map[string]*StudyStatus
}

// NewLauncher creates a Launcher. Studies stop when ctx is cancelled.
func NewLauncher(ctx context.Context, opts LauncherOptions) *Launcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Backtest == (domain.BacktestConfig{}) {
		opts.Backtest = domain.DefaultBacktestConfig()
	}
	return &Launcher{
		ctx:    ctx,
		opts:   opts,
		status: make(map[string]*StudyStatus),
	}
}

// Start validates req, loads its bars and starts the optimization. It returns
// the study id as soon as the study is running.
func (l *Launcher) Start(ctx context.Context, req StudyRequest) (string, error) {
	space := req.Space
	if len(space) == 0 {
		s, err := strategy.Space(req.Strategy)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		space = s
	}
	if err := optimize.Check(space, req.Strategy, req.Trials); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	sampler, err := optimize.NewSampler(req.Sampler, space, req.Seed, req.GridSteps)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	broker := l.opts.Backtest
	if req.Backtest != nil {
		broker = *req.Backtest
	}
	if err := broker.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := req.Data.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	provider, err := marketdata.FromConfig(req.Data, l.opts.Bars, req.Seed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	bars, err := provider.Bars(ctx, req.Data)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) || errors.Is(err, marketdata.ErrInvalidBars) {
			return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return "", fmt.Errorf("load bars: %w", err)
	}

	studyID := idgen.NewRunID()
	status := &StudyStatus{
		StudyID:   studyID,
		Strategy:  req.Strategy,
		State:     StudyRunning,
		Trials:    req.Trials,
		StartedAt: time.Now().UTC(),
	}
	l.mu.Lock()
	l.status[studyID] = status
	l.mu.Unlock()

	opt := optimize.New(optimize.Options{
		StudyID: studyID,
		Runner: backtest.NewAdapter(backtest.Options{
			Backtest: broker,
			Events:   l.opts.Events,
			Logger:   l.opts.Logger,
		}),
		Parallelism: req.Parallelism,
		OnProgress:  l.publish,
		TrialStore:  l.opts.Trials,
		Metrics:     l.opts.Metrics,
		Logger:      l.opts.Logger,
	})

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_, err := opt.Optimize(l.ctx, space, req.Strategy, bars, req.Trials, sampler)
		l.finish(studyID, err)
	}()

	return studyID, nil
}

// Status returns the state of a launched study.
func (l *Launcher) Status(studyID string) (StudyStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.status[studyID]
	if !ok {
		return StudyStatus{}, false
	}
	return *s, true
}

// Wait blocks until every launched study has finished.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

func (l *Launcher) publish(p optimize.Progress) {
	if l.opts.Hub != nil {
		l.opts.Hub.Publish(p)
	}
}

func (l *Launcher) finish(studyID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.status[studyID]
	s.FinishedAt = time.Now().UTC()
	if err != nil {
		s.State = StudyFailed
		s.Error = err.Error()
		l.opts.Logger.Error("study failed", zap.String("study_id", studyID), zap.Error(err))
		return
	}
	s.State = StudyCompleted
}
