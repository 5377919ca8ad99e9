// Command optimize searches a strategy's hyperparameter space with repeated
// backtests and exports the trial results.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"strategy-lab/internal/app"
	"strategy-lab/internal/backtest"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/logging"
	"strategy-lab/internal/marketdata"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/optimize"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
	"strategy-lab/internal/trials"
	"strategy-lab/internal/verification"
)

type flags struct {
	configPath  string
	strategy    string
	trials      int
	sampler     string
	seed        int64
	parallelism int
	rank        string
	topN        int
	outDir      string
	persist     bool
	verify      bool
	quiet       bool
}

func main() {
	var f flags

	rootCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize strategy hyperparameters",
		Long: `Run a hyperparameter search over the configured bar series. Every trial is a
full backtest; the objective is final minus initial portfolio value.

Outputs (with --out): trials.csv, trials.parquet, report.md, and for the best
trial best_events.csv and bars.parquet.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, f)
		},
	}

	fl := rootCmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML config file")
	fl.StringVar(&f.strategy, "strategy", "", "Strategy: flat, sma_cross, mean_reversion")
	fl.IntVar(&f.trials, "trials", 0, "Number of trials")
	fl.StringVar(&f.sampler, "sampler", "", "Sampler: random, grid")
	fl.Int64Var(&f.seed, "seed", 0, "Sampler and synthetic data seed")
	fl.IntVar(&f.parallelism, "parallelism", 0, "Concurrent trials per batch")
	fl.StringVar(&f.rank, "rank", "", "Ranking metric for the report")
	fl.IntVar(&f.topN, "top", 0, "Number of ranked trials in the report")
	fl.StringVar(&f.outDir, "out", "", "Export directory")
	fl.BoolVar(&f.persist, "persist", false, "Store trial records in the configured trial store")
	fl.BoolVar(&f.verify, "verify", false, "Replay every stored trial and check its metrics (implies --persist)")
	fl.BoolVar(&f.quiet, "quiet", false, "Suppress per-trial progress lines")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, &cfg.Optimize)
	if err := cfg.Optimize.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics("strategy_lab", prometheus.NewRegistry())

	stores, err := app.OpenStores(ctx, cfg.Storage, metrics, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	provider, err := marketdata.FromConfig(cfg.Data, stores.Bars, cfg.Optimize.Seed)
	if err != nil {
		return err
	}
	bars, err := provider.Bars(ctx, cfg.Data)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	space, err := strategy.Space(cfg.Optimize.Strategy)
	if err != nil {
		return err
	}
	sampler, err := optimize.NewSampler(cfg.Optimize.Sampler, space, cfg.Optimize.Seed, cfg.Optimize.GridSteps)
	if err != nil {
		return err
	}

	adapter := backtest.NewAdapter(backtest.Options{Backtest: cfg.Backtest, Logger: logger})
	opts := optimize.Options{
		Runner:      adapter,
		Parallelism: cfg.Optimize.Parallelism,
		Metrics:     metrics,
		Logger:      logger,
	}
	if !f.quiet {
		opts.OnProgress = printProgress
	}
	if f.persist || f.verify {
		opts.TrialStore = stores.Trials
	}

	res, err := optimize.New(opts).Optimize(ctx, space, cfg.Optimize.Strategy, bars, cfg.Optimize.Trials, sampler)
	if err != nil {
		return err
	}
	if res.StoreFailures > 0 {
		logger.Warn("some trials were not persisted", zap.Int("count", res.StoreFailures))
	}

	gen := reporting.NewGenerator(res.Aggregator)
	report, err := gen.Generate(reporting.Options{
		StudyID:    res.StudyID,
		Strategy:   cfg.Optimize.Strategy,
		Data:       cfg.Data,
		RankMetric: trials.Metric(cfg.Optimize.RankMetric),
		TopN:       cfg.Optimize.TopN,
	})
	if err != nil {
		return err
	}

	if f.outDir != "" {
		if err := export(ctx, f.outDir, res, report, adapter, cfg.Optimize.Strategy, bars); err != nil {
			return err
		}
		logger.Info("exports written", zap.String("dir", f.outDir))
	}

	fmt.Print(reporting.RenderMarkdown(report))

	if f.verify {
		return verify(ctx, stores.Trials, adapter, res.StudyID, cfg.Optimize.Strategy, bars)
	}
	return nil
}

func verify(ctx context.Context, store storage.TrialStore, adapter *backtest.Adapter, studyID, variant string, bars []domain.Bar) error {
	v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		TrialStore: store,
		Runner:     adapter,
		Variant:    variant,
		Bars:       bars,
	})
	report, err := v.VerifyStudy(ctx, studyID)
	if err != nil {
		return fmt.Errorf("verify study: %w", err)
	}

	fmt.Printf("\nVerified %d/%d trials\n", report.MatchedTrials, report.TotalTrials)
	for _, r := range report.Results {
		for _, d := range r.Divergences {
			fmt.Printf("- trial %d %s: stored %v, replayed %v\n", r.TrialIndex, d.Field, d.Expected, d.Actual)
		}
	}
	if report.DivergentTrials > 0 {
		return fmt.Errorf("%d trials diverged on replay", report.DivergentTrials)
	}
	return nil
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(cmd *cobra.Command, f flags, o *config.Optimize) {
	changed := cmd.Flags().Changed
	if changed("strategy") {
		o.Strategy = f.strategy
	}
	if changed("trials") {
		o.Trials = f.trials
	}
	if changed("sampler") {
		o.Sampler = f.sampler
	}
	if changed("seed") {
		o.Seed = f.seed
	}
	if changed("parallelism") {
		o.Parallelism = f.parallelism
	}
	if changed("rank") {
		o.RankMetric = f.rank
	}
	if changed("top") {
		o.TopN = f.topN
	}
}

func printProgress(p optimize.Progress) {
	best := "none"
	if !math.IsInf(p.BestObjective, -1) {
		best = fmt.Sprintf("%.2f", p.BestObjective)
	}
	status := "ok"
	if p.Failed {
		status = "failed"
	}
	fmt.Fprintf(os.Stderr, "trial %d/%d %s best=%s\n", p.Trial, p.Total, status, best)
}

func export(ctx context.Context, dir string, res *optimize.Result, report *reporting.Report, adapter *backtest.Adapter, variant string, bars []domain.Bar) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := writeFile(filepath.Join(dir, "trials.csv"), func(file *os.File) error {
		return reporting.WriteTrialsCSV(file, res.Aggregator.Table())
	}); err != nil {
		return err
	}
	if err := reporting.WriteTrialsParquet(filepath.Join(dir, "trials.parquet"), res.Trials); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return err
	}

	if res.Best == nil {
		return nil
	}
	// Re-run the best trial for its event log.
	out, err := adapter.Run(ctx, res.Best.Parameters, variant, bars)
	if err != nil {
		return fmt.Errorf("replay best trial: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "best_events.csv"), func(file *os.File) error {
		return reporting.WriteEventsCSV(file, domain.ToRows(out.Events))
	}); err != nil {
		return err
	}
	return reporting.WriteBarsParquet(filepath.Join(dir, "bars.parquet"), out.Bars)
}

func writeFile(path string, write func(*os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
