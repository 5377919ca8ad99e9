// Command backtest runs a single strategy backtest and prints its metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"strategy-lab/internal/app"
	"strategy-lab/internal/backtest"
	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/logging"
	"strategy-lab/internal/marketdata"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/strategy"
)

type flags struct {
	configPath string
	strategy   string
	params     []string
	ticker     string
	source     string
	outputJSON bool
	persist    bool
	outDir     string
	seed       int64
}

func main() {
	var f flags

	rootCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one strategy backtest",
		Long: `Run one strategy over the configured bar series and print final value,
returns, Sharpe ratio, drawdown and trade count.

Parameters are given as name=value pairs, e.g.
  backtest --strategy mean_reversion --param bb_period=20 --param devfactor=2`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	fl := rootCmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML config file")
	fl.StringVar(&f.strategy, "strategy", "", "Strategy: flat, sma_cross, mean_reversion (default from config)")
	fl.StringArrayVar(&f.params, "param", nil, "Strategy parameter name=value (repeatable)")
	fl.StringVar(&f.ticker, "ticker", "", "Override data ticker")
	fl.StringVar(&f.source, "source", "", "Override data source: csv, store, synthetic")
	fl.BoolVar(&f.outputJSON, "json", false, "Output as JSON")
	fl.BoolVar(&f.persist, "persist", false, "Persist the event log to the configured event store")
	fl.StringVar(&f.outDir, "out", "", "Directory for events.csv and bars.parquet exports")
	fl.Int64Var(&f.seed, "seed", 1, "Seed for the synthetic data source")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.strategy != "" {
		cfg.Optimize.Strategy = f.strategy
	}
	if f.ticker != "" {
		cfg.Data.Ticker = f.ticker
	}
	if f.source != "" {
		cfg.Data.Source = f.source
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	space, err := strategy.Space(cfg.Optimize.Strategy)
	if err != nil {
		return err
	}
	params, err := app.ParseAssignment(space, f.params)
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(ctx, cfg.Storage, nil, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	provider, err := marketdata.FromConfig(cfg.Data, stores.Bars, f.seed)
	if err != nil {
		return err
	}
	bars, err := provider.Bars(ctx, cfg.Data)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	logger.Info("bars loaded",
		zap.String("ticker", cfg.Data.Ticker),
		zap.String("interval", cfg.Data.Interval),
		zap.Int("bars", len(bars)))

	opts := backtest.Options{
		Backtest:       cfg.Backtest,
		CheckIntegrity: true,
		Logger:         logger,
	}
	if f.persist {
		opts.Events = stores.Events
	}
	out, err := backtest.NewAdapter(opts).Run(ctx, params, cfg.Optimize.Strategy, bars)
	if err != nil {
		return err
	}

	if f.outDir != "" {
		if err := export(f.outDir, out); err != nil {
			return err
		}
	}

	if f.outputJSON {
		return printJSON(out)
	}
	printSummary(cfg.Data, out)
	return nil
}

func export(dir string, out *backtest.RunOutput) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(dir, "events.csv"))
	if err != nil {
		return err
	}
	defer file.Close()
	if err := reporting.WriteEventsCSV(file, domain.ToRows(out.Events)); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return reporting.WriteBarsParquet(filepath.Join(dir, "bars.parquet"), out.Bars)
}

type summaryJSON struct {
	RunID          string         `json:"run_id"`
	Strategy       string         `json:"strategy"`
	Parameters     map[string]any `json:"parameters"`
	InitialValue   float64        `json:"initial_value"`
	FinalValue     float64        `json:"final_value"`
	AbsoluteReturn float64        `json:"absolute_return"`
	RelativeReturn float64        `json:"relative_return"`
	SharpeRatio    *float64       `json:"sharpe_ratio"`
	MaxDrawdown    float64        `json:"max_drawdown"`
	SQN            float64        `json:"sqn"`
	Trades         int            `json:"trades"`
	Events         int            `json:"events"`
	DurationMs     int64          `json:"duration_ms"`
}

func printJSON(out *backtest.RunOutput) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summaryJSON{
		RunID:          out.RunID,
		Strategy:       out.Strategy,
		Parameters:     out.Parameters.Map(),
		InitialValue:   out.Initial,
		FinalValue:     out.Final,
		AbsoluteReturn: out.AbsoluteReturn(),
		RelativeReturn: out.RelativeReturn(),
		SharpeRatio:    out.Sharpe,
		MaxDrawdown:    out.MaxDrawdown,
		SQN:            out.SQN,
		Trades:         len(out.Trades),
		Events:         len(out.Events),
		DurationMs:     out.Duration.Milliseconds(),
	})
}

func printSummary(data domain.DataConfig, out *backtest.RunOutput) {
	sharpe := "n/a"
	if out.Sharpe != nil {
		sharpe = fmt.Sprintf("%.4f", *out.Sharpe)
	}
	fmt.Printf("Run:            %s\n", out.RunID)
	fmt.Printf("Strategy:       %s\n", out.Strategy)
	fmt.Printf("Data:           %s %s (%d bars)\n", data.Ticker, data.Interval, len(out.Bars))
	fmt.Printf("Initial value:  %.2f\n", out.Initial)
	fmt.Printf("Final value:    %.2f\n", out.Final)
	fmt.Printf("Return:         %.2f (%.2f%%)\n", out.AbsoluteReturn(), out.RelativeReturn()*100)
	fmt.Printf("Sharpe ratio:   %s\n", sharpe)
	fmt.Printf("Max drawdown:   %.2f%%\n", out.MaxDrawdown)
	fmt.Printf("SQN:            %.4f\n", out.SQN)
	fmt.Printf("Trades:         %d\n", len(out.Trades))
	fmt.Printf("Events:         %d\n", len(out.Events))
}
