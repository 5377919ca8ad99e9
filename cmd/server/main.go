// Command server exposes study results, live optimization progress and
// Prometheus metrics over HTTP, and starts optimizations on request.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"strategy-lab/internal/app"
	"strategy-lab/internal/config"
	"strategy-lab/internal/httpapi"
	"strategy-lab/internal/logging"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/progress"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath, addr string

	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the strategy-lab HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, addr)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics("strategy_lab", prometheus.DefaultRegisterer)

	stores, err := app.OpenStores(ctx, cfg.Storage, metrics, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	hub := progress.NewHub(metrics, logger)
	launcher := httpapi.NewLauncher(ctx, httpapi.LauncherOptions{
		Bars:     stores.Bars,
		Trials:   stores.Trials,
		Events:   stores.Events,
		Backtest: cfg.Backtest,
		Hub:      hub,
		Metrics:  metrics,
		Logger:   logger,
	})

	srv := httpapi.NewServer(httpapi.Options{
		Addr:     cfg.Server.Addr,
		Trials:   stores.Trials,
		Launcher: launcher,
		Hub:      hub,
		Metrics:  metrics,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("http shutdown", zap.Error(err))
	}

	// Running studies stop on ctx cancellation; wait for them to record.
	launcher.Wait()
	return nil
}
