// Package app wires configuration into the stores and services shared by the
// command line tools.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"strategy-lab/internal/config"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
	chstore "strategy-lab/internal/storage/clickhouse"
	"strategy-lab/internal/storage/memory"
	"strategy-lab/internal/storage/migrations"
	pgstore "strategy-lab/internal/storage/postgres"
	"strategy-lab/internal/storage/sqlite"
)

// Stores holds the selected storage backends.
type Stores struct {
	Trials storage.TrialStore
	Events storage.EventStore
	Bars   storage.BarStore

	// Backend names, for logging.
	TrialsBackend string
	EventsBackend string
	BarsBackend   string

	closers []func()
}

// OpenStores selects a backend per store: Postgres for trials and events when
// a DSN is set (SQLite for trials when only a path is set), ClickHouse for
// bars when a DSN is set, memory otherwise. Migrations run on open.
func OpenStores(ctx context.Context, cfg config.Storage, metrics *observability.Metrics, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stores{
		Trials:        memory.NewTrialStore(),
		Events:        memory.NewEventStore(),
		Bars:          memory.NewBarStore(),
		TrialsBackend: "memory",
		EventsBackend: "memory",
		BarsBackend:   "memory",
	}

	switch {
	case cfg.PostgresDSN != "":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.Trials, s.TrialsBackend = pgstore.NewTrialStore(pool, metrics), "postgres"
		s.Events, s.EventsBackend = pgstore.NewEventStore(pool), "postgres"

	case cfg.SQLitePath != "":
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = store.Close() })
		s.Trials, s.TrialsBackend = store, "sqlite"
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.EnsureDatabase(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.Bars, s.BarsBackend = chstore.NewBarStore(conn), "clickhouse"
	}

	logger.Info("storage ready",
		zap.String("trials", s.TrialsBackend),
		zap.String("events", s.EventsBackend),
		zap.String("bars", s.BarsBackend))
	return s, nil
}

// Close releases every opened backend in reverse order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
