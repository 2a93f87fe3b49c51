package main

import (
	"context"
	"fmt"
	"log/slog"

	"govengine/internal/platform/config"
	"govengine/internal/platform/postgres"
	"govengine/internal/process/service"
	processmem "govengine/internal/process/store/memory"
	processpg "govengine/internal/process/store/postgres"
	audit "govengine/pkg/platform/audit"
	auditmem "govengine/pkg/platform/audit/store/memory"
	auditpg "govengine/pkg/platform/audit/store/postgres"
	txcontext "govengine/pkg/platform/tx"
)

// backend is the storage the services run on: Postgres when DATABASE_URL is
// set, otherwise process-local memory.
type backend struct {
	templates service.TemplateStore
	instances service.InstanceStore
	trail     audit.Store
	tx        service.TxRunner
	close     func()
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	if !cfg.UsesPostgres() {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		store := processmem.NewInMemoryStore()
		return &backend{
			templates: store,
			instances: store,
			trail:     auditmem.NewInMemoryStore(),
			tx:        txcontext.NewShardedRunner(cfg.TxTimeout),
			close:     func() {},
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	store := processpg.New(db)
	return &backend{
		templates: store,
		instances: store,
		trail:     auditpg.New(db),
		tx:        txcontext.NewSQLRunner(db, cfg.TxTimeout),
		close: func() {
			if err := db.Close(); err != nil {
				log.Error("close database", "error", err)
			}
		},
	}, nil
}
