package store

import (
	"context"
	"fmt"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// Open creates the configured store backend, wrapped with the transient
// retry decorator and, for remote backends, the API pacer.
func Open(ctx context.Context, cfg *config.Config, obs *observability.Provider) (TableStore, error) {
	logger, metrics, err := obs.ComponentsScoped("store")
	if err != nil {
		return nil, fmt.Errorf("failed to get observability components: %w", err)
	}

	var inner TableStore
	paced := true

	switch cfg.Store.Backend {
	case "sheets":
		inner, err = NewSheetsStore(ctx, &cfg.Store.Sheets, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets store: %w", err)
		}

	case "postgres":
		pg, err := NewPostgresStore(&cfg.Store.Postgres, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		if err := ensureSchema(ctx, pg, cfg); err != nil {
			return nil, err
		}
		inner = pg

	case "memory":
		inner = NewMemoryStore()
		paced = false

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	decorated := NewRetryStore(inner, cfg.Retry, logger, metrics)
	if paced {
		decorated = NewPacedStore(decorated, cfg.APIWait())
	}

	return decorated, nil
}

// ensureSchema creates every logical table the protocol reads and writes.
// The dead-letter tables mirror their origin's columns.
func ensureSchema(ctx context.Context, pg *PostgresStore, cfg *config.Config) error {
	tables := []struct {
		name    string
		columns []string
	}{
		{cfg.Tables.Sources, model.SourceColumns},
		{cfg.Tables.VideoTasks, model.VideoTaskColumns},
		{cfg.Tables.DeadLetterSource, model.SourceColumns},
		{cfg.Tables.DeadLetterTask, model.VideoTaskColumns},
		{cfg.Tables.Workers, model.WorkerColumns},
	}

	for _, table := range tables {
		if err := pg.EnsureTable(ctx, table.name, table.columns); err != nil {
			return fmt.Errorf("failed to ensure table %s: %w", table.name, err)
		}
	}
	return nil
}
