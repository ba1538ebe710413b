// Package registry maintains the worker liveness table: each worker upserts
// its own heartbeat row, and consumers read the table to see who is alive.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// staleAfterIntervals is how many missed heartbeats demote a worker's
// reported status to unknown.
const staleAfterIntervals = 3

// Registry is one worker's view of the Workers table, keyed by hostname.
type Registry struct {
	store    store.TableStore
	cfg      *config.Config
	logger   observability.Logger
	metrics  observability.Metrics
	hostname string
	now      func() time.Time
}

// NewRegistry builds a registry reporting under cfg.WorkerID.
func NewRegistry(st store.TableStore, cfg *config.Config, obs *observability.Provider) *Registry {
	logger, metrics := obs.MustComponents("registry")
	return &Registry{
		store:    st,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		hostname: cfg.WorkerID,
		now:      time.Now,
	}
}

// Heartbeat upserts this worker's row with the given status and the current
// time. Heartbeats are advisory: failures are logged and counted but never
// propagated, so a flaky store cannot take the work loop down.
func (r *Registry) Heartbeat(ctx context.Context, status string) {
	if err := r.heartbeat(ctx, status); err != nil {
		r.logger.Error("failed to write heartbeat", "hostname", r.hostname, "error", err)
		r.metrics.IncrementCounter("registry.heartbeat_failures", nil)
		return
	}
	r.metrics.IncrementCounter("registry.heartbeats", nil)
}

func (r *Registry) heartbeat(ctx context.Context, status string) error {
	worker := &model.Worker{
		Hostname: r.hostname,
		LastSeen: model.FormatTimestamp(r.now()),
		Status:   status,
	}

	rows, err := r.store.ListRows(ctx, r.cfg.Tables.Workers, store.Eq(model.ColHostname, r.hostname))
	if err != nil {
		return fmt.Errorf("failed to find worker row: %w", err)
	}

	if len(rows) == 0 {
		if _, err := r.store.AppendRows(ctx, r.cfg.Tables.Workers, []store.Row{worker.ToRow()}); err != nil {
			return fmt.Errorf("failed to append worker row: %w", err)
		}
		return nil
	}

	// Last write wins; only this worker writes its own row, so no condition
	// is needed. The Workers table has no ID column, so the update keys on
	// the hostname itself.
	set := store.Row{
		model.ColLastSeen: worker.LastSeen,
		model.ColStatus:   worker.Status,
	}
	ok, err := r.store.UpdateRow(ctx, r.cfg.Tables.Workers, model.ColHostname, r.hostname, set, nil)
	if err != nil {
		return fmt.Errorf("failed to update worker row: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to update worker row: %w", store.ErrRowNotFound)
	}
	return nil
}

// List returns every registered worker. Workers whose last heartbeat is
// older than three heartbeat intervals are reported with status unknown;
// their row is left untouched.
func (r *Registry) List(ctx context.Context) ([]*model.Worker, error) {
	rows, err := r.store.ListRows(ctx, r.cfg.Tables.Workers, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	cutoff := time.Duration(staleAfterIntervals) * r.cfg.HeartbeatInterval()
	now := r.now()

	workers := make([]*model.Worker, 0, len(rows))
	for _, row := range rows {
		worker := model.WorkerFromRow(row)

		seen, err := model.ParseTimestamp(worker.LastSeen)
		if err != nil || now.Sub(seen) > cutoff {
			worker.Status = model.WorkerUnknown
		}

		workers = append(workers, worker)
	}
	return workers, nil
}
