// Package queue implements the coordination protocol over the table store:
// optimistic claim-and-verify, the retry/dead-letter policy, and the
// stalled-row reaper that stands in for leases.
package queue

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// Claimer converts "many workers see the same pending rows" into "at most
// one worker proceeds per row", using only reads and conditional writes.
type Claimer struct {
	store   store.TableStore
	cfg     *config.Config
	logger  observability.Logger
	metrics observability.Metrics

	workerID string
	now      func() time.Time
	jitter   func() time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClaimer builds a Claimer identified by cfg.WorkerID.
func NewClaimer(st store.TableStore, cfg *config.Config, obs *observability.Provider) *Claimer {
	logger, metrics := obs.MustComponents("queue.claim")

	c := &Claimer{
		store:    st,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		workerID: cfg.WorkerID,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	c.jitter = func() time.Duration {
		return time.Duration(rand.Float64() * float64(cfg.Protocol.ClaimJitterSeconds) * float64(time.Second))
	}
	return c
}

// Claim attempts to claim one pending row from table, optionally narrowed by
// extra column equalities. It returns the verified row, or (nil, nil) when
// no work is available or every attempted candidate was lost to another
// worker.
func (c *Claimer) Claim(ctx context.Context, table string, extra map[string]string) (store.Row, error) {
	// A first cheap look: if nothing is pending, skip the jitter sleep
	// entirely.
	candidates, err := c.listPending(ctx, table, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Stagger competing workers so they tend to pick different rows.
	if err := c.sleep(ctx, c.jitter()); err != nil {
		return nil, err
	}

	// The pending set may have shrunk while we slept.
	candidates, err = c.listPending(ctx, table, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}

	attempts := c.cfg.Protocol.ClaimMaxAttempts
	if attempts > len(candidates) {
		attempts = len(candidates)
	}

	for i := 0; i < attempts; i++ {
		observed := candidates[i]
		id := observed[model.ColID]

		claimed, err := c.tryClaim(ctx, table, observed)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			c.logger.Info("claimed row", "table", table, "id", id)
			c.metrics.IncrementCounter("claim.won", map[string]string{"table": table})
			return claimed, nil
		}

		c.logger.Debug("lost claim race, trying next candidate", "table", table, "id", id)
		c.metrics.IncrementCounter("claim.lost", map[string]string{"table": table})
	}

	return nil, nil
}

// tryClaim performs the conditional write and verification read for one
// candidate. It returns the confirmed row, or nil when another worker won.
func (c *Claimer) tryClaim(ctx context.Context, table string, observed store.Row) (store.Row, error) {
	id := observed[model.ColID]

	set := store.Row{
		model.ColStatus:    c.cfg.Statuses.InProgress,
		model.ColClaimedBy: c.workerID,
		model.ColClaimedAt: model.FormatTimestamp(c.now()),
	}
	// Condition on the values we observed for the columns we are about to
	// write; a row someone else touched in between no longer matches.
	expect := store.Row{
		model.ColStatus:    observed[model.ColStatus],
		model.ColClaimedBy: observed[model.ColClaimedBy],
		model.ColClaimedAt: observed[model.ColClaimedAt],
	}

	ok, err := c.store.UpdateRow(ctx, table, model.ColID, id, set, expect)
	if err != nil {
		return nil, fmt.Errorf("failed to write claim for row %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}

	// The conditional write is best-effort on some backends; the re-read is
	// the authoritative check.
	rows, err := c.store.ListRows(ctx, table, store.Eq(model.ColID, id))
	if err != nil {
		return nil, fmt.Errorf("failed to verify claim for row %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	if row[model.ColClaimedBy] != c.workerID || row[model.ColStatus] != c.cfg.Statuses.InProgress {
		return nil, nil
	}

	return row, nil
}

func (c *Claimer) listPending(ctx context.Context, table string, extra map[string]string) ([]store.Row, error) {
	equals := map[string]string{model.ColStatus: c.cfg.Statuses.Pending}
	for k, v := range extra {
		equals[k] = v
	}
	return c.store.ListRows(ctx, table, store.Filter{Equals: equals})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
