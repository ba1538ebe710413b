package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// Reaper recovers rows whose claim has expired: in-progress rows with a
// ClaimedAt older than the stall timeout. It is the lease-expiry mechanism
// standing in for the absence of true leases; a reclaimed row starts a new
// claim episode that any worker may win.
type Reaper struct {
	store   store.TableStore
	policy  *Policy
	cfg     *config.Config
	logger  observability.Logger
	metrics observability.Metrics
	now     func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewReaper builds a reaper routing stalled rows through policy.
func NewReaper(st store.TableStore, policy *Policy, cfg *config.Config, obs *observability.Provider) *Reaper {
	logger, metrics := obs.MustComponents("queue.reaper")
	return &Reaper{
		store:   st,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		lastRun: make(map[string]time.Time),
	}
}

// MaybeReap runs ReapStalled at most once per configured interval per
// table, to bound store traffic. Across workers, natural phase drift keeps
// passes from piling up.
func (r *Reaper) MaybeReap(ctx context.Context, table, deadTable string) (int, error) {
	r.mu.Lock()
	last := r.lastRun[table]
	if r.now().Sub(last) < r.cfg.ReaperInterval() {
		r.mu.Unlock()
		return 0, nil
	}
	r.lastRun[table] = r.now()
	r.mu.Unlock()

	return r.ReapStalled(ctx, table, deadTable)
}

// ReapStalled lists in-progress rows past the stall timeout and routes each
// through the policy as a failure. The stall message never matches a fatal
// substring, so a stalled row retries until its budget runs out.
func (r *Reaper) ReapStalled(ctx context.Context, table, deadTable string) (int, error) {
	rows, err := r.store.ListRows(ctx, table, store.Eq(model.ColStatus, r.cfg.Statuses.InProgress))
	if err != nil {
		return 0, fmt.Errorf("failed to list in-progress rows: %w", err)
	}

	timeout := r.cfg.StallTimeout()
	reaped := 0

	for _, row := range rows {
		if !r.isStalled(row, timeout) {
			continue
		}

		id := row[model.ColID]
		message := fmt.Sprintf("task stalled: claimed at %s by %s, over %s",
			row[model.ColClaimedAt], row[model.ColClaimedBy], timeout)

		r.logger.Warn("reclaiming stalled row",
			"table", table, "id", id, "claimed_by", row[model.ColClaimedBy])

		if _, err := r.policy.Apply(ctx, table, deadTable, row, Failure(message)); err != nil {
			// One stuck row must not block recovering the rest.
			r.logger.Error("failed to reset stalled row", "table", table, "id", id, "error", err)
			continue
		}

		r.metrics.IncrementCounter("reaper.reclaimed", map[string]string{"table": table})
		reaped++
	}

	return reaped, nil
}

// isStalled reports whether the row's claim is older than timeout. A row
// with a missing or unparsable ClaimedAt violates the claim invariant and
// is treated as stalled so it gets recovered rather than stuck forever.
func (r *Reaper) isStalled(row store.Row, timeout time.Duration) bool {
	claimedAt := row[model.ColClaimedAt]
	if claimedAt == "" {
		return true
	}

	ts, err := model.ParseTimestamp(claimedAt)
	if err != nil {
		return true
	}

	return r.now().Sub(ts) > timeout
}
