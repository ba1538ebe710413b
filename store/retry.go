package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// retryStore retries transient failures of the wrapped store with
// exponential backoff. Permanent errors pass through unmodified.
type retryStore struct {
	inner   TableStore
	cfg     config.RetryConfig
	logger  observability.Logger
	metrics observability.Metrics
}

// NewRetryStore decorates inner with bounded exponential-backoff retries on
// transient errors.
func NewRetryStore(inner TableStore, cfg config.RetryConfig, logger observability.Logger, metrics observability.Metrics) TableStore {
	return &retryStore{
		inner:   inner,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

func (r *retryStore) ListRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	var rows []Row
	err := r.withRetry(ctx, "list", table, func() error {
		var err error
		rows, err = r.inner.ListRows(ctx, table, filter)
		return err
	})
	return rows, err
}

func (r *retryStore) UpdateRow(ctx context.Context, table, keyColumn, keyValue string, set Row, expect Row) (bool, error) {
	var ok bool
	err := r.withRetry(ctx, "update", table, func() error {
		var err error
		ok, err = r.inner.UpdateRow(ctx, table, keyColumn, keyValue, set, expect)
		return err
	})
	return ok, err
}

func (r *retryStore) AppendRows(ctx context.Context, table string, rows []Row) ([]string, error) {
	var ids []string
	err := r.withRetry(ctx, "append", table, func() error {
		var err error
		ids, err = r.inner.AppendRows(ctx, table, rows)
		return err
	})
	return ids, err
}

func (r *retryStore) DeleteRow(ctx context.Context, table, id string) (bool, error) {
	var ok bool
	err := r.withRetry(ctx, "delete", table, func() error {
		var err error
		ok, err = r.inner.DeleteRow(ctx, table, id)
		return err
	})
	return ok, err
}

func (r *retryStore) withRetry(ctx context.Context, op, table string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return err
		}

		lastErr = err
		r.metrics.IncrementCounter("store.retry.attempts",
			map[string]string{"operation": op, "table": table})

		// Don't sleep after the last attempt.
		if attempt < r.cfg.MaxAttempts {
			backoff := r.calculateBackoff(attempt)
			r.logger.Warn("transient store error, backing off",
				"operation", op, "table", table, "attempt", attempt+1,
				"backoff_ms", backoff.Milliseconds(), "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	r.metrics.IncrementCounter("store.retry.exhausted",
		map[string]string{"operation": op, "table": table})
	return fmt.Errorf("max retries (%d) exceeded: %w", r.cfg.MaxAttempts, lastErr)
}

func (r *retryStore) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.cfg.InitialBackoff) * math.Pow(r.cfg.BackoffMultiplier, float64(attempt))

	// Cap at max backoff
	if backoff > float64(r.cfg.MaxBackoff) {
		backoff = float64(r.cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}
