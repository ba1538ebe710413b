package store

import (
	"context"
	"sync"
	"time"
)

// pacedStore enforces a minimum spacing between calls to the wrapped store,
// keeping the process under the remote API's per-minute request quota. The
// spacing is process-wide, not per table.
type pacedStore struct {
	inner    TableStore
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPacedStore decorates inner so consecutive calls are at least interval
// apart. A non-positive interval disables pacing.
func NewPacedStore(inner TableStore, interval time.Duration) TableStore {
	if interval <= 0 {
		return inner
	}
	return &pacedStore{inner: inner, interval: interval}
}

func (p *pacedStore) ListRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.ListRows(ctx, table, filter)
}

func (p *pacedStore) UpdateRow(ctx context.Context, table, keyColumn, keyValue string, set Row, expect Row) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	return p.inner.UpdateRow(ctx, table, keyColumn, keyValue, set, expect)
}

func (p *pacedStore) AppendRows(ctx context.Context, table string, rows []Row) ([]string, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.AppendRows(ctx, table, rows)
}

func (p *pacedStore) DeleteRow(ctx context.Context, table, id string) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	return p.inner.DeleteRow(ctx, table, id)
}

// wait reserves the next call slot and sleeps until it arrives.
func (p *pacedStore) wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	next := p.last.Add(p.interval)
	if next.Before(now) {
		next = now
	}
	p.last = next
	p.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
