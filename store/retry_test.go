package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// flakyStore fails the first failures calls to ListRows with the given
// error, then delegates to the inner store.
type flakyStore struct {
	TableStore
	failures int
	calls    int
	err      error
}

func (f *flakyStore) ListRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.TableStore.ListRows(ctx, table, filter)
}

func retryTestConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryStoreRecoversFromTransientErrors(t *testing.T) {
	inner := NewMemoryStore()
	_, err := inner.AppendRows(context.Background(), "Sources", []Row{{"URL": "https://a"}})
	require.NoError(t, err)

	flaky := &flakyStore{
		TableStore: inner,
		failures:   2,
		err:        transientErr("list", "Sources", errors.New("rate limited")),
	}

	decorated := NewRetryStore(flaky, retryTestConfig(), observability.NewNopLogger(), observability.NewNoopMetrics())

	rows, err := decorated.ListRows(context.Background(), "Sources", Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryStoreDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := permanentErr("list", "Sources", errors.New("forbidden"))
	flaky := &flakyStore{
		TableStore: NewMemoryStore(),
		failures:   10,
		err:        permanent,
	}

	decorated := NewRetryStore(flaky, retryTestConfig(), observability.NewNopLogger(), observability.NewNoopMetrics())

	_, err := decorated.ListRows(context.Background(), "Sources", Filter{})
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls)
	assert.False(t, IsTransient(err) && flaky.calls > 1)
}

func TestRetryStoreExhaustionSurfacesLastError(t *testing.T) {
	flaky := &flakyStore{
		TableStore: NewMemoryStore(),
		failures:   10,
		err:        transientErr("list", "Sources", errors.New("rate limited")),
	}

	decorated := NewRetryStore(flaky, retryTestConfig(), observability.NewNopLogger(), observability.NewNoopMetrics())

	_, err := decorated.ListRows(context.Background(), "Sources", Filter{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
	// Initial attempt plus MaxAttempts retries.
	assert.Equal(t, 4, flaky.calls)
}

func TestStoreErrorPredicates(t *testing.T) {
	transient := transientErr("update", "Video Tasks", errors.New("503"))
	permanent := permanentErr("update", "Video Tasks", errors.New("401"))

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(permanent))
	assert.False(t, IsTransient(errors.New("plain")))

	var se *Error
	require.True(t, errors.As(transient, &se))
	assert.Equal(t, "update", se.Op)
	assert.Equal(t, "Video Tasks", se.Table)
}

func TestPacedStoreSpacesCalls(t *testing.T) {
	inner := NewMemoryStore()
	interval := 20 * time.Millisecond
	paced := NewPacedStore(inner, interval)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := paced.ListRows(ctx, "Sources", Filter{})
		require.NoError(t, err)
	}

	// First call is free; the next two must each wait out the interval.
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
}

func TestPacedStoreDisabledForZeroInterval(t *testing.T) {
	inner := NewMemoryStore()
	assert.Equal(t, TableStore(inner), NewPacedStore(inner, 0))
}
