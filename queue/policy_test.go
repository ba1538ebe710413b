package queue

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

func newPolicyFixture(t *testing.T) (*Policy, *store.MemoryStore, string) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := newTestConfig()
	policy := NewPolicy(st, cfg, newTestProvider())

	ids := seedPendingTasks(t, st, 1)
	return policy, st, ids[0]
}

func taskByID(t *testing.T, st store.TableStore, table, id string) store.Row {
	t.Helper()
	rows, err := st.ListRows(context.Background(), table, store.Eq(model.ColID, id))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestPolicySuccessClearsClaimColumns(t *testing.T) {
	policy, st, id := newPolicyFixture(t)

	row := taskByID(t, st, "Video Tasks", id)
	row[model.ColStatus] = "in-progress"
	row[model.ColClaimedBy] = "worker-a"

	disp, err := policy.Apply(context.Background(), "Video Tasks", "Dead-Letter Tasks", row, Success())
	require.NoError(t, err)
	assert.Equal(t, DispositionDone, disp)

	after := taskByID(t, st, "Video Tasks", id)
	assert.Equal(t, "done", after[model.ColStatus])
	assert.Empty(t, after[model.ColClaimedBy])
	assert.Empty(t, after[model.ColClaimedAt])
	assert.Empty(t, after[model.ColLastError])
}

func TestPolicyRetryIncrementsCountAndRecordsError(t *testing.T) {
	policy, st, id := newPolicyFixture(t)
	row := taskByID(t, st, "Video Tasks", id)

	disp, err := policy.Apply(context.Background(), "Video Tasks", "Dead-Letter Tasks", row, Failure("network timeout"))
	require.NoError(t, err)
	assert.Equal(t, DispositionRetried, disp)

	after := taskByID(t, st, "Video Tasks", id)
	assert.Equal(t, "pending", after[model.ColStatus])
	assert.Equal(t, "1", after[model.ColRetryCount])
	assert.Equal(t, "network timeout", after[model.ColLastError])
	assert.Empty(t, after[model.ColClaimedBy])
}

func TestPolicyBudgetExhaustionDeadLetters(t *testing.T) {
	policy, st, id := newPolicyFixture(t)

	row := taskByID(t, st, "Video Tasks", id)
	row[model.ColRetryCount] = "2" // max_retries=3: next failure is the last

	disp, err := policy.Apply(context.Background(), "Video Tasks", "Dead-Letter Tasks", row, Failure("network timeout"))
	require.NoError(t, err)
	assert.Equal(t, DispositionDeadLettered, disp)

	// Gone from the origin table, present exactly once in the dead table.
	origin, err := st.ListRows(context.Background(), "Video Tasks", store.Eq(model.ColID, id))
	require.NoError(t, err)
	assert.Empty(t, origin)

	dead, err := st.ListRows(context.Background(), "Dead-Letter Tasks", store.Eq(model.ColID, id))
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "error", dead[0][model.ColStatus])
	assert.Equal(t, "network timeout", dead[0][model.ColLastError])
}

func TestPolicyFatalSubstringDeadLettersImmediately(t *testing.T) {
	// Scenario B: a fatal error on first failure dead-letters with the
	// retry count preserved.
	policy, st, id := newPolicyFixture(t)
	row := taskByID(t, st, "Video Tasks", id)

	disp, err := policy.Apply(context.Background(), "Video Tasks", "Dead-Letter Tasks", row,
		Failure("ERROR: Private video. Sign in if you've been granted access"))
	require.NoError(t, err)
	assert.Equal(t, DispositionDeadLettered, disp)

	dead, err := st.ListRows(context.Background(), "Dead-Letter Tasks", store.Eq(model.ColID, id))
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "0", dead[0][model.ColRetryCount])
}

func TestPolicyRetriesUntilSuccess(t *testing.T) {
	// Scenario A: max_retries=3, two non-fatal failures then success ends
	// at done with retry_count=2 and no dead-letter entry.
	policy, st, id := newPolicyFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		row := taskByID(t, st, "Video Tasks", id)
		disp, err := policy.Apply(ctx, "Video Tasks", "Dead-Letter Tasks", row, Failure("transient glitch"))
		require.NoError(t, err)
		require.Equal(t, DispositionRetried, disp)
	}

	row := taskByID(t, st, "Video Tasks", id)
	disp, err := policy.Apply(ctx, "Video Tasks", "Dead-Letter Tasks", row, Success())
	require.NoError(t, err)
	assert.Equal(t, DispositionDone, disp)

	after := taskByID(t, st, "Video Tasks", id)
	assert.Equal(t, "done", after[model.ColStatus])
	assert.Equal(t, "2", after[model.ColRetryCount])

	dead, err := st.ListRows(ctx, "Dead-Letter Tasks", store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestPolicyRetryCountNeverDecreases(t *testing.T) {
	policy, st, id := newPolicyFixture(t)
	ctx := context.Background()

	last := 0
	for i := 0; i < 2; i++ {
		row := taskByID(t, st, "Video Tasks", id)
		_, err := policy.Apply(ctx, "Video Tasks", "Dead-Letter Tasks", row, Failure("glitch"))
		require.NoError(t, err)

		current, err := strconv.Atoi(taskByID(t, st, "Video Tasks", id)[model.ColRetryCount])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, current, last)
		last = current
	}
	assert.Equal(t, 2, last)
}

// failingDeleteStore makes every DeleteRow fail, exposing the dead-letter
// append-then-delete gap.
type failingDeleteStore struct {
	store.TableStore
}

func (f *failingDeleteStore) DeleteRow(ctx context.Context, table, id string) (bool, error) {
	return false, errors.New("delete rejected")
}

func TestPolicyDeadLetterDeleteFailureLeavesDuplicate(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := newTestConfig()
	policy := NewPolicy(&failingDeleteStore{TableStore: st}, cfg, newTestProvider())

	ids := seedPendingTasks(t, st, 1)
	row := taskByID(t, st, "Video Tasks", ids[0])
	row[model.ColRetryCount] = "2"

	disp, err := policy.Apply(context.Background(), "Video Tasks", "Dead-Letter Tasks", row, Failure("glitch"))
	assert.Error(t, err)
	assert.Equal(t, DispositionDeadLettered, disp)

	// Duplicated, never dropped: visible in both tables.
	origin, err := st.ListRows(context.Background(), "Video Tasks", store.Eq(model.ColID, ids[0]))
	require.NoError(t, err)
	assert.Len(t, origin, 1)

	dead, err := st.ListRows(context.Background(), "Dead-Letter Tasks", store.Eq(model.ColID, ids[0]))
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}
