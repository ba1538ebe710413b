package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

func seedInProgressTask(t *testing.T, st store.TableStore, claimedAt time.Time, retryCount string) string {
	t.Helper()
	row := model.NewTaskRow("1", "https://youtube.com/watch?v=x", 0, "in-progress", nil)
	row[model.ColClaimedBy] = "worker-gone"
	row[model.ColClaimedAt] = model.FormatTimestamp(claimedAt)
	row[model.ColRetryCount] = retryCount

	ids, err := st.AppendRows(context.Background(), "Video Tasks", []store.Row{row})
	require.NoError(t, err)
	return ids[0]
}

func newReaperFixture(t *testing.T) (*Reaper, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := newTestConfig()
	policy := NewPolicy(st, cfg, newTestProvider())
	return NewReaper(st, policy, cfg, newTestProvider()), st
}

func TestReaperResetsStalledTask(t *testing.T) {
	reaper, st := newReaperFixture(t)
	now := time.Now().UTC()
	reaper.now = func() time.Time { return now }

	id := seedInProgressTask(t, st, now.Add(-2*time.Hour), "0")

	reaped, err := reaper.ReapStalled(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	after := taskByID(t, st, "Video Tasks", id)
	assert.Equal(t, "pending", after[model.ColStatus])
	assert.Equal(t, "1", after[model.ColRetryCount])
	assert.Empty(t, after[model.ColClaimedBy])
	assert.Empty(t, after[model.ColClaimedAt])
	assert.Contains(t, after[model.ColLastError], "task stalled")
}

func TestReaperLeavesFreshClaimsAlone(t *testing.T) {
	reaper, st := newReaperFixture(t)
	now := time.Now().UTC()
	reaper.now = func() time.Time { return now }

	id := seedInProgressTask(t, st, now.Add(-10*time.Minute), "0")

	reaped, err := reaper.ReapStalled(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Zero(t, reaped)

	after := taskByID(t, st, "Video Tasks", id)
	assert.Equal(t, "in-progress", after[model.ColStatus])
	assert.Equal(t, "worker-gone", after[model.ColClaimedBy])
}

func TestReaperDeadLettersStalledTaskAtBudget(t *testing.T) {
	reaper, st := newReaperFixture(t)
	now := time.Now().UTC()
	reaper.now = func() time.Time { return now }

	id := seedInProgressTask(t, st, now.Add(-2*time.Hour), "2")

	reaped, err := reaper.ReapStalled(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	origin, err := st.ListRows(context.Background(), "Video Tasks", store.Eq(model.ColID, id))
	require.NoError(t, err)
	assert.Empty(t, origin)

	dead, err := st.ListRows(context.Background(), "Dead-Letter Tasks", store.Eq(model.ColID, id))
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0][model.ColLastError], "task stalled")
}

func TestReaperTreatsMissingClaimedAtAsStalled(t *testing.T) {
	reaper, st := newReaperFixture(t)

	row := model.NewTaskRow("1", "https://youtube.com/watch?v=x", 0, "in-progress", nil)
	ids, err := st.AppendRows(context.Background(), "Video Tasks", []store.Row{row})
	require.NoError(t, err)

	reaped, err := reaper.ReapStalled(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	after := taskByID(t, st, "Video Tasks", ids[0])
	assert.Equal(t, "pending", after[model.ColStatus])
}

func TestMaybeReapHonorsInterval(t *testing.T) {
	reaper, st := newReaperFixture(t)
	base := time.Now().UTC()
	current := base
	reaper.now = func() time.Time { return current }

	seedInProgressTask(t, st, base.Add(-2*time.Hour), "0")

	reaped, err := reaper.MaybeReap(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	// Within the interval: skipped even though a stalled row exists again.
	seedInProgressTask(t, st, base.Add(-3*time.Hour), "0")
	reaped, err = reaper.MaybeReap(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Zero(t, reaped)

	// Past the interval it runs again.
	current = base.Add(6 * time.Minute)
	reaped, err = reaper.MaybeReap(context.Background(), "Video Tasks", "Dead-Letter Tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
}
