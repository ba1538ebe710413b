package expand

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/queue"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

type stubResolver struct {
	videos []ResolvedVideo
	err    error
	calls  int
}

func (s *stubResolver) Resolve(ctx context.Context, url string) ([]ResolvedVideo, error) {
	s.calls++
	return s.videos, s.err
}

// appendCountingStore records the size of every AppendRows call.
type appendCountingStore struct {
	store.TableStore
	appendSizes []int
}

func (a *appendCountingStore) AppendRows(ctx context.Context, table string, rows []store.Row) ([]string, error) {
	a.appendSizes = append(a.appendSizes, len(rows))
	return a.TableStore.AppendRows(ctx, table, rows)
}

func newTestConfig() *config.Config {
	return &config.Config{
		WorkerID: "worker-a",
		Tables: config.TableNames{
			Sources:          "Sources",
			VideoTasks:       "Video Tasks",
			DeadLetterSource: "Dead-Letter Sources",
			DeadLetterTask:   "Dead-Letter Tasks",
			Workers:          "Workers",
		},
		Statuses: config.StatusStrings{
			Pending:    "pending",
			InProgress: "in-progress",
			Done:       "done",
			Error:      "error",
			Active:     "active",
		},
		Protocol: config.ProtocolConfig{
			ClaimJitterSeconds:   0,
			ClaimMaxAttempts:     3,
			MaxRetries:           3,
			VideoTaskBatchSize:   25,
			FatalErrorSubstrings: []string{"Private video", "This channel does not exist"},
		},
	}
}

func newTestProvider() *observability.Provider {
	return observability.NewProvider(&observability.Config{
		ServiceName: "test",
		Environment: "test",
		LogLevel:    "error",
		LogOutput:   io.Discard,
	})
}

func newExpanderFixture(t *testing.T, st store.TableStore, resolver Resolver) *Expander {
	t.Helper()
	cfg := newTestConfig()
	obs := newTestProvider()
	claimer := queue.NewClaimer(st, cfg, obs)
	policy := queue.NewPolicy(st, cfg, obs)
	return NewExpander(st, claimer, policy, resolver, cfg, obs)
}

func seedSource(t *testing.T, st store.TableStore, url string, meta map[string]string) string {
	t.Helper()
	ids, err := st.AppendRows(context.Background(), "Sources", []store.Row{model.NewSourceRow(url, meta)})
	require.NoError(t, err)
	return ids[0]
}

func sourceByID(t *testing.T, st store.TableStore, table, id string) store.Row {
	t.Helper()
	rows, err := st.ListRows(context.Background(), table, store.Eq(model.ColID, id))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func makeVideos(n int) []ResolvedVideo {
	videos := make([]ResolvedVideo, n)
	for i := range videos {
		videos[i] = ResolvedVideo{
			URL:      fmt.Sprintf("https://www.youtube.com/watch?v=vid%03d", i),
			Duration: int64(60 + i),
		}
	}
	return videos
}

func TestExpandNextInsertsTasksAndMarksSourceDone(t *testing.T) {
	st := store.NewMemoryStore()
	resolver := &stubResolver{videos: makeVideos(3)}
	expander := newExpanderFixture(t, st, resolver)

	id := seedSource(t, st, "https://www.youtube.com/@channel", map[string]string{
		model.ColAccent: "british",
		model.ColType:   "interview",
	})

	exp, err := expander.ExpandNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, queue.DispositionDone, exp.Disposition)
	assert.Equal(t, id, exp.SourceID)
	assert.Equal(t, 3, exp.Inserted)

	tasks, err := st.ListRows(context.Background(), "Video Tasks", store.Eq(model.ColSourceID, id))
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	for _, task := range tasks {
		assert.Equal(t, "pending", task[model.ColStatus])
		assert.Equal(t, id, task[model.ColSourceID])
		assert.Equal(t, "british", task[model.ColAccent])
		assert.Equal(t, "interview", task[model.ColType])
		assert.NotEmpty(t, task[model.ColURL])
	}

	source := sourceByID(t, st, "Sources", id)
	assert.Equal(t, "done", source[model.ColStatus])
	assert.Empty(t, source[model.ColClaimedBy])
}

func TestExpandNextReportsNoWork(t *testing.T) {
	st := store.NewMemoryStore()
	expander := newExpanderFixture(t, st, &stubResolver{})

	exp, err := expander.ExpandNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestExpandNextBatchesAppends(t *testing.T) {
	// 40 resolved videos against a batch size of 25 must land in two append
	// calls of 25 and 15 rows, all 40 present afterwards.
	inner := store.NewMemoryStore()
	counting := &appendCountingStore{TableStore: inner}
	resolver := &stubResolver{videos: makeVideos(40)}
	expander := newExpanderFixture(t, counting, resolver)

	id := seedSource(t, inner, "https://www.youtube.com/@channel", nil)

	exp, err := expander.ExpandNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, queue.DispositionDone, exp.Disposition)
	assert.Equal(t, 40, exp.Inserted)

	assert.Equal(t, []int{25, 15}, counting.appendSizes)

	tasks, err := inner.ListRows(context.Background(), "Video Tasks", store.Eq(model.ColSourceID, id))
	require.NoError(t, err)
	assert.Len(t, tasks, 40)
}

func TestExpandNextIsIdempotentAcrossRuns(t *testing.T) {
	st := store.NewMemoryStore()
	resolver := &stubResolver{videos: makeVideos(5)}
	expander := newExpanderFixture(t, st, resolver)

	id := seedSource(t, st, "https://www.youtube.com/@channel", nil)

	// Pre-insert two of the five URLs, as a partially failed earlier run
	// would have left them.
	pre := []store.Row{
		model.NewTaskRow(id, resolver.videos[0].URL, 0, "pending", nil),
		model.NewTaskRow(id, resolver.videos[1].URL, 0, "done", nil),
	}
	_, err := st.AppendRows(context.Background(), "Video Tasks", pre)
	require.NoError(t, err)

	exp, err := expander.ExpandNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, queue.DispositionDone, exp.Disposition)
	assert.Equal(t, 3, exp.Inserted)

	tasks, err := st.ListRows(context.Background(), "Video Tasks", store.Eq(model.ColSourceID, id))
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	seen := make(map[string]int)
	for _, task := range tasks {
		seen[task[model.ColURL]]++
	}
	for url, count := range seen {
		assert.Equal(t, 1, count, "url %s duplicated", url)
	}
}

func TestExpandNextRoutesResolverFailureThroughPolicy(t *testing.T) {
	st := store.NewMemoryStore()
	resolver := &stubResolver{err: errors.New("yt-dlp failed: network unreachable")}
	expander := newExpanderFixture(t, st, resolver)

	id := seedSource(t, st, "https://www.youtube.com/@channel", nil)

	exp, err := expander.ExpandNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, queue.DispositionRetried, exp.Disposition)
	assert.Equal(t, id, exp.SourceID)
	assert.Contains(t, exp.Message, "network unreachable")

	source := sourceByID(t, st, "Sources", id)
	assert.Equal(t, "pending", source[model.ColStatus])
	assert.Equal(t, "1", source[model.ColRetryCount])
	assert.Contains(t, source[model.ColLastError], "network unreachable")
}

func TestExpandNextDeadLettersFatalResolverError(t *testing.T) {
	st := store.NewMemoryStore()
	resolver := &stubResolver{err: errors.New("yt-dlp failed: ERROR: This channel does not exist")}
	expander := newExpanderFixture(t, st, resolver)

	id := seedSource(t, st, "https://www.youtube.com/@gone", nil)

	exp, err := expander.ExpandNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, queue.DispositionDeadLettered, exp.Disposition)

	origin, err := st.ListRows(context.Background(), "Sources", store.Eq(model.ColID, id))
	require.NoError(t, err)
	assert.Empty(t, origin)

	dead, err := st.ListRows(context.Background(), "Dead-Letter Sources", store.Eq(model.ColID, id))
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "error", dead[0][model.ColStatus])
}
