package expand

import (
	"context"
	"fmt"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/queue"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// Expander claims pending sources and materializes their videos as task
// rows. Expansion is idempotent per source: re-running after a partial
// insert only adds the URLs still missing.
type Expander struct {
	store    store.TableStore
	claimer  *queue.Claimer
	policy   *queue.Policy
	resolver Resolver
	cfg      *config.Config
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewExpander wires the expander over the shared claim and policy machinery.
func NewExpander(st store.TableStore, claimer *queue.Claimer, policy *queue.Policy, resolver Resolver, cfg *config.Config, obs *observability.Provider) *Expander {
	logger, metrics := obs.MustComponents("expand")
	return &Expander{
		store:    st,
		claimer:  claimer,
		policy:   policy,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Expansion is the recorded outcome of one claimed source.
type Expansion struct {
	SourceID    string
	Disposition queue.Disposition
	Inserted    int
	// Message carries the failure text on a retried or dead-lettered source.
	Message string
}

// ExpandNext claims one pending source, resolves it and inserts its videos as
// pending task rows in batches. It returns the expansion outcome when a
// source was claimed (failures route through the retry policy and come back
// as a retried or dead-lettered disposition) and nil when no source is
// pending.
func (e *Expander) ExpandNext(ctx context.Context) (*Expansion, error) {
	row, err := e.claimer.Claim(ctx, e.cfg.Tables.Sources, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to claim source: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	source := model.SourceFromRow(row)
	e.logger.Info("expanding source", "id", source.ID, "url", source.URL)

	videos, err := e.resolver.Resolve(ctx, source.URL)
	if err != nil {
		e.logger.Error("failed to resolve source", "id", source.ID, "url", source.URL, "error", err)
		e.metrics.IncrementCounter("expand.resolve_failures", nil)
		// The resolver's error text drives the fatal-substring check.
		return e.recordFailure(ctx, row, source.ID, err.Error())
	}

	inserted, err := e.insertTasks(ctx, source, videos)
	if err != nil {
		// Rows inserted before the failure stay; the retry only fills the gap.
		e.logger.Error("failed to insert video tasks", "id", source.ID, "inserted", inserted, "error", err)
		return e.recordFailure(ctx, row, source.ID, err.Error())
	}

	if _, err := e.policy.Apply(ctx, e.cfg.Tables.Sources, e.cfg.Tables.DeadLetterSource, row, queue.Success()); err != nil {
		return &Expansion{SourceID: source.ID}, fmt.Errorf("failed to mark source %s done: %w", source.ID, err)
	}

	e.logger.Info("source expanded",
		"id", source.ID, "resolved", len(videos), "inserted", inserted)
	e.metrics.IncrementCounter("expand.sources", nil)
	e.metrics.RecordHistogram("expand.tasks_inserted", float64(inserted), nil)
	return &Expansion{SourceID: source.ID, Disposition: queue.DispositionDone, Inserted: inserted}, nil
}

// recordFailure routes a failed expansion through the retry policy and
// reports the resulting disposition.
func (e *Expander) recordFailure(ctx context.Context, row store.Row, sourceID, message string) (*Expansion, error) {
	disp, err := e.policy.Apply(ctx, e.cfg.Tables.Sources, e.cfg.Tables.DeadLetterSource, row, queue.Failure(message))
	if err != nil {
		return &Expansion{SourceID: sourceID, Disposition: disp, Message: message},
			fmt.Errorf("failed to record source failure: %w", err)
	}
	return &Expansion{SourceID: sourceID, Disposition: disp, Message: message}, nil
}

// insertTasks appends the resolved videos not already present for this
// source, in batches of video_task_batch_size rows per append call.
func (e *Expander) insertTasks(ctx context.Context, source *model.Source, videos []ResolvedVideo) (int, error) {
	existing, err := e.existingURLs(ctx, source.ID)
	if err != nil {
		return 0, err
	}

	inherited := inheritedMeta(source)

	var rows []store.Row
	for _, video := range videos {
		if existing[video.URL] {
			continue
		}
		existing[video.URL] = true
		row := model.NewTaskRow(source.ID, video.URL, video.Duration, e.cfg.Statuses.Pending, inherited)
		rows = append(rows, row)
	}

	batchSize := e.cfg.Protocol.VideoTaskBatchSize
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	inserted := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := e.store.AppendRows(ctx, e.cfg.Tables.VideoTasks, rows[start:end]); err != nil {
			return inserted, fmt.Errorf("failed to append video tasks for source %s: %w", source.ID, err)
		}
		inserted += end - start
	}

	return inserted, nil
}

// existingURLs collects the task URLs already recorded for the source, so a
// re-expansion never duplicates them.
func (e *Expander) existingURLs(ctx context.Context, sourceID string) (map[string]bool, error) {
	rows, err := e.store.ListRows(ctx, e.cfg.Tables.VideoTasks, store.Eq(model.ColSourceID, sourceID))
	if err != nil {
		return nil, fmt.Errorf("failed to list existing tasks for source %s: %w", sourceID, err)
	}

	urls := make(map[string]bool, len(rows))
	for _, row := range rows {
		urls[row[model.ColURL]] = true
	}
	return urls, nil
}

// inheritedMeta picks the source columns the downstream task view reads.
func inheritedMeta(source *model.Source) map[string]string {
	meta := make(map[string]string, 2)
	if v := source.Meta[model.ColAccent]; v != "" {
		meta[model.ColAccent] = v
	}
	if v := source.Meta[model.ColType]; v != "" {
		meta[model.ColType] = v
	}
	return meta
}
