// Package coordinator ties the protocol together: one call processes the
// next available unit of work, preferring source expansion over video
// downloads so the task queue stays fed.
package coordinator

import (
	"context"
	"fmt"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/events"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/expand"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/importer"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/queue"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/results"
)

// ProcessingFunc performs the actual work for one claimed video task.
type ProcessingFunc func(ctx context.Context, url string) error

// Coordinator drives one worker's participation in the shared queue.
type Coordinator struct {
	cfg      *config.Config
	claimer  *queue.Claimer
	policy   *queue.Policy
	reaper   *queue.Reaper
	expander *expand.Expander
	importer *importer.Importer
	results  *results.Manager
	events   events.Publisher
	logger   observability.Logger
	metrics  observability.Metrics
}

// New wires a coordinator from its collaborators. importer and results may
// be nil when their features are not configured; publisher may be the no-op
// publisher.
func New(cfg *config.Config, claimer *queue.Claimer, policy *queue.Policy, reaper *queue.Reaper,
	expander *expand.Expander, imp *importer.Importer, res *results.Manager,
	publisher events.Publisher, obs *observability.Provider) *Coordinator {
	logger, metrics := obs.MustComponents("coordinator")
	return &Coordinator{
		cfg:      cfg,
		claimer:  claimer,
		policy:   policy,
		reaper:   reaper,
		expander: expander,
		importer: imp,
		results:  res,
		events:   publisher,
		logger:   logger,
		metrics:  metrics,
	}
}

// ProcessNextTask performs at most one unit of work: a reaper pass, then
// source expansion, then a video task processed through fn. It returns true
// when any work was done (even work that failed and was absorbed by the
// retry policy) and false when the queue is idle. A non-nil error means the
// store itself misbehaved, not that a row failed.
func (c *Coordinator) ProcessNextTask(ctx context.Context, fn ProcessingFunc) (bool, error) {
	c.reapBothTables(ctx)

	worked, err := c.expandSource(ctx)
	if err != nil {
		return worked, err
	}
	if worked {
		return true, nil
	}

	return c.processTask(ctx, fn)
}

// ManageImport runs the sources file import once, regardless of whether the
// queue has pending work.
func (c *Coordinator) ManageImport(ctx context.Context) (added, skipped int, err error) {
	if c.importer == nil {
		return 0, 0, fmt.Errorf("sources import is not configured")
	}
	return c.importer.ImportIfChanged(ctx)
}

// ManageResults promotes curated downloads into the selected directory.
func (c *Coordinator) ManageResults(ctx context.Context, sourceID string) ([]string, error) {
	if c.results == nil {
		return nil, fmt.Errorf("results management is not configured")
	}
	return c.results.PromoteSelected(ctx, sourceID)
}

// reapBothTables runs interval-gated reaper passes. Reaper errors are
// logged, not returned; a failed pass just leaves stalled rows for the next
// one.
func (c *Coordinator) reapBothTables(ctx context.Context) {
	if _, err := c.reaper.MaybeReap(ctx, c.cfg.Tables.Sources, c.cfg.Tables.DeadLetterSource); err != nil {
		c.logger.Error("failed to reap stalled sources", "error", err)
	}
	if _, err := c.reaper.MaybeReap(ctx, c.cfg.Tables.VideoTasks, c.cfg.Tables.DeadLetterTask); err != nil {
		c.logger.Error("failed to reap stalled tasks", "error", err)
	}
}

// expandSource tries to claim and expand a pending source. When none is
// pending and a sources file is configured, it runs the importer once and
// retries, so newly added file entries flow in without a separate trigger.
func (c *Coordinator) expandSource(ctx context.Context) (bool, error) {
	exp, err := c.expander.ExpandNext(ctx)
	if err != nil {
		return exp != nil, err
	}
	if exp != nil {
		c.publishExpansion(ctx, exp)
		return true, nil
	}

	if c.importer == nil {
		return false, nil
	}

	added, _, err := c.importer.ImportIfChanged(ctx)
	if err != nil {
		c.logger.Error("failed to import sources", "error", err)
		return false, nil
	}
	if added == 0 {
		return false, nil
	}

	exp, err = c.expander.ExpandNext(ctx)
	if err != nil {
		return exp != nil, err
	}
	if exp != nil {
		c.publishExpansion(ctx, exp)
		return true, nil
	}
	return false, nil
}

// publishExpansion emits the lifecycle event matching a source's recorded
// disposition: expanded on success, failed when the source was retried or
// dead-lettered.
func (c *Coordinator) publishExpansion(ctx context.Context, exp *expand.Expansion) {
	switch exp.Disposition {
	case queue.DispositionDone:
		c.publish(ctx, events.KindSourceExpanded, c.cfg.Tables.Sources, exp.SourceID, "")
	case queue.DispositionRetried, queue.DispositionDeadLettered:
		c.publish(ctx, events.KindSourceFailed, c.cfg.Tables.Sources, exp.SourceID, exp.Message)
	}
	c.metrics.IncrementCounter("coordinator.sources_expanded",
		map[string]string{"disposition": exp.Disposition.String()})
}

// processTask claims one video task and runs fn over it, routing the outcome
// through the retry policy.
func (c *Coordinator) processTask(ctx context.Context, fn ProcessingFunc) (bool, error) {
	row, err := c.claimer.Claim(ctx, c.cfg.Tables.VideoTasks, nil)
	if err != nil {
		return false, fmt.Errorf("failed to claim video task: %w", err)
	}
	if row == nil {
		return false, nil
	}

	task := model.TaskFromRow(row)
	c.logger.Info("processing video task", "id", task.ID, "url", task.URL)

	outcome := c.runProcessing(ctx, fn, task.URL)

	disp, err := c.policy.Apply(ctx, c.cfg.Tables.VideoTasks, c.cfg.Tables.DeadLetterTask, row, outcome)
	if err != nil {
		return true, fmt.Errorf("failed to record task outcome for %s: %w", task.ID, err)
	}

	switch disp {
	case queue.DispositionDone:
		c.publish(ctx, events.KindTaskDone, c.cfg.Tables.VideoTasks, task.ID, "")
	case queue.DispositionRetried:
		c.publish(ctx, events.KindTaskRetried, c.cfg.Tables.VideoTasks, task.ID, outcome.Message)
	case queue.DispositionDeadLettered:
		c.publish(ctx, events.KindTaskDeadLettered, c.cfg.Tables.VideoTasks, task.ID, outcome.Message)
	}

	c.metrics.IncrementCounter("coordinator.tasks_processed",
		map[string]string{"disposition": disp.String()})
	return true, nil
}

// runProcessing invokes fn with panics converted into failures, so one bad
// task cannot kill the worker loop while holding a claim.
func (c *Coordinator) runProcessing(ctx context.Context, fn ProcessingFunc, url string) (outcome queue.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("processing function panicked", "url", url, "panic", fmt.Sprintf("%v", r))
			c.metrics.IncrementCounter("coordinator.panics", nil)
			outcome = queue.Failure(fmt.Sprintf("processing panicked: %v", r))
		}
	}()

	if err := fn(ctx, url); err != nil {
		return queue.Failure(err.Error())
	}
	return queue.Success()
}

// publish emits a lifecycle event, best effort.
func (c *Coordinator) publish(ctx context.Context, kind, table, rowID, detail string) {
	event := events.NewEvent(kind, table, rowID, c.cfg.WorkerID, detail)
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish event", "kind", kind, "error", err)
		c.metrics.IncrementCounter("coordinator.event_failures", map[string]string{"kind": kind})
	}
}
