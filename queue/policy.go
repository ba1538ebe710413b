package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// Outcome is the result of processing a claimed row.
type Outcome struct {
	Failed  bool
	Message string
}

// Success marks a row as processed.
func Success() Outcome {
	return Outcome{}
}

// Failure marks a row as failed with the given error message. The message
// feeds the fatal-substring check and the row's LastError cell; it may be
// empty, as from a stall.
func Failure(message string) Outcome {
	return Outcome{Failed: true, Message: message}
}

// Disposition is the decided fate of a row.
type Disposition int

const (
	// DispositionDone: success, row marked done.
	DispositionDone Disposition = iota
	// DispositionRetried: failure within budget, row back to pending.
	DispositionRetried
	// DispositionDeadLettered: fatal error or budget exhausted, row moved
	// to its dead-letter table.
	DispositionDeadLettered
)

func (d Disposition) String() string {
	switch d {
	case DispositionDone:
		return "done"
	case DispositionRetried:
		return "retried"
	case DispositionDeadLettered:
		return "dead-lettered"
	default:
		return "unknown"
	}
}

// Policy decides, from a row's outcome, its next status, retry count and
// whether it moves to the dead-letter table.
type Policy struct {
	store   store.TableStore
	cfg     *config.Config
	logger  observability.Logger
	metrics observability.Metrics
}

// NewPolicy builds the retry/dead-letter policy.
func NewPolicy(st store.TableStore, cfg *config.Config, obs *observability.Provider) *Policy {
	logger, metrics := obs.MustComponents("queue.policy")
	return &Policy{store: st, cfg: cfg, logger: logger, metrics: metrics}
}

// Apply routes the row through the decision table and writes its next state
// back. The returned Disposition reflects the decision even when the write
// partially failed (the dead-letter append-then-delete gap).
func (p *Policy) Apply(ctx context.Context, table, deadTable string, row store.Row, outcome Outcome) (Disposition, error) {
	id := row[model.ColID]

	if !outcome.Failed {
		set := store.Row{
			model.ColStatus:    p.cfg.Statuses.Done,
			model.ColClaimedBy: "",
			model.ColClaimedAt: "",
			model.ColLastError: "",
		}
		ok, err := p.store.UpdateRow(ctx, table, model.ColID, id, set, nil)
		if err != nil {
			return DispositionDone, fmt.Errorf("failed to mark row %s done: %w", id, err)
		}
		if !ok {
			return DispositionDone, fmt.Errorf("failed to mark row %s done: %w", id, store.ErrRowNotFound)
		}

		p.logger.Info("row done", "table", table, "id", id)
		p.metrics.IncrementCounter("policy.done", map[string]string{"table": table})
		return DispositionDone, nil
	}

	retryCount, _ := strconv.Atoi(row[model.ColRetryCount])
	newRetryCount := retryCount + 1

	if p.isFatal(outcome.Message) {
		p.logger.Warn("fatal error, dead-lettering row",
			"table", table, "id", id, "last_error", outcome.Message)
		return p.moveToDeadLetter(ctx, table, deadTable, row, outcome.Message)
	}

	if newRetryCount >= p.cfg.Protocol.MaxRetries {
		p.logger.Warn("retry budget exhausted, dead-lettering row",
			"table", table, "id", id, "retry_count", retryCount)
		return p.moveToDeadLetter(ctx, table, deadTable, row, outcome.Message)
	}

	set := store.Row{
		model.ColStatus:     p.cfg.Statuses.Pending,
		model.ColClaimedBy:  "",
		model.ColClaimedAt:  "",
		model.ColRetryCount: strconv.Itoa(newRetryCount),
		model.ColLastError:  outcome.Message,
	}
	ok, err := p.store.UpdateRow(ctx, table, model.ColID, id, set, nil)
	if err != nil {
		return DispositionRetried, fmt.Errorf("failed to reset row %s to pending: %w", id, err)
	}
	if !ok {
		return DispositionRetried, fmt.Errorf("failed to reset row %s to pending: %w", id, store.ErrRowNotFound)
	}

	p.logger.Info("row reset to pending",
		"table", table, "id", id, "retry_count", newRetryCount)
	p.metrics.IncrementCounter("policy.retried", map[string]string{"table": table})
	return DispositionRetried, nil
}

// moveToDeadLetter appends a terminal copy of the row to deadTable and then
// deletes the origin. When the delete fails after a successful append the
// row stays visible in both tables rather than vanishing; failure is biased
// toward duplication, never silent loss.
func (p *Policy) moveToDeadLetter(ctx context.Context, table, deadTable string, row store.Row, message string) (Disposition, error) {
	id := row[model.ColID]

	copy := row.Clone()
	copy[model.ColStatus] = p.cfg.Statuses.Error
	copy[model.ColClaimedBy] = ""
	copy[model.ColClaimedAt] = ""
	copy[model.ColLastError] = message

	if _, err := p.store.AppendRows(ctx, deadTable, []store.Row{copy}); err != nil {
		return DispositionDeadLettered, fmt.Errorf("failed to append row %s to dead-letter table: %w", id, err)
	}

	if _, err := p.store.DeleteRow(ctx, table, id); err != nil {
		p.logger.Error("dead-letter delete failed, row now duplicated",
			"table", table, "dead_table", deadTable, "id", id, "error", err)
		p.metrics.IncrementCounter("policy.dead_letter.duplicates", map[string]string{"table": table})
		return DispositionDeadLettered, fmt.Errorf("failed to delete row %s after dead-letter append: %w", id, err)
	}

	p.metrics.IncrementCounter("policy.dead_lettered", map[string]string{"table": table})
	return DispositionDeadLettered, nil
}

func (p *Policy) isFatal(message string) bool {
	if message == "" {
		return false
	}
	for _, sub := range p.cfg.Protocol.FatalErrorSubstrings {
		if strings.Contains(message, sub) {
			return true
		}
	}
	return false
}
