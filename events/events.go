// Package events publishes row lifecycle notifications (claimed, done,
// retried, dead-lettered, expanded) to an external broker so operators can
// alert on them. Publishing is best effort: the coordination protocol never
// depends on an event arriving.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// Event kinds.
const (
	KindTaskDone         = "task.done"
	KindTaskRetried      = "task.retried"
	KindTaskDeadLettered = "task.dead_lettered"
	KindSourceExpanded   = "source.expanded"
	KindSourceFailed     = "source.failed"
)

// Event is one lifecycle notification.
type Event struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Table     string `json:"table"`
	RowID     string `json:"row_id"`
	WorkerID  string `json:"worker_id"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewEvent stamps a new event with an ID and the current time.
func NewEvent(kind, table, rowID, workerID, detail string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Table:     table,
		RowID:     rowID,
		WorkerID:  workerID,
		Detail:    detail,
		Timestamp: model.FormatTimestamp(time.Now()),
	}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Open builds the configured publisher. Backend "none" (or empty) returns a
// no-op publisher.
func Open(ctx context.Context, cfg *config.Config, obs *observability.Provider) (Publisher, error) {
	switch cfg.Events.Backend {
	case "", "none":
		return NewNopPublisher(), nil
	case "amqp":
		return NewAMQPPublisher(&cfg.Events.AMQP, obs)
	case "sqs":
		return NewSQSPublisher(ctx, &cfg.Events.SQS, obs)
	default:
		return nil, fmt.Errorf("unknown events backend: %s", cfg.Events.Backend)
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher { return &NopPublisher{} }

func (*NopPublisher) Publish(ctx context.Context, event *Event) error { return nil }
func (*NopPublisher) Close() error                                    { return nil }
