package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// AMQPPublisher sends events to a RabbitMQ queue as persistent JSON
// messages.
type AMQPPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	logger  observability.Logger
	metrics observability.Metrics
}

// NewAMQPPublisher connects to the broker and declares the event queue.
func NewAMQPPublisher(cfg *config.AMQPConfig, obs *observability.Provider) (*AMQPPublisher, error) {
	logger, metrics := obs.MustComponents("events.amqp")

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("failed to create channel", "error", err)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Idempotent; survives broker restarts.
	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		logger.Error("failed to declare queue", "error", err, "queue", cfg.Queue)
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logger.Info("event publisher initialized", "queue", cfg.Queue)

	return &AMQPPublisher{
		conn:    conn,
		channel: channel,
		queue:   cfg.Queue,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Publish sends one event to the declared queue.
func (p *AMQPPublisher) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.IncrementCounter("events.publish.error",
			map[string]string{"kind": event.Kind, "error": "marshal_failed"})
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	}

	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.Error("failed to publish event", "error", err, "kind", event.Kind)
		p.metrics.IncrementCounter("events.publish.error",
			map[string]string{"kind": event.Kind, "error": "publish_failed"})
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.metrics.IncrementCounter("events.publish.success", map[string]string{"kind": event.Kind})
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
