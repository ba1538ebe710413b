package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// SQSPublisher sends events to an SQS queue.
type SQSPublisher struct {
	client   *sqs.Client
	queue    string
	queueURL string
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewSQSPublisher builds the SQS client and resolves the queue URL once up
// front.
func NewSQSPublisher(ctx context.Context, cfg *config.SQSConfig, obs *observability.Provider) (*SQSPublisher, error) {
	logger, metrics := obs.MustComponents("events.sqs")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	result, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(cfg.Queue),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get queue URL for %s: %w", cfg.Queue, err)
	}

	logger.Info("event publisher initialized", "queue", cfg.Queue, "region", cfg.Region)

	return &SQSPublisher{
		client:   client,
		queue:    cfg.Queue,
		queueURL: aws.ToString(result.QueueUrl),
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Publish sends one event to the queue.
func (p *SQSPublisher) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.IncrementCounter("events.publish.error",
			map[string]string{"kind": event.Kind, "error": "marshal_failed"})
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.logger.Error("failed to send event", "error", err, "kind", event.Kind)
		p.metrics.IncrementCounter("events.publish.error",
			map[string]string{"kind": event.Kind, "error": "send_failed"})
		return fmt.Errorf("failed to send event: %w", err)
	}

	p.metrics.IncrementCounter("events.publish.success", map[string]string{"kind": event.Kind})
	return nil
}

// Close is a no-op; the SQS client holds no persistent connection.
func (p *SQSPublisher) Close() error { return nil }
