package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardroberry/wardroberry/shared/rabbitmq"
)

// GarmentProcessed is emitted once per garment when processing reaches a
// terminal outcome: completed, or failed with retries exhausted. Intermediate
// failed attempts that will be retried do not produce events.
type GarmentProcessed struct {
	GarmentID    string    `json:"garment_id"`
	OwnerID      string    `json:"owner_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher emits processing outcome events to the configured exchange.
// Consumers (notification service, feed builders) live outside this repo.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewPublisher creates a publisher over an established RabbitMQ client.
func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// PublishGarmentProcessed publishes the event with retry and backoff.
func (p *Publisher) PublishGarmentProcessed(ctx context.Context, event *GarmentProcessed) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal garment processed event: %w", err)
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish garment processed event: %w", err)
	}

	p.logger.Debug("Garment processed event published",
		slog.String("garment_id", event.GarmentID),
		slog.String("status", event.Status),
	)

	return nil
}
