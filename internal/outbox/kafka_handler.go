package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/pkg/circuitbreaker"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

// Publisher sends a keyed message to a topic
type Publisher interface {
	SendMessage(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error
}

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger   logger.Logger
	producer Publisher
	topic    string
	breaker  *circuitbreaker.CircuitBreaker
}

// NewKafkaHandler creates a new KafkaHandler. A nil breaker publishes
// unguarded.
func NewKafkaHandler(producer Publisher, topic string, breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		producer: producer,
		topic:    topic,
		breaker:  breaker,
		logger:   logger,
	}
}

// HandleMessage handles an outbox message by publishing it to Kafka
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	// Use the aggregate ID (order ID) as the Kafka message key for partitioning
	key := message.AggregateID
	headers := map[string]string{
		"event_type":     message.EventType,
		"aggregate_type": message.AggregateType,
		"aggregate_id":   message.AggregateID,
	}

	h.logger.Debug("Publishing message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	send := func() error {
		return h.producer.SendMessage(ctx, h.topic, key, message.Payload, headers)
	}

	var err error
	if h.breaker != nil {
		err = h.breaker.Execute(send)
	} else {
		err = send()
	}

	if err != nil {
		h.logger.Error("Failed to publish message to Kafka",
			"error", err,
			"messageID", message.ID,
			"aggregateID", message.AggregateID)
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Info("Successfully published message to Kafka",
		"messageID", message.ID,
		"aggregateID", message.AggregateID)

	return nil
}
