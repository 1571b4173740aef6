package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

// LoggingHandler writes order events to the log instead of publishing them.
// It stands in for the Kafka publisher when Kafka is disabled, so a payload
// that does not decode is still an error and the message is retried.
type LoggingHandler struct {
	logger logger.Logger
}

func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message %d: %w", message.ID, err)
	}

	fields := []interface{}{
		"messageID", message.ID,
		"eventType", message.EventType,
		"eventID", event.EventID,
		"orderID", message.AggregateID,
	}

	switch message.EventType {
	case models.EventOrderCreated:
		var data models.OrderCreatedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("invalid %s data in message %d: %w", message.EventType, message.ID, err)
		}
		fields = append(fields,
			"orderNumber", data.OrderNumber,
			"items", data.ItemCount,
			"total", data.TotalAmount.StringFixed(2))

	case models.EventOrderStatusChanged:
		var data models.OrderStatusChangedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("invalid %s data in message %d: %w", message.EventType, message.ID, err)
		}
		fields = append(fields,
			"orderNumber", data.OrderNumber,
			"oldStatus", data.OldStatus,
			"newStatus", data.NewStatus)
	}

	h.logger.Info("Order event not published, Kafka disabled", fields...)
	return nil
}
