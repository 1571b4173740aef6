package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

// OrderEventsHandler consumes order events from Kafka and turns them into
// shop notifications
type OrderEventsHandler struct {
	logger logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		logger: logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("failed to unmarshal message", "error", err, "offset", msg.Offset)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	h.logger.Debug("Handling order event",
		"eventType", event.EventType,
		"eventId", event.EventID,
		"aggregateId", event.AggregateID,
		"occurredAt", event.OccurredAt,
	)

	switch event.EventType {
	case models.EventOrderCreated:
		return h.handleOrderCreated(event)
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(event)
	default:
		h.logger.Warn("unknown event type", "eventType", event.EventType)
		return nil
	}
}

func (h *OrderEventsHandler) handleOrderCreated(event models.OutboxMessageEvent) error {
	var data models.OrderCreatedData

	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("invalid order_created data in event %s: %w", event.EventID, err)
	}

	fields := []interface{}{
		"orderID", data.OrderID,
		"orderNumber", data.OrderNumber,
		"customer", data.CustomerName,
		"items", data.ItemCount,
		"total", data.TotalAmount.StringFixed(2),
	}
	if data.DeliveryDate != nil {
		fields = append(fields, "deliveryDate", data.DeliveryDate.Format("2006-01-02"))
	}

	h.logger.Info("New order received, notify florists", fields...)
	return nil
}

func (h *OrderEventsHandler) handleOrderStatusChanged(event models.OutboxMessageEvent) error {
	var data models.OrderStatusChangedData

	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("invalid order_status_changed data in event %s: %w", event.EventID, err)
	}

	h.logger.Info("Order status changed",
		"orderID", data.OrderID,
		"orderNumber", data.OrderNumber,
		"oldStatus", data.OldStatus,
		"newStatus", data.NewStatus)

	switch data.NewStatus {
	case models.OrderStatusConfirmed:
		h.logger.Info("Notify customer: order confirmed", "orderNumber", data.OrderNumber)
	case models.OrderStatusDelivered:
		h.logger.Info("Notify customer: bouquet delivered", "orderNumber", data.OrderNumber)
	case models.OrderStatusCancelled:
		h.logger.Info("Notify customer: order cancelled", "orderNumber", data.OrderNumber)
	}

	return nil
}
