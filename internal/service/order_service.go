package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/pricing"
	"github.com/vaidashi/flower-shop-api/internal/repository"
	apperrors "github.com/vaidashi/flower-shop-api/pkg/errors"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
	"github.com/vaidashi/flower-shop-api/pkg/metrics"
	"github.com/vaidashi/flower-shop-api/pkg/retry"
)

const (
	defaultOrderPageSize = 10
	maxOrderPageSize     = 100
	orderNumberAttempts  = 3
)

// OrderStore persists orders
type OrderStore interface {
	SaveOrder(ctx context.Context, order *models.Order, hooks ...repository.TxHook) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	Count(ctx context.Context, filter models.OrderFilter) (int, error)
	UpdateStatus(ctx context.Context, order *models.Order, from models.OrderStatus, hooks ...repository.TxHook) error
	Delete(ctx context.Context, id int64) error
}

// CatalogLookup resolves bouquets referenced by a cart
type CatalogLookup interface {
	GetBouquetsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Bouquet, error)
}

// OutboxWriter records events inside an order transaction
type OutboxWriter interface {
	CreateInTx(ctx context.Context, tx *sqlx.Tx, message *models.OutboxMessage) error
}

// CreateOrderInput is a checkout request
type CreateOrderInput struct {
	CustomerName  string            `json:"customer_name" validate:"required,max=255"`
	Phone         string            `json:"phone" validate:"required,max=50"`
	Email         string            `json:"email" validate:"omitempty,email,max=255"`
	Address       string            `json:"delivery_address" validate:"required"`
	DeliveryDate  string            `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryTime  string            `json:"delivery_time" validate:"max=50"`
	Items         []models.CartLine `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,oneof=card cash"`
	Notes         string            `json:"notes" validate:"max=2000"`
	ClientTotal   *decimal.Decimal  `json:"total_amount"`
}

func (in *CreateOrderInput) normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	in.DeliveryDate = strings.TrimSpace(in.DeliveryDate)
	in.DeliveryTime = strings.TrimSpace(in.DeliveryTime)
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	in.Notes = strings.TrimSpace(in.Notes)
}

// CreateOrderResult confirms a persisted order
type CreateOrderResult struct {
	OrderID     int64
	OrderNumber string
	Totals      pricing.Totals
}

// OrderPage is one page of the admin order listing
type OrderPage struct {
	Orders     []*models.Order `json:"orders"`
	Pagination Pagination      `json:"pagination"`
}

// OrderService handles order-related operations
type OrderService struct {
	orders    OrderStore
	catalog   CatalogLookup
	outbox    OutboxWriter
	metrics   *metrics.Metrics
	validate  *validator.Validate
	saveRetry retry.RetryConfig
	now       func() time.Time
	logger    logger.Logger
}

// NewOrderService creates a new OrderService. m may be nil.
func NewOrderService(
	orders OrderStore,
	catalog CatalogLookup,
	outbox OutboxWriter,
	m *metrics.Metrics,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		catalog:  catalog,
		outbox:   outbox,
		metrics:  m,
		validate: newValidator(),
		saveRetry: retry.RetryConfig{
			MaxAttempts:     orderNumberAttempts,
			RetryableErrors: []error{repository.ErrDuplicateOrderNumber},
			Logger:          logger,
		},
		now:    models.GetCurrentTime,
		logger: logger,
	}
}

// CreateOrder validates the cart against the catalog, prices it with the
// catalog's current prices and persists the order, its items and an
// order_created event atomically. Nothing is written when any step fails.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	input.normalize()

	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	bouquets, err := s.catalog.GetBouquetsByIDs(ctx, bouquetIDs(input.Items))

	if err != nil {
		s.logger.Error("Failed to look up bouquets", "error", err)
		return nil, apperrors.NewInternalError("Failed to create order").WithCause(err)
	}

	order, totals, err := s.buildOrder(input, bouquets)

	if err != nil {
		return nil, err
	}

	if input.ClientTotal != nil && !input.ClientTotal.Equal(totals.FinalTotal) {
		s.logger.Warn("Client total differs from catalog total",
			"clientTotal", input.ClientTotal.String(),
			"total", totals.FinalTotal.String())
	}

	err = retry.Retry(ctx, func(ctx context.Context) error {
		order.OrderNumber = models.NewOrderNumber(s.now())
		_, err := s.orders.SaveOrder(ctx, order, s.outboxHook(models.NewOrderCreatedEvent))
		return err
	}, &s.saveRetry)

	if err != nil {
		s.logger.Error("Failed to save order", "error", err, "customer", order.CustomerName)
		return nil, apperrors.NewInternalError("Failed to create order").WithCause(err)
	}

	s.metrics.OrderCreated()
	s.logger.Info("Order created",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"items", len(order.Items),
		"total", order.TotalAmount.StringFixed(2))

	return &CreateOrderResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Totals:      totals,
	}, nil
}

// buildOrder snapshots every referenced bouquet into an order line. The
// first missing bouquet fails the whole order.
func (s *OrderService) buildOrder(input CreateOrderInput, bouquets map[int64]*models.Bouquet) (*models.Order, pricing.Totals, error) {
	items := make([]*models.OrderItem, 0, len(input.Items))
	lines := make([]pricing.Line, 0, len(input.Items))

	for _, line := range input.Items {
		b, ok := bouquets[line.BouquetID]

		if !ok {
			return nil, pricing.Totals{}, apperrors.NewReferenceNotFoundError(line.BouquetID)
		}

		items = append(items, models.NewOrderItem(b, line.Quantity))
		lines = append(lines, pricing.Line{
			UnitPrice:          b.Price,
			Quantity:           line.Quantity,
			DiscountPercentage: b.DiscountPercentage,
		})
	}

	totals, err := pricing.Calculate(lines)

	if err != nil {
		// catalog rows violate their own constraints
		s.logger.Error("Failed to price order", "error", err)
		return nil, pricing.Totals{}, apperrors.NewInternalError("Failed to create order").WithCause(err)
	}

	order := &models.Order{
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.Phone,
		CustomerAddress: input.Address,
		CustomerEmail:   optionalString(input.Email),
		DeliveryTime:    optionalString(input.DeliveryTime),
		PaymentMethod:   optionalString(input.PaymentMethod),
		Notes:           optionalString(input.Notes),
		SubtotalAmount:  totals.Total,
		DiscountAmount:  totals.Discount,
		TotalAmount:     totals.FinalTotal,
		Status:          models.OrderStatusPending,
		Items:           items,
	}

	if input.DeliveryDate != "" {
		// already checked by the datetime validator
		date, _ := time.Parse(time.DateOnly, input.DeliveryDate)
		order.DeliveryDate = &date
	}

	return order, totals, nil
}

// GetOrder returns an order with its items
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("Order with ID %d not found", id))
		}
		return nil, apperrors.NewInternalError("Failed to get order").WithCause(err)
	}

	return order, nil
}

// ListOrders returns a page of orders, newest first, optionally filtered by
// status
func (s *OrderService) ListOrders(ctx context.Context, status string, page, limit int) (*OrderPage, error) {
	page, limit = normalizePage(page, limit, defaultOrderPageSize, maxOrderPageSize)
	filter := models.OrderFilter{Limit: limit, Offset: (page - 1) * limit}

	if status != "" {
		parsed, err := models.ParseOrderStatus(status)
		if err != nil {
			return nil, invalidStatusError()
		}
		filter.Status = &parsed
	}

	orders, err := s.orders.List(ctx, filter)

	if err != nil {
		return nil, apperrors.NewInternalError("Failed to list orders").WithCause(err)
	}

	total, err := s.orders.Count(ctx, filter)

	if err != nil {
		return nil, apperrors.NewInternalError("Failed to count orders").WithCause(err)
	}

	return &OrderPage{
		Orders:     orders,
		Pagination: newPagination(page, limit, total),
	}, nil
}

// UpdateOrderStatus moves an order along the status graph and records an
// order_status_changed event in the same transaction. Setting the current
// status again is a no-op.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status string) (*models.Order, error) {
	next, err := models.ParseOrderStatus(status)

	if err != nil {
		return nil, invalidStatusError()
	}

	order, err := s.GetOrder(ctx, id)

	if err != nil {
		return nil, err
	}

	current := order.Status

	if current == next {
		return order, nil
	}

	if !current.CanTransitionTo(next) {
		return nil, apperrors.NewConflictError(fmt.Sprintf("Cannot change order status from %s to %s", current, next)).
			WithContext("from", current).
			WithContext("to", next)
	}

	order.Status = next

	err = s.orders.UpdateStatus(ctx, order, current, s.outboxHook(func(o *models.Order) (*models.OutboxMessage, error) {
		return models.NewOrderStatusChangedEvent(o, current)
	}))

	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperrors.NewConflictError("Order status was changed by another request, reload and retry")
		}
		s.logger.Error("Failed to update order status", "error", err, "orderID", id)
		return nil, apperrors.NewInternalError("Failed to update order status").WithCause(err)
	}

	s.metrics.StatusChanged(string(current), string(next))
	s.logger.Info("Order status updated", "orderID", id, "from", current, "to", next)

	return order, nil
}

// DeleteOrder removes an order and its items. It is an administrative
// override outside the normal order lifecycle.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError(fmt.Sprintf("Order with ID %d not found", id))
		}
		return apperrors.NewInternalError("Failed to delete order").WithCause(err)
	}

	s.logger.Warn("Order deleted by administrator", "orderID", id)
	return nil
}

func (s *OrderService) outboxHook(event func(*models.Order) (*models.OutboxMessage, error)) repository.TxHook {
	return func(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
		msg, err := event(order)

		if err != nil {
			return fmt.Errorf("failed to build outbox message: %w", err)
		}

		return s.outbox.CreateInTx(ctx, tx, msg)
	}
}

func invalidStatusError() error {
	return apperrors.NewValidationError(map[string]string{
		"status": "must be one of: pending confirmed preparing delivered cancelled",
	})
}

// bouquetIDs returns the distinct ids of the cart in first-seen order
func bouquetIDs(lines []models.CartLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))

	for _, line := range lines {
		if _, ok := seen[line.BouquetID]; ok {
			continue
		}
		seen[line.BouquetID] = struct{}{}
		ids = append(ids, line.BouquetID)
	}

	return ids
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
