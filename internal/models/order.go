package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions lists the statuses reachable from each status.
// Delivered and cancelled orders are final.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ParseOrderStatus converts a raw value into a known OrderStatus
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))

	if !status.IsValid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}

	return status, nil
}

// IsValid reports whether the status is one of the known order statuses
func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo checks the transition graph
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod is how the customer intends to pay
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
)

// Order represents one customer purchase
type Order struct {
	ID              int64           `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	CustomerName    string          `db:"customer_name" json:"customer_name"`
	CustomerPhone   string          `db:"customer_phone" json:"customer_phone"`
	CustomerEmail   *string         `db:"customer_email" json:"customer_email,omitempty"`
	CustomerAddress string          `db:"customer_address" json:"customer_address"`
	DeliveryDate    *time.Time      `db:"delivery_date" json:"delivery_date,omitempty"`
	DeliveryTime    *string         `db:"delivery_time" json:"delivery_time,omitempty"`
	PaymentMethod   *string         `db:"payment_method" json:"payment_method,omitempty"`
	SubtotalAmount  decimal.Decimal `db:"subtotal_amount" json:"subtotal_amount"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	Items           []*OrderItem    `db:"-" json:"items"`
}

// OrderItem is a single bouquet line of an order. Name, price and discount
// are copied from the catalog when the order is placed and never change.
type OrderItem struct {
	ID                 int64           `db:"id" json:"id"`
	OrderID            int64           `db:"order_id" json:"order_id"`
	BouquetID          int64           `db:"bouquet_id" json:"bouquet_id"`
	BouquetName        string          `db:"bouquet_name" json:"bouquet_name"`
	Price              decimal.Decimal `db:"price" json:"price"`
	DiscountPercentage int             `db:"discount_percentage" json:"discount_percentage"`
	Quantity           int             `db:"quantity" json:"quantity"`
}

// CartLine is a client supplied bouquet reference with a quantity. The
// quantity cap keeps line totals within the order_items and orders columns.
type CartLine struct {
	BouquetID int64 `json:"bouquet_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=1,lte=1000"`
}

// NewOrderItem snapshots the bouquet into an order line
func NewOrderItem(b *Bouquet, quantity int) *OrderItem {
	return &OrderItem{
		BouquetID:          b.ID,
		BouquetName:        b.Name,
		Price:              b.Price,
		DiscountPercentage: b.DiscountPercentage,
		Quantity:           quantity,
	}
}

// OrderFilter narrows order listings
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}
