package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vaidashi/flower-shop-api/internal/database"
	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

// TxHook runs inside an order transaction after the order rows are written.
// Returning an error rolls the whole transaction back.
type TxHook func(ctx context.Context, tx *sqlx.Tx, order *models.Order) error

const orderColumns = `id, order_number, customer_name, customer_phone, customer_email,
	customer_address, delivery_date, delivery_time, payment_method,
	subtotal_amount, discount_amount, total_amount, status, notes, created_at, updated_at`

const orderItemColumns = `id, order_id, bouquet_id, bouquet_name, price, discount_percentage, quantity`

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// inTx runs fn in a transaction, committing on success and rolling back on any error
func (r *OrderRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx)

	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: commit: %v", ErrDatabase, err)
	}

	return nil
}

// SaveOrder inserts the order header and every line item in one transaction
// and returns the assigned order id. Hooks run last, inside the same
// transaction. On failure nothing is persisted and the order keeps no id.
func (r *OrderRepository) SaveOrder(ctx context.Context, order *models.Order, hooks ...TxHook) (int64, error) {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.insertOrder(ctx, tx, order); err != nil {
			return err
		}

		for _, item := range order.Items {
			item.OrderID = order.ID

			if err := r.insertItem(ctx, tx, item); err != nil {
				return err
			}
		}

		for _, hook := range hooks {
			if err := hook(ctx, tx, order); err != nil {
				return fmt.Errorf("order transaction hook: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		order.ID = 0
		for _, item := range order.Items {
			item.ID = 0
			item.OrderID = 0
		}
		return 0, err
	}

	return order.ID, nil
}

func (r *OrderRepository) insertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (
			order_number, customer_name, customer_phone, customer_email, customer_address,
			delivery_date, delivery_time, payment_method, subtotal_amount, discount_amount,
			total_amount, status, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		) RETURNING id, created_at, updated_at
	`

	err := tx.QueryRowxContext(
		ctx,
		query,
		order.OrderNumber,
		order.CustomerName,
		order.CustomerPhone,
		order.CustomerEmail,
		order.CustomerAddress,
		order.DeliveryDate,
		order.DeliveryTime,
		order.PaymentMethod,
		order.SubtotalAmount,
		order.DiscountAmount,
		order.TotalAmount,
		order.Status,
		order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, order.OrderNumber)
		}
		r.logger.Error("Failed to insert order", "error", err, "orderNumber", order.OrderNumber)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

func (r *OrderRepository) insertItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			order_id, bouquet_id, bouquet_name, price, discount_percentage, quantity
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	err := tx.QueryRowxContext(
		ctx,
		query,
		item.OrderID,
		item.BouquetID,
		item.BouquetName,
		item.Price,
		item.DiscountPercentage,
		item.Quantity,
	).Scan(&item.ID)

	if err != nil {
		r.logger.Error("Failed to insert order item", "error", err, "orderID", item.OrderID, "bouquetID", item.BouquetID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an order with its line items
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}

	return &order, nil
}

// List retrieves orders newest first with their line items embedded
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []interface{}{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	orders := []*models.Order{}
	err := r.db.DB.SelectContext(ctx, &orders, query, args...)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "limit", filter.Limit, "offset", filter.Offset)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// attachItems loads the line items of all given orders with a single query
func (r *OrderRepository) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*models.Order, len(orders))

	for _, o := range orders {
		o.Items = []*models.OrderItem{}
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`

	var items []*models.OrderItem
	err := r.db.DB.SelectContext(ctx, &items, query, pq.Array(ids))

	if err != nil {
		r.logger.Error("Failed to load order items", "error", err, "orders", len(ids))
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return nil
}

// Count counts orders matching the filter
func (r *OrderRepository) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	query := `SELECT COUNT(*) FROM orders`
	args := []interface{}{}

	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}

	var count int
	err := r.db.DB.GetContext(ctx, &count, query, args...)

	if err != nil {
		r.logger.Error("Failed to count orders", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// UpdateStatus moves the order from one status to order.Status. The update
// only applies while the stored status still equals from; otherwise
// ErrStatusConflict is returned and nothing changes.
func (r *OrderRepository) UpdateStatus(ctx context.Context, order *models.Order, from models.OrderStatus, hooks ...TxHook) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE orders
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`

		now := models.GetCurrentTime()
		result, err := tx.ExecContext(ctx, query, order.Status, now, order.ID, from)

		if err != nil {
			r.logger.Error("Failed to update order status", "error", err, "orderID", order.ID)
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		rowsAffected, err := result.RowsAffected()

		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		if rowsAffected == 0 {
			return ErrStatusConflict
		}

		order.UpdatedAt = now

		for _, hook := range hooks {
			if err := hook(ctx, tx, order); err != nil {
				return fmt.Errorf("order transaction hook: %w", err)
			}
		}

		return nil
	})
}

// Delete removes an order and, through the foreign key cascade, its items
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM orders WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, id)

	if err != nil {
		r.logger.Error("Failed to delete order", "error", err, "orderID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
