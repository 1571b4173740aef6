package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vaidashi/flower-shop-api/internal/database"
	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

const bouquetSelect = `
	SELECT b.id, b.name, b.description, b.price, b.discount_percentage, b.final_price,
		b.category_id, c.name AS category_name, b.images, b.is_available, b.is_featured,
		b.view_count, b.created_at, b.updated_at
	FROM bouquets b
	LEFT JOIN categories c ON c.id = b.category_id`

var bouquetOrderBy = map[models.BouquetSort]string{
	models.BouquetSortNameAsc:   "b.name ASC, b.id ASC",
	models.BouquetSortNameDesc:  "b.name DESC, b.id DESC",
	models.BouquetSortPriceAsc:  "b.final_price ASC, b.id ASC",
	models.BouquetSortPriceDesc: "b.final_price DESC, b.id DESC",
	models.BouquetSortNewest:    "b.created_at DESC, b.id DESC",
	models.BouquetSortPopular:   "b.view_count DESC, b.id DESC",
}

// BouquetRepository handles database operations for the bouquet catalog
type BouquetRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewBouquetRepository creates a new BouquetRepository
func NewBouquetRepository(db *database.Database, logger logger.Logger) *BouquetRepository {
	return &BouquetRepository{
		db:     db,
		logger: logger,
	}
}

// GetBouquetsByIDs returns the bouquets that exist among ids, keyed by id.
// Missing ids are simply absent from the map.
func (r *BouquetRepository) GetBouquetsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Bouquet, error) {
	result := make(map[int64]*models.Bouquet, len(ids))

	if len(ids) == 0 {
		return result, nil
	}

	query := bouquetSelect + ` WHERE b.id = ANY($1)`

	var bouquets []*models.Bouquet

	if err := r.db.DB.SelectContext(ctx, &bouquets, query, pq.Array(ids)); err != nil {
		r.logger.Error("Failed to get bouquets by ids", "error", err, "count", len(ids))
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, b := range bouquets {
		result[b.ID] = b
	}

	return result, nil
}

// bouquetWhere builds the shared filter for List and Count
func bouquetWhere(filter models.BouquetFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(b.name ILIKE $%d OR b.description ILIKE $%d)", len(args), len(args)))
	}

	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conds = append(conds, fmt.Sprintf("b.category_id = $%d", len(args)))
	}

	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		conds = append(conds, fmt.Sprintf("b.final_price >= $%d", len(args)))
	}

	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		conds = append(conds, fmt.Sprintf("b.final_price <= $%d", len(args)))
	}

	if filter.AvailableOnly {
		conds = append(conds, "b.is_available = TRUE")
	}

	if len(conds) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// List retrieves bouquets matching the filter
func (r *BouquetRepository) List(ctx context.Context, filter models.BouquetFilter) ([]*models.Bouquet, error) {
	where, args := bouquetWhere(filter)

	orderBy, ok := bouquetOrderBy[filter.SortBy]
	if !ok {
		orderBy = bouquetOrderBy[models.BouquetSortNewest]
	}

	args = append(args, filter.Limit, filter.Offset)
	query := bouquetSelect + where +
		fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, len(args)-1, len(args))

	bouquets := []*models.Bouquet{}

	if err := r.db.DB.SelectContext(ctx, &bouquets, query, args...); err != nil {
		r.logger.Error("Failed to list bouquets", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return bouquets, nil
}

// Count counts bouquets matching the filter
func (r *BouquetRepository) Count(ctx context.Context, filter models.BouquetFilter) (int, error) {
	where, args := bouquetWhere(filter)
	query := `SELECT COUNT(*) FROM bouquets b` + where

	var count int

	if err := r.db.DB.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.Error("Failed to count bouquets", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// GetByID retrieves a bouquet by ID
func (r *BouquetRepository) GetByID(ctx context.Context, id int64) (*models.Bouquet, error) {
	query := bouquetSelect + ` WHERE b.id = $1`

	var bouquet models.Bouquet

	if err := r.db.DB.GetContext(ctx, &bouquet, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get bouquet by ID", "error", err, "bouquetID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &bouquet, nil
}

// IncrementViewCount bumps the popularity counter of a bouquet
func (r *BouquetRepository) IncrementViewCount(ctx context.Context, id int64) error {
	query := `UPDATE bouquets SET view_count = view_count + 1 WHERE id = $1`

	if _, err := r.db.DB.ExecContext(ctx, query, id); err != nil {
		r.logger.Warn("Failed to increment bouquet view count", "error", err, "bouquetID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Create inserts a new bouquet. The final price is computed by the database.
func (r *BouquetRepository) Create(ctx context.Context, b *models.Bouquet) error {
	query := `
		INSERT INTO bouquets (
			name, description, price, discount_percentage, category_id,
			images, is_available, is_featured
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		) RETURNING id, final_price, view_count, created_at, updated_at
	`

	if b.Images == nil {
		b.Images = pq.StringArray{}
	}

	err := r.db.DB.QueryRowxContext(
		ctx,
		query,
		b.Name,
		b.Description,
		b.Price,
		b.DiscountPercentage,
		b.CategoryID,
		b.Images,
		b.IsAvailable,
		b.IsFeatured,
	).Scan(&b.ID, &b.FinalPrice, &b.ViewCount, &b.CreatedAt, &b.UpdatedAt)

	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: category %v", ErrInvalidReference, derefID(b.CategoryID))
		}
		r.logger.Error("Failed to create bouquet", "error", err, "name", b.Name)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Update writes every mutable column of the bouquet
func (r *BouquetRepository) Update(ctx context.Context, b *models.Bouquet) error {
	query := `
		UPDATE bouquets
		SET name = $1, description = $2, price = $3, discount_percentage = $4,
			category_id = $5, images = $6, is_available = $7, is_featured = $8,
			updated_at = $9
		WHERE id = $10
		RETURNING final_price, updated_at
	`

	if b.Images == nil {
		b.Images = pq.StringArray{}
	}

	err := r.db.DB.QueryRowxContext(
		ctx,
		query,
		b.Name,
		b.Description,
		b.Price,
		b.DiscountPercentage,
		b.CategoryID,
		b.Images,
		b.IsAvailable,
		b.IsFeatured,
		models.GetCurrentTime(),
		b.ID,
	).Scan(&b.FinalPrice, &b.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: category %v", ErrInvalidReference, derefID(b.CategoryID))
		}
		r.logger.Error("Failed to update bouquet", "error", err, "bouquetID", b.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Delete removes a bouquet. Past orders keep their snapshot lines.
func (r *BouquetRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM bouquets WHERE id = $1`, id)

	if err != nil {
		r.logger.Error("Failed to delete bouquet", "error", err, "bouquetID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireRow(result)
}

func derefID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
