package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vaidashi/flower-shop-api/internal/database"
	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

const categoryColumns = `id, name, description, image_url, sort_order, is_active, created_at`

// CategoryRepository handles database operations for catalog categories
type CategoryRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(db *database.Database, logger logger.Logger) *CategoryRepository {
	return &CategoryRepository{
		db:     db,
		logger: logger,
	}
}

// ListActive returns the active categories in display order
func (r *CategoryRepository) ListActive(ctx context.Context) ([]*models.Category, error) {
	query := `SELECT ` + categoryColumns + `
		FROM categories
		WHERE is_active = TRUE
		ORDER BY sort_order ASC, name ASC`

	categories := []*models.Category{}

	if err := r.db.DB.SelectContext(ctx, &categories, query); err != nil {
		r.logger.Error("Failed to list categories", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return categories, nil
}

// GetByID retrieves a category by ID
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	var category models.Category

	if err := r.db.DB.GetContext(ctx, &category, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get category by ID", "error", err, "categoryID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &category, nil
}

// Create inserts a new category
func (r *CategoryRepository) Create(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (name, description, image_url, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.DB.QueryRowxContext(ctx, query, c.Name, c.Description, c.ImageURL, c.SortOrder, c.IsActive).
		Scan(&c.ID, &c.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to create category", "error", err, "name", c.Name)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Update writes every mutable column of the category
func (r *CategoryRepository) Update(ctx context.Context, c *models.Category) error {
	query := `
		UPDATE categories
		SET name = $1, description = $2, image_url = $3, sort_order = $4, is_active = $5
		WHERE id = $6
	`

	result, err := r.db.DB.ExecContext(ctx, query, c.Name, c.Description, c.ImageURL, c.SortOrder, c.IsActive, c.ID)

	if err != nil {
		r.logger.Error("Failed to update category", "error", err, "categoryID", c.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireRow(result)
}

// Delete removes a category. Categories that still hold bouquets are refused
// with ErrInUse.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)

	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: category %d has bouquets", ErrInUse, id)
		}
		r.logger.Error("Failed to delete category", "error", err, "categoryID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireRow(result)
}

// CountBouquets counts the bouquets filed under a category
func (r *CategoryRepository) CountBouquets(ctx context.Context, id int64) (int, error) {
	var count int

	if err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM bouquets WHERE category_id = $1`, id); err != nil {
		r.logger.Error("Failed to count category bouquets", "error", err, "categoryID", id)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}
