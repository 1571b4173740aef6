package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/repository"
	apperrors "github.com/vaidashi/flower-shop-api/pkg/errors"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

const (
	defaultBouquetPageSize = 12
	maxBouquetPageSize     = 100
)

// BouquetStore persists catalog bouquets
type BouquetStore interface {
	List(ctx context.Context, filter models.BouquetFilter) ([]*models.Bouquet, error)
	Count(ctx context.Context, filter models.BouquetFilter) (int, error)
	GetByID(ctx context.Context, id int64) (*models.Bouquet, error)
	IncrementViewCount(ctx context.Context, id int64) error
	Create(ctx context.Context, b *models.Bouquet) error
	Update(ctx context.Context, b *models.Bouquet) error
	Delete(ctx context.Context, id int64) error
}

// CategoryStore persists catalog categories
type CategoryStore interface {
	ListActive(ctx context.Context) ([]*models.Category, error)
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	Create(ctx context.Context, c *models.Category) error
	Update(ctx context.Context, c *models.Category) error
	Delete(ctx context.Context, id int64) error
	CountBouquets(ctx context.Context, id int64) (int, error)
}

// BouquetQuery is a public catalog search
type BouquetQuery struct {
	Search     string
	CategoryID *int64
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	SortBy     string
	Page       int
	Limit      int
}

// BouquetPage is one page of catalog results
type BouquetPage struct {
	Bouquets   []*models.Bouquet `json:"bouquets"`
	Pagination Pagination        `json:"pagination"`
}

// BouquetInput creates a bouquet
type BouquetInput struct {
	Name               string          `json:"name" validate:"required,max=255"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage int             `json:"discount_percentage" validate:"gte=0,lte=100"`
	CategoryID         *int64          `json:"category_id" validate:"omitempty,gt=0"`
	Images             []string        `json:"images" validate:"dive,required,max=500"`
	IsAvailable        *bool           `json:"is_available"`
	IsFeatured         bool            `json:"is_featured"`
}

// bouquetRules re-checks a bouquet after a patch was merged into it
type bouquetRules struct {
	Name               string   `json:"name" validate:"required,max=255"`
	DiscountPercentage int      `json:"discount_percentage" validate:"gte=0,lte=100"`
	CategoryID         *int64   `json:"category_id" validate:"omitempty,gt=0"`
	Images             []string `json:"images" validate:"dive,required,max=500"`
}

// CategoryInput creates a category
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url" validate:"max=500"`
	SortOrder   int    `json:"sort_order"`
	IsActive    *bool  `json:"is_active"`
}

type categoryRules struct {
	Name     string `json:"name" validate:"required,max=100"`
	ImageURL string `json:"image_url" validate:"max=500"`
}

// CatalogService manages bouquets and categories
type CatalogService struct {
	bouquets   BouquetStore
	categories CategoryStore
	validate   *validator.Validate
	logger     logger.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(bouquets BouquetStore, categories CategoryStore, logger logger.Logger) *CatalogService {
	return &CatalogService{
		bouquets:   bouquets,
		categories: categories,
		validate:   newValidator(),
		logger:     logger,
	}
}

// ListBouquets searches the available bouquets
func (s *CatalogService) ListBouquets(ctx context.Context, q BouquetQuery) (*BouquetPage, error) {
	page, limit := normalizePage(q.Page, q.Limit, defaultBouquetPageSize, maxBouquetPageSize)

	sortBy := models.BouquetSort(q.SortBy)
	if sortBy == "" {
		sortBy = models.BouquetSortNameAsc
	}

	filter := models.BouquetFilter{
		Search:        q.Search,
		CategoryID:    q.CategoryID,
		MinPrice:      q.MinPrice,
		MaxPrice:      q.MaxPrice,
		AvailableOnly: true,
		SortBy:        sortBy,
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}

	bouquets, err := s.bouquets.List(ctx, filter)

	if err != nil {
		return nil, apperrors.NewInternalError("Failed to list bouquets").WithCause(err)
	}

	total, err := s.bouquets.Count(ctx, filter)

	if err != nil {
		return nil, apperrors.NewInternalError("Failed to count bouquets").WithCause(err)
	}

	return &BouquetPage{
		Bouquets:   bouquets,
		Pagination: newPagination(page, limit, total),
	}, nil
}

// GetBouquet returns a bouquet and counts the view
func (s *CatalogService) GetBouquet(ctx context.Context, id int64) (*models.Bouquet, error) {
	bouquet, err := s.getBouquet(ctx, id)

	if err != nil {
		return nil, err
	}

	if err := s.bouquets.IncrementViewCount(ctx, id); err != nil {
		// popularity is best effort
		s.logger.Warn("Failed to count bouquet view", "error", err, "bouquetID", id)
	} else {
		bouquet.ViewCount++
	}

	return bouquet, nil
}

func (s *CatalogService) getBouquet(ctx context.Context, id int64) (*models.Bouquet, error) {
	bouquet, err := s.bouquets.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("Bouquet with ID %d not found", id))
		}
		return nil, apperrors.NewInternalError("Failed to get bouquet").WithCause(err)
	}

	return bouquet, nil
}

// CreateBouquet adds a bouquet to the catalog. Bouquets are available
// unless the input says otherwise.
func (s *CatalogService) CreateBouquet(ctx context.Context, input BouquetInput) (*models.Bouquet, error) {
	input.Name = strings.TrimSpace(input.Name)

	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}

	bouquet := &models.Bouquet{
		Name:               input.Name,
		Description:        input.Description,
		Price:              input.Price,
		DiscountPercentage: input.DiscountPercentage,
		CategoryID:         input.CategoryID,
		Images:             pq.StringArray(input.Images),
		IsAvailable:        input.IsAvailable == nil || *input.IsAvailable,
		IsFeatured:         input.IsFeatured,
	}

	if err := s.bouquets.Create(ctx, bouquet); err != nil {
		return nil, s.bouquetWriteError(err, bouquet, "Failed to create bouquet")
	}

	s.logger.Info("Bouquet created", "bouquetID", bouquet.ID, "name", bouquet.Name)
	return bouquet, nil
}

// UpdateBouquet applies the fields present in patch. Zero values that were
// sent explicitly, such as a discount of 0, are applied too.
func (s *CatalogService) UpdateBouquet(ctx context.Context, id int64, patch models.BouquetPatch) (*models.Bouquet, error) {
	bouquet, err := s.getBouquet(ctx, id)

	if err != nil {
		return nil, err
	}

	patch.Apply(bouquet)
	bouquet.Name = strings.TrimSpace(bouquet.Name)

	rules := bouquetRules{
		Name:               bouquet.Name,
		DiscountPercentage: bouquet.DiscountPercentage,
		CategoryID:         bouquet.CategoryID,
		Images:             bouquet.Images,
	}

	if err := validateStruct(s.validate, rules); err != nil {
		return nil, err
	}

	if err := validatePrice(bouquet.Price); err != nil {
		return nil, err
	}

	if err := s.bouquets.Update(ctx, bouquet); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("Bouquet with ID %d not found", id))
		}
		return nil, s.bouquetWriteError(err, bouquet, "Failed to update bouquet")
	}

	s.logger.Info("Bouquet updated", "bouquetID", id)
	return bouquet, nil
}

// DeleteBouquet removes a bouquet from the catalog
func (s *CatalogService) DeleteBouquet(ctx context.Context, id int64) error {
	if err := s.bouquets.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError(fmt.Sprintf("Bouquet with ID %d not found", id))
		}
		return apperrors.NewInternalError("Failed to delete bouquet").WithCause(err)
	}

	s.logger.Info("Bouquet deleted", "bouquetID", id)
	return nil
}

func (s *CatalogService) bouquetWriteError(err error, b *models.Bouquet, message string) error {
	if errors.Is(err, repository.ErrInvalidReference) && b.CategoryID != nil {
		return categoryNotFoundError(*b.CategoryID)
	}
	return apperrors.NewInternalError(message).WithCause(err)
}

// ListCategories returns the active categories in display order
func (s *CatalogService) ListCategories(ctx context.Context) ([]*models.Category, error) {
	categories, err := s.categories.ListActive(ctx)

	if err != nil {
		return nil, apperrors.NewInternalError("Failed to list categories").WithCause(err)
	}

	return categories, nil
}

// CreateCategory adds a category, active unless the input says otherwise
func (s *CatalogService) CreateCategory(ctx context.Context, input CategoryInput) (*models.Category, error) {
	input.Name = strings.TrimSpace(input.Name)

	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	category := &models.Category{
		Name:        input.Name,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		SortOrder:   input.SortOrder,
		IsActive:    input.IsActive == nil || *input.IsActive,
	}

	if err := s.categories.Create(ctx, category); err != nil {
		return nil, apperrors.NewInternalError("Failed to create category").WithCause(err)
	}

	s.logger.Info("Category created", "categoryID", category.ID, "name", category.Name)
	return category, nil
}

// UpdateCategory applies the fields present in patch
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, patch models.CategoryPatch) (*models.Category, error) {
	category, err := s.categories.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("Category with ID %d not found", id))
		}
		return nil, apperrors.NewInternalError("Failed to get category").WithCause(err)
	}

	patch.Apply(category)
	category.Name = strings.TrimSpace(category.Name)

	if err := validateStruct(s.validate, categoryRules{Name: category.Name, ImageURL: category.ImageURL}); err != nil {
		return nil, err
	}

	if err := s.categories.Update(ctx, category); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("Category with ID %d not found", id))
		}
		return nil, apperrors.NewInternalError("Failed to update category").WithCause(err)
	}

	return category, nil
}

// DeleteCategory removes a category that no bouquet is filed under
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	count, err := s.categories.CountBouquets(ctx, id)

	if err != nil {
		return apperrors.NewInternalError("Failed to delete category").WithCause(err)
	}

	if count > 0 {
		return apperrors.NewConflictError(fmt.Sprintf("Category has %d bouquet(s), move or delete them first", count)).
			WithContext("bouquets", count)
	}

	if err := s.categories.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.NewNotFoundError(fmt.Sprintf("Category with ID %d not found", id))
		case errors.Is(err, repository.ErrInUse):
			// a bouquet was filed under it after the count
			return apperrors.NewConflictError("Category has bouquets, move or delete them first")
		default:
			return apperrors.NewInternalError("Failed to delete category").WithCause(err)
		}
	}

	s.logger.Info("Category deleted", "categoryID", id)
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return apperrors.NewValidationError(map[string]string{"price": "must not be negative"})
	}
	return nil
}

// categoryNotFoundError reports a bouquet that points at a missing category
func categoryNotFoundError(id int64) error {
	return apperrors.NewAppError(apperrors.ErrReferenceNotFound,
		fmt.Sprintf("Category with ID %d not found", id), http.StatusUnprocessableEntity, false).
		WithContext("category_id", id)
}
