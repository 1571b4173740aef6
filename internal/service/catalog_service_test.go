package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/repository"
	apperrors "github.com/vaidashi/flower-shop-api/pkg/errors"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

type MockBouquetStore struct {
	mock.Mock
}

func (m *MockBouquetStore) List(ctx context.Context, filter models.BouquetFilter) ([]*models.Bouquet, error) {
	args := m.Called(ctx, filter)
	bouquets, _ := args.Get(0).([]*models.Bouquet)
	return bouquets, args.Error(1)
}

func (m *MockBouquetStore) Count(ctx context.Context, filter models.BouquetFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockBouquetStore) GetByID(ctx context.Context, id int64) (*models.Bouquet, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Bouquet)
	return b, args.Error(1)
}

func (m *MockBouquetStore) IncrementViewCount(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBouquetStore) Create(ctx context.Context, b *models.Bouquet) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockBouquetStore) Update(ctx context.Context, b *models.Bouquet) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockBouquetStore) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type MockCategoryStore struct {
	mock.Mock
}

func (m *MockCategoryStore) ListActive(ctx context.Context) ([]*models.Category, error) {
	args := m.Called(ctx)
	categories, _ := args.Get(0).([]*models.Category)
	return categories, args.Error(1)
}

func (m *MockCategoryStore) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Category)
	return c, args.Error(1)
}

func (m *MockCategoryStore) Create(ctx context.Context, c *models.Category) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCategoryStore) Update(ctx context.Context, c *models.Category) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCategoryStore) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCategoryStore) CountBouquets(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func newCatalogService() (*CatalogService, *MockBouquetStore, *MockCategoryStore) {
	bouquets := &MockBouquetStore{}
	categories := &MockCategoryStore{}
	return NewCatalogService(bouquets, categories, logger.NewNop()), bouquets, categories
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	return appErr.StatusCode
}

func TestListBouquets_Defaults(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()

	filter := models.BouquetFilter{
		Search:        "rose",
		AvailableOnly: true,
		SortBy:        models.BouquetSortNameAsc,
		Limit:         12,
		Offset:        12,
	}
	bouquets.On("List", ctx, filter).Return([]*models.Bouquet{roses()}, nil)
	bouquets.On("Count", ctx, filter).Return(13, nil)

	page, err := svc.ListBouquets(ctx, BouquetQuery{Search: "rose", Page: 2})

	require.NoError(t, err)
	assert.Len(t, page.Bouquets, 1)
	assert.Equal(t, Pagination{Page: 2, Limit: 12, Total: 13, Pages: 2}, page.Pagination)
}

func TestGetBouquet_CountsView(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()

	b := roses()
	b.ViewCount = 4
	bouquets.On("GetByID", ctx, int64(1)).Return(b, nil)
	bouquets.On("IncrementViewCount", ctx, int64(1)).Return(nil)
	bouquets.On("GetByID", ctx, int64(2)).Return(nil, repository.ErrNotFound)

	got, err := svc.GetBouquet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ViewCount)

	_, err = svc.GetBouquet(ctx, 2)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestCreateBouquet(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()

	bouquets.On("Create", ctx, mock.MatchedBy(func(b *models.Bouquet) bool {
		return b.Name == "Peonies" && b.IsAvailable && b.DiscountPercentage == 15
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Bouquet).ID = 10
	}).Return(nil)

	created, err := svc.CreateBouquet(ctx, BouquetInput{
		Name:               "  Peonies ",
		Price:              decimal.RequireFromString("45.50"),
		DiscountPercentage: 15,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(10), created.ID)
	bouquets.AssertExpectations(t)
}

func TestCreateBouquet_Rejects(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()
	category := int64(99)

	bouquets.On("Create", ctx, mock.Anything).Return(repository.ErrInvalidReference)

	_, err := svc.CreateBouquet(ctx, BouquetInput{Name: "", Price: decimal.NewFromInt(1)})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.CreateBouquet(ctx, BouquetInput{Name: "Lilies", Price: decimal.NewFromInt(-1)})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.CreateBouquet(ctx, BouquetInput{Name: "Lilies", Price: decimal.NewFromInt(1), DiscountPercentage: 101})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.CreateBouquet(ctx, BouquetInput{Name: "Lilies", Price: decimal.NewFromInt(1), CategoryID: &category})
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
	assert.ErrorIs(t, err, apperrors.ErrReferenceNotFound)
}

func TestUpdateBouquet_AppliesExplicitZeroValues(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()

	existing := tulips()
	existing.IsFeatured = true
	bouquets.On("GetByID", ctx, int64(2)).Return(existing, nil)
	bouquets.On("Update", ctx, existing).Return(nil)

	patch := models.BouquetPatch{
		DiscountPercentage: models.Some(0),
		IsFeatured:         models.Some(false),
	}

	updated, err := svc.UpdateBouquet(ctx, 2, patch)

	require.NoError(t, err)
	assert.Equal(t, 0, updated.DiscountPercentage)
	assert.False(t, updated.IsFeatured)
	assert.Equal(t, "Tulips", updated.Name)
}

func TestUpdateBouquet_ValidatesMergedResult(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()

	bouquets.On("GetByID", ctx, int64(2)).Return(tulips(), nil)

	_, err := svc.UpdateBouquet(ctx, 2, models.BouquetPatch{Name: models.Some(" ")})

	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	bouquets.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestDeleteBouquet_NotFound(t *testing.T) {
	svc, bouquets, _ := newCatalogService()
	ctx := context.Background()

	bouquets.On("Delete", ctx, int64(3)).Return(repository.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, statusOf(t, svc.DeleteBouquet(ctx, 3)))
}

func TestCategories(t *testing.T) {
	svc, _, categories := newCatalogService()
	ctx := context.Background()

	categories.On("Create", ctx, mock.MatchedBy(func(c *models.Category) bool {
		return c.Name == "Seasonal" && !c.IsActive
	})).Return(nil)

	inactive := false
	created, err := svc.CreateCategory(ctx, CategoryInput{Name: "Seasonal", IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, created.IsActive)

	existing := &models.Category{ID: 4, Name: "Classic", SortOrder: 3, IsActive: true}
	categories.On("GetByID", ctx, int64(4)).Return(existing, nil)
	categories.On("Update", ctx, existing).Return(nil)

	updated, err := svc.UpdateCategory(ctx, 4, models.CategoryPatch{SortOrder: models.Some(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.SortOrder)

	categories.On("GetByID", ctx, int64(5)).Return(nil, repository.ErrNotFound)
	_, err = svc.UpdateCategory(ctx, 5, models.CategoryPatch{})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestDeleteCategory(t *testing.T) {
	svc, _, categories := newCatalogService()
	ctx := context.Background()

	categories.On("CountBouquets", ctx, int64(1)).Return(2, nil)
	categories.On("CountBouquets", ctx, int64(2)).Return(0, nil)
	categories.On("Delete", ctx, int64(2)).Return(nil)
	categories.On("CountBouquets", ctx, int64(3)).Return(0, nil)
	categories.On("Delete", ctx, int64(3)).Return(repository.ErrInUse)

	assert.Equal(t, http.StatusConflict, statusOf(t, svc.DeleteCategory(ctx, 1)))
	assert.NoError(t, svc.DeleteCategory(ctx, 2))
	assert.Equal(t, http.StatusConflict, statusOf(t, svc.DeleteCategory(ctx, 3)))
	categories.AssertNotCalled(t, "Delete", ctx, int64(1))
}
