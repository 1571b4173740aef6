package models_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/flower-shop-api/internal/models"
)

func TestOptional_PresentZeroValuesAreApplied(t *testing.T) {
	var patch models.BouquetPatch
	body := `{"discount_percentage": 0, "description": "", "is_available": false}`
	require.NoError(t, json.Unmarshal([]byte(body), &patch))

	b := &models.Bouquet{
		Name:               "Roses",
		Description:        "Red roses",
		Price:              decimal.NewFromInt(3000),
		DiscountPercentage: 20,
		IsAvailable:        true,
	}
	patch.Apply(b)

	assert.Equal(t, "Roses", b.Name, "absent field must be kept")
	assert.Equal(t, "", b.Description)
	assert.Equal(t, 0, b.DiscountPercentage)
	assert.False(t, b.IsAvailable)
	assert.True(t, decimal.NewFromInt(3000).Equal(b.Price))
}

func TestOptional_NullClearsPointerField(t *testing.T) {
	categoryID := int64(3)
	b := &models.Bouquet{CategoryID: &categoryID}

	var patch models.BouquetPatch
	require.NoError(t, json.Unmarshal([]byte(`{"category_id": null}`), &patch))
	assert.True(t, patch.CategoryID.Set)

	patch.Apply(b)
	assert.Nil(t, b.CategoryID)
}

func TestOptional_AbsentFieldsAreNotSet(t *testing.T) {
	var patch models.CategoryPatch
	require.NoError(t, json.Unmarshal([]byte(`{"sort_order": 0}`), &patch))

	assert.False(t, patch.Name.Set)
	assert.False(t, patch.IsActive.Set)
	assert.True(t, patch.SortOrder.Set)

	c := &models.Category{Name: "Wedding", SortOrder: 5, IsActive: true}
	patch.Apply(c)

	assert.Equal(t, "Wedding", c.Name)
	assert.Equal(t, 0, c.SortOrder)
	assert.True(t, c.IsActive)
}

func TestOptional_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		A models.Optional[int] `json:"a"`
		B models.Optional[int] `json:"b"`
	}{A: models.Some(0)})
	require.NoError(t, err)

	assert.JSONEq(t, `{"a":0,"b":null}`, string(out))
}
