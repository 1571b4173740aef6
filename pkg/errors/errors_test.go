package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaidashi/flower-shop-api/pkg/errors"
)

func TestNewReferenceNotFoundError(t *testing.T) {
	err := apperrors.NewReferenceNotFoundError(9999)

	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	assert.Equal(t, "Bouquet with ID 9999 not found", err.Error())
	assert.Equal(t, int64(9999), err.Context["bouquet_id"])
	assert.True(t, stderrors.Is(err, apperrors.ErrReferenceNotFound))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestAppError_WithCauseKeepsSentinel(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := apperrors.NewInternalError("Failed to create order").WithCause(cause)

	assert.True(t, stderrors.Is(err, apperrors.ErrInternal))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "Failed to create order", err.Error())
	assert.True(t, apperrors.IsRetryable(err))
}

func TestAsAppError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", apperrors.NewConflictError("bad transition"))

	appErr, ok := apperrors.AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)

	_, ok = apperrors.AsAppError(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestNewValidationError(t *testing.T) {
	err := apperrors.NewValidationError(map[string]string{"customer_name": "is required"})

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "is required", err.Details["customer_name"])
	assert.True(t, stderrors.Is(err, apperrors.ErrInvalidInput))
}

func TestIsRetryable_Sentinels(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(fmt.Errorf("x: %w", apperrors.ErrTimeout)))
	assert.False(t, apperrors.IsRetryable(apperrors.ErrNotFound))
}
