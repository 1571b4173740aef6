package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

const secret = "test-secret"

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(secret, "flower-shop", time.Hour, logger.NewNop())
	require.NoError(t, err)
	return a
}

func protected(a *Authenticator) http.Handler {
	return a.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(claims.Subject))
	}))
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAdmin_AcceptsIssuedToken(t *testing.T) {
	a := newAuth(t)

	token, expires, err := a.IssueToken("ops", time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Second)

	rec := call(protected(a), token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())
}

func TestRequireAdmin_Rejections(t *testing.T) {
	a := newAuth(t)

	expired, _, err := a.IssueToken("ops", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	other, err := NewAuthenticator("another-secret", "flower-shop", time.Hour, logger.NewNop())
	require.NoError(t, err)
	forged, _, err := other.IssueToken("ops", time.Now())
	require.NoError(t, err)

	wrongIssuer, err := NewAuthenticator(secret, "someone-else", time.Hour, logger.NewNop())
	require.NoError(t, err)
	foreign, _, err := wrongIssuer.IssueToken("ops", time.Now())
	require.NoError(t, err)

	customer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "flower-shop",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong secret", forged, http.StatusUnauthorized},
		{"wrong issuer", foreign, http.StatusUnauthorized},
		{"not admin", customer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(protected(a), tt.token)

			assert.Equal(t, tt.status, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator("", "flower-shop", 0, logger.NewNop())
	assert.Error(t, err)
}
