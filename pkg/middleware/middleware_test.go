package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimiterMiddleware_IPLimit(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 100,
		GlobalMaxRate:   100,
		GlobalMinRate:   10,
		GlobalThreshold: 0.7,
		IPMaxTokens:     1,
		IPRefillRate:    0.001,
	}, logger.NewNop())
	defer m.Stop()

	handler := m.Middleware(http.HandlerFunc(okHandler))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bouquets", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code)

	limited := send("10.0.0.1:5001")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	var body rejection
	require.NoError(t, json.Unmarshal(limited.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)

	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000").Code)
}

func TestRateLimiterMiddleware_ClientIP(t *testing.T) {
	m := &RateLimiterMiddleware{trustForwardedFor: true}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", m.clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", m.clientIP(req))

	m.trustForwardedFor = false
	assert.Equal(t, "::1", m.clientIP(req))
}

func TestEndpointRateLimiter_SharesBucketPerRoute(t *testing.T) {
	m := NewEndpointRateLimiterMiddleware(0, 0, logger.NewNop())
	m.SetLimit("PUT:/orders/{id}/status", 1, 0.001)

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/orders/{id}/status", okHandler).Methods(http.MethodPut)
	router.HandleFunc("/orders", okHandler).Methods(http.MethodGet)

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPut, "/orders/1/status"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPut, "/orders/2/status"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/orders"), "no default limit")
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/orders"))

	limits := m.GetAllLimits()
	require.Contains(t, limits, "PUT:/orders/{id}/status")
	assert.Equal(t, 1.0, limits["PUT:/orders/{id}/status"]["max_tokens"])

	m.Reset()
	assert.Equal(t, http.StatusOK, do(http.MethodPut, "/orders/3/status"))
}

func TestGracefulDegradation(t *testing.T) {
	gd := NewGracefulDegradation(DegradationConfig{
		EssentialPrefixes: []string{"/api/v1/health"},
		FailureThreshold:  2,
		ResetTimeout:      time.Hour,
	}, logger.NewNop())

	failing := gd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	call := func(path string) int {
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusInternalServerError, call("/api/v1/orders"))
	assert.Equal(t, http.StatusInternalServerError, call("/api/v1/orders"))
	assert.Equal(t, http.StatusServiceUnavailable, call("/api/v1/orders"))
	assert.Equal(t, http.StatusInternalServerError, call("/api/v1/health"), "essential paths bypass the breaker")
	assert.Equal(t, "open", gd.GetMetrics()["state"])

	gd.Reset()
	assert.Equal(t, http.StatusInternalServerError, call("/api/v1/orders"))
}
