package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/flower-shop-api/pkg/circuitbreaker"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while the API keeps failing
type GracefulDegradation struct {
	breaker   *circuitbreaker.CircuitBreaker
	essential []string
	logger    logger.Logger
}

// DegradationConfig configures GracefulDegradation
type DegradationConfig struct {
	// EssentialPrefixes are path prefixes that are never shed
	EssentialPrefixes []string
	FailureThreshold  int64
	ResetTimeout      time.Duration
	HalfOpenMaxCalls  int64
	OnStateChange     func(name string, from, to circuitbreaker.State)
}

// NewGracefulDegradation creates a new graceful degradation middleware
func NewGracefulDegradation(cfg DegradationConfig, logger logger.Logger) *GracefulDegradation {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 10
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = 5
	}

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "api",
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		OnStateChange:    cfg.OnStateChange,
	})

	return &GracefulDegradation{
		breaker:   breaker,
		essential: cfg.EssentialPrefixes,
		logger:    logger,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gd.isEssential(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())
			Reject(w, http.StatusServiceUnavailable, 30, "Service is temporarily unavailable. Please try again later.")
			return
		}

		wrapped := newStatusCodeWriter(w)
		next.ServeHTTP(wrapped, r)

		switch {
		case wrapped.statusCode >= 500:
			gd.breaker.Failure()
		case wrapped.statusCode < 400:
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essential {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Breaker exposes the underlying breaker for the admin endpoints
func (gd *GracefulDegradation) Breaker() *circuitbreaker.CircuitBreaker {
	return gd.breaker
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// Reset closes the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
}
