package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/vaidashi/flower-shop-api/pkg/logger"
	"github.com/vaidashi/flower-shop-api/pkg/ratelimit"
)

// RateLimiterMiddleware applies the global adaptive limit and the per client limit
type RateLimiterMiddleware struct {
	globalLimiter     *ratelimit.AdaptiveRateLimiter
	ipLimiter         *ratelimit.IPRateLimiter
	logger            logger.Logger
	trustForwardedFor bool
}

// RateLimiterConfig configures the rate limiter middleware
type RateLimiterConfig struct {
	GlobalMaxTokens   float64
	GlobalMaxRate     float64
	GlobalMinRate     float64
	GlobalThreshold   float64
	IPMaxTokens       float64
	IPRefillRate      float64
	TrustForwardedFor bool
}

// NewRateLimiterMiddleware creates a new rate limiter middleware
func NewRateLimiterMiddleware(cfg *RateLimiterConfig, logger logger.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		globalLimiter: ratelimit.NewAdaptiveRateLimiter(
			cfg.GlobalMaxTokens,
			cfg.GlobalMaxRate,
			cfg.GlobalMinRate,
			cfg.GlobalThreshold,
		),
		ipLimiter:         ratelimit.NewIPRateLimiter(cfg.IPMaxTokens, cfg.IPRefillRate),
		logger:            logger,
		trustForwardedFor: cfg.TrustForwardedFor,
	}
}

// Middleware returns a middleware function
func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.globalLimiter.Allow() {
			m.logger.Warn("Global rate limit exceeded", "method", r.Method, "path", r.URL.Path)
			Reject(w, http.StatusTooManyRequests, 10, "Global rate limit exceeded. Please try again later.")
			return
		}

		ip := m.clientIP(r)

		if !m.ipLimiter.Allow(ip) {
			m.logger.Warn("IP rate limit exceeded", "method", r.Method, "path", r.URL.Path, "ip", ip)
			Reject(w, http.StatusTooManyRequests, 60, "IP rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop when the proxy is trusted
func (m *RateLimiterMiddleware) clientIP(r *http.Request) string {
	if m.trustForwardedFor {
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			first, _, _ := strings.Cut(forwardedFor, ",")
			return strings.TrimSpace(first)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Stop stops the rate limiters
func (m *RateLimiterMiddleware) Stop() {
	m.globalLimiter.Stop()
	m.ipLimiter.Stop()
}

// Reset clears the global counters and every per client bucket
func (m *RateLimiterMiddleware) Reset() {
	m.globalLimiter.Reset()
	m.ipLimiter.Reset()
}

// GetMetrics returns metrics about rate limiting
func (m *RateLimiterMiddleware) GetMetrics() map[string]interface{} {
	metrics := m.globalLimiter.GetMetrics()
	metrics["tracked_clients"] = m.ipLimiter.Len()
	return metrics
}
