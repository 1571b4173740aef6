// Package auth guards the admin endpoints with HMAC signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaidashi/flower-shop-api/pkg/logger"
	"github.com/vaidashi/flower-shop-api/pkg/middleware"
)

// RoleAdmin is the only role allowed on admin routes
const RoleAdmin = "admin"

const clockSkew = 30 * time.Second

// Claims are the JWT claims of an admin token
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// Authenticator issues and verifies admin tokens
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	logger logger.Logger
}

// NewAuthenticator creates an Authenticator. A zero ttl defaults to 24h.
func NewAuthenticator(secret, issuer string, ttl time.Duration, logger logger.Logger) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// IssueToken mints a signed admin token for subject
func (a *Authenticator) IssueToken(subject string, now time.Time) (string, time.Time, error) {
	expires := now.Add(a.ttl)

	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)

	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expires, nil
}

// Verify parses a token and checks signature, issuer, expiry and role
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	},
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	if claims.Role != RoleAdmin {
		return nil, errForbidden
	}

	return claims, nil
}

var errForbidden = errors.New("admin role required")

// RequireAdmin rejects requests without a valid admin bearer token
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")

		if !found || strings.TrimSpace(raw) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
			middleware.Reject(w, http.StatusUnauthorized, 0, "Missing bearer token")
			return
		}

		claims, err := a.Verify(strings.TrimSpace(raw))

		if err != nil {
			if errors.Is(err, errForbidden) {
				middleware.Reject(w, http.StatusForbidden, 0, "Admin access required")
				return
			}

			a.logger.Warn("Rejected admin token", "error", err, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			middleware.Reject(w, http.StatusUnauthorized, 0, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
	})
}

// ClaimsFromContext returns the verified claims stored by RequireAdmin
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}
