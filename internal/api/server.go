package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/flower-shop-api/internal/auth"
	"github.com/vaidashi/flower-shop-api/internal/config"
	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/service"
	"github.com/vaidashi/flower-shop-api/pkg/circuitbreaker"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
	"github.com/vaidashi/flower-shop-api/pkg/metrics"
	"github.com/vaidashi/flower-shop-api/pkg/middleware"
)

// Version is reported by the health check
const Version = "1.0.0"

// createOrderEndpoint is the endpoint limiter key of POST /orders
const createOrderEndpoint = "POST:/api/v1/orders"

// OrderAPI is the order service as seen by the handlers
type OrderAPI interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput) (*service.CreateOrderResult, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, status string, page, limit int) (*service.OrderPage, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// CatalogAPI is the catalog service as seen by the handlers
type CatalogAPI interface {
	ListBouquets(ctx context.Context, q service.BouquetQuery) (*service.BouquetPage, error)
	GetBouquet(ctx context.Context, id int64) (*models.Bouquet, error)
	CreateBouquet(ctx context.Context, input service.BouquetInput) (*models.Bouquet, error)
	UpdateBouquet(ctx context.Context, id int64, patch models.BouquetPatch) (*models.Bouquet, error)
	DeleteBouquet(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]*models.Category, error)
	CreateCategory(ctx context.Context, input service.CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch models.CategoryPatch) (*models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// DeadLetterAdmin backs the dead letter admin endpoints
type DeadLetterAdmin interface {
	List(ctx context.Context, status *models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	Count(ctx context.Context, status *models.DeadLetterStatus) (int, error)
	GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error)
	Requeue(ctx context.Context, id int64) error
	MarkAsDiscarded(ctx context.Context, id int64, reason string) error
}

// IdempotencyStore remembers the outcome of keyed order requests
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// HealthChecker reports whether the database is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP layer routes to. Idempotency,
// Metrics, Health and PublishBreaker are optional.
type Dependencies struct {
	Orders         OrderAPI
	Catalog        CatalogAPI
	DeadLetters    DeadLetterAdmin
	Auth           *auth.Authenticator
	Idempotency    IdempotencyStore
	Metrics        *metrics.Metrics
	Health         HealthChecker
	PublishBreaker *circuitbreaker.CircuitBreaker
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server

	orders         OrderAPI
	catalog        CatalogAPI
	deadLetters    DeadLetterAdmin
	auth           *auth.Authenticator
	idempotency    IdempotencyStore
	metrics        *metrics.Metrics
	health         HealthChecker
	publishBreaker *circuitbreaker.CircuitBreaker

	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware
	gracefulDegradation *middleware.GracefulDegradation

	// background is nil when the server was built around injected dependencies
	background *background
}

// newServer wires the router around deps
func newServer(cfg *config.Config, logger logger.Logger, deps Dependencies) (*Server, error) {
	if deps.Orders == nil || deps.Catalog == nil || deps.DeadLetters == nil || deps.Auth == nil {
		return nil, errors.New("api: orders, catalog, dead letters and auth are required")
	}

	r := mux.NewRouter()

	degradation := middleware.DegradationConfig{
		EssentialPrefixes: []string{"/api/v1/orders", "/api/v1/admin", "/api/v1/health"},
	}
	if deps.Metrics != nil {
		degradation.OnStateChange = deps.Metrics.ObserveBreaker
	}

	endpointLimiter := middleware.NewEndpointRateLimiterMiddleware(0, 0, logger)
	if cfg.RateLimit.OrderMaxTokens > 0 {
		endpointLimiter.SetLimit(createOrderEndpoint, cfg.RateLimit.OrderMaxTokens, cfg.RateLimit.OrderRefillRate)
	}

	s := &Server{
		config: cfg,
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		orders:         deps.Orders,
		catalog:        deps.Catalog,
		deadLetters:    deps.DeadLetters,
		auth:           deps.Auth,
		idempotency:    deps.Idempotency,
		metrics:        deps.Metrics,
		health:         deps.Health,
		publishBreaker: deps.PublishBreaker,
		rateLimiter: middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
			GlobalMaxTokens:   cfg.RateLimit.GlobalMaxTokens,
			GlobalMaxRate:     cfg.RateLimit.GlobalMaxRate,
			GlobalMinRate:     cfg.RateLimit.GlobalMinRate,
			GlobalThreshold:   cfg.RateLimit.LoadThreshold,
			IPMaxTokens:       cfg.RateLimit.IPMaxTokens,
			IPRefillRate:      cfg.RateLimit.IPRefillRate,
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		}, logger),
		endpointRateLimiter: endpointLimiter,
		gracefulDegradation: middleware.NewGracefulDegradation(degradation, logger),
	}

	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the background workers and then serves HTTP until Shutdown
func (s *Server) Start() error {
	if s.background != nil {
		s.background.start(s.logger)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, then stops the workers and closes
// the connections they use
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.rateLimiter.Stop()

	if s.background != nil {
		s.background.stop(s.logger)
	}

	return err
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimiter.Middleware)
	api.Use(s.endpointRateLimiter.Middleware)
	api.Use(s.gracefulDegradation.Middleware)

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	// public storefront
	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/bouquets", s.getBouquetsHandler).Methods(http.MethodGet)
	api.HandleFunc("/bouquets/{id:[0-9]+}", s.getBouquetHandler).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.getCategoriesHandler).Methods(http.MethodGet)

	admin := s.auth.RequireAdmin
	api.Handle("/orders", admin(http.HandlerFunc(s.getOrdersHandler))).Methods(http.MethodGet)
	api.Handle("/orders/{id:[0-9]+}", admin(http.HandlerFunc(s.getOrderByIDHandler))).Methods(http.MethodGet)
	api.Handle("/orders/{id:[0-9]+}/status", admin(http.HandlerFunc(s.updateOrderStatusHandler))).Methods(http.MethodPut)
	api.Handle("/orders/{id:[0-9]+}", admin(http.HandlerFunc(s.deleteOrderHandler))).Methods(http.MethodDelete)

	api.Handle("/bouquets", admin(http.HandlerFunc(s.createBouquetHandler))).Methods(http.MethodPost)
	api.Handle("/bouquets/{id:[0-9]+}", admin(http.HandlerFunc(s.updateBouquetHandler))).Methods(http.MethodPut)
	api.Handle("/bouquets/{id:[0-9]+}", admin(http.HandlerFunc(s.deleteBouquetHandler))).Methods(http.MethodDelete)
	api.Handle("/categories", admin(http.HandlerFunc(s.createCategoryHandler))).Methods(http.MethodPost)
	api.Handle("/categories/{id:[0-9]+}", admin(http.HandlerFunc(s.updateCategoryHandler))).Methods(http.MethodPut)
	api.Handle("/categories/{id:[0-9]+}", admin(http.HandlerFunc(s.deleteCategoryHandler))).Methods(http.MethodDelete)

	// operations
	ops := api.PathPrefix("/admin").Subrouter()
	ops.Use(s.auth.RequireAdmin)
	ops.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	ops.HandleFunc("/dead-letters/{id:[0-9]+}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	ops.HandleFunc("/dead-letters/{id:[0-9]+}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
	ops.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	ops.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
	ops.HandleFunc("/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)
	ops.HandleFunc("/rate-limits", s.setEndpointRateLimitHandler).Methods(http.MethodPut)
	ops.HandleFunc("/rate-limits/reset", s.resetRateLimitsHandler).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusNotFound, "Route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// statusRecorder captures the response status for the request log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
