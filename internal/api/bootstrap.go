package api

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vaidashi/flower-shop-api/internal/auth"
	"github.com/vaidashi/flower-shop-api/internal/config"
	"github.com/vaidashi/flower-shop-api/internal/database"
	"github.com/vaidashi/flower-shop-api/internal/handlers"
	"github.com/vaidashi/flower-shop-api/internal/idempotency"
	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/outbox"
	"github.com/vaidashi/flower-shop-api/internal/repository"
	"github.com/vaidashi/flower-shop-api/internal/service"
	"github.com/vaidashi/flower-shop-api/pkg/circuitbreaker"
	"github.com/vaidashi/flower-shop-api/pkg/kafka"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
	"github.com/vaidashi/flower-shop-api/pkg/metrics"
	"github.com/vaidashi/flower-shop-api/pkg/retry"
)

// background owns the workers and connections started with the server
type background struct {
	db                  *database.Database
	redis               *redis.Client
	outboxProcessor     *outbox.Processor
	deadLetterProcessor *outbox.DeadLetterProcessor
	kafkaProducer       *kafka.Producer
	kafkaConsumer       *kafka.Consumer
}

func (b *background) start(logger logger.Logger) {
	b.outboxProcessor.Start()
	b.deadLetterProcessor.Start()

	if b.kafkaConsumer != nil {
		if err := b.kafkaConsumer.Start(); err != nil {
			// notifications are not on the order path
			logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}
}

// stop releases everything in reverse order of creation. It is safe on a
// partially built background.
func (b *background) stop(logger logger.Logger) {
	if b.outboxProcessor != nil {
		b.outboxProcessor.Stop()
	}
	if b.deadLetterProcessor != nil {
		b.deadLetterProcessor.Stop()
	}

	if b.kafkaConsumer != nil {
		if err := b.kafkaConsumer.Stop(); err != nil {
			logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	if b.kafkaProducer != nil {
		if err := b.kafkaProducer.Close(); err != nil {
			logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Error("Error closing Redis connection", "error", err)
		}
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			logger.Error("Error closing database connection", "error", err)
		}
	}
}

// NewServer connects to the database, applies migrations and builds the
// services, the outbox workers and the router. Kafka is used when
// KAFKA_ENABLED is set, Redis idempotency when REDIS_ADDR is set.
func NewServer(cfg *config.Config, logger logger.Logger) (server *Server, err error) {
	bg := &background{}

	defer func() {
		if err != nil {
			bg.stop(logger)
		}
	}()

	bg.db, err = database.New(cfg, logger)

	if err != nil {
		return nil, err
	}

	if err = bg.db.RunMigrations(cfg.DB.Name); err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.NewRegistry())

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(bg.db, logger)
	bouquetRepo := repository.NewBouquetRepository(bg.db, logger)
	categoryRepo := repository.NewCategoryRepository(bg.db, logger)
	outboxRepo := repository.NewOutboxRepository(bg.db, logger)
	dlqRepo := repository.NewDeadLetterRepository(bg.db, logger)

	publishBreaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "kafka-publish",
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
		OnStateChange:    m.ObserveBreaker,
	})

	eventHandler, err := newEventHandler(cfg, bg, publishBreaker, logger)

	if err != nil {
		return nil, err
	}

	bg.outboxProcessor = outbox.NewProcessor(outboxRepo, dlqRepo, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
		Observer:        m.OutboxResult,
	}, logger)

	bg.deadLetterProcessor = outbox.NewDeadLetterProcessor(dlqRepo, logger, &outbox.DeadLetterProcessorConfig{
		PollingInterval: cfg.Outbox.DLQPollInterval,
		BatchSize:       5,
		MaxRetries:      cfg.Outbox.DLQMaxRetries,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 1 * time.Second,
			MaxInterval:     2 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	})

	for _, eventType := range []string{models.EventOrderCreated, models.EventOrderStatusChanged} {
		bg.outboxProcessor.RegisterHandler(eventType, eventHandler)
		bg.deadLetterProcessor.RegisterHandler(eventType, eventHandler)
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, logger)

	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Orders:         service.NewOrderService(orderRepo, bouquetRepo, outboxRepo, m, logger),
		Catalog:        service.NewCatalogService(bouquetRepo, categoryRepo, logger),
		DeadLetters:    dlqRepo,
		Auth:           authenticator,
		Metrics:        m,
		Health:         bg.db,
		PublishBreaker: publishBreaker,
	}

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		bg.redis, err = idempotency.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()

		if err != nil {
			return nil, err
		}

		deps.Idempotency = idempotency.NewStore(bg.redis, cfg.Redis.IdempotencyTTL)
		logger.Info("Idempotency keys enabled", "redis", cfg.Redis.Addr)
	}

	server, err = newServer(cfg, logger, deps)

	if err != nil {
		return nil, err
	}

	server.background = bg
	return server, nil
}

// newEventHandler publishes outbox events to Kafka and starts the
// notification consumer. With Kafka disabled events are only logged.
func newEventHandler(cfg *config.Config, bg *background, breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) (outbox.MessageHandler, error) {
	if !cfg.Kafka.Enabled {
		logger.Warn("Kafka is disabled, outbox events will only be logged")
		return outbox.NewLoggingHandler(logger), nil
	}

	var err error

	bg.kafkaProducer, err = kafka.NewProducer(&kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: "flower-shop-api",
	}, logger)

	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	bg.kafkaConsumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topics:        []string{cfg.Kafka.OrdersTopic},
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, logger)

	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	bg.kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, handlers.NewOrderEventsHandler(logger))

	return outbox.NewKafkaHandler(bg.kafkaProducer, cfg.Kafka.OrdersTopic, breaker, logger), nil
}
