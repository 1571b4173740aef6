package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/repository"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Store is the outbox table as seen by the processor
type Store interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) error
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkForRetry(ctx context.Context, id int64, errorMessage string) error
}

// DeadLetterSink receives messages that exhausted their delivery attempts
type DeadLetterSink interface {
	MoveFromOutbox(ctx context.Context, message *models.DeadLetterMessage) error
}

// ResultObserver is told the outcome of every delivery attempt
type ResultObserver func(eventType, result string)

// Delivery results reported to a ResultObserver
const (
	ResultPublished    = "published"
	ResultRetry        = "retry"
	ResultDeadLettered = "dead_lettered"
)

// Processor polls the outbox table and hands pending messages to handlers
type Processor struct {
	outboxRepo      Store
	deadLetters     DeadLetterSink
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	observe         ResultObserver
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	// MaxRetries is the number of delivery attempts before a message is
	// moved to the dead letter table
	MaxRetries int
	Observer   ResultObserver
}

// NewProcessor creates a new Processor
func NewProcessor(outboxRepo Store, deadLetters DeadLetterSink, config ProcessorConfig, logger logger.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PollingInterval <= 0 {
		config.PollingInterval = 5 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.Observer == nil {
		config.Observer = func(string, string) {}
	}

	return &Processor{
		outboxRepo:      outboxRepo,
		deadLetters:     deadLetters,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		observe:         config.Observer,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlers[eventType] = handler
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize,
		"maxRetries", p.maxRetries)
}

// Stop stops the outbox processor and waits for the current batch
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

func (p *Processor) processOutbox() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(p.ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

func (p *Processor) processBatch(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, p.pollingInterval+30*time.Second)
	defer cancel()

	messages, err := p.outboxRepo.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages")
		return nil
	}

	p.logger.Info("Processing batch of outbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Error("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
		}
	}

	return nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	if err := p.outboxRepo.MarkAsProcessing(ctx, msg.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// claimed by another instance
			return nil
		}
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}

	attempt := msg.ProcessingAttempts + 1
	handler, exists := p.handlers[msg.EventType]

	if !exists {
		return p.deadLetter(ctx, msg, fmt.Sprintf("no handler registered for event type %s", msg.EventType), "no handler")
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		if attempt >= p.maxRetries {
			return p.deadLetter(ctx, msg, err.Error(), fmt.Sprintf("max retries (%d) exceeded", p.maxRetries))
		}

		p.logger.Warn("Message delivery failed, will retry", "error", err, "messageID", msg.ID, "attempt", attempt)
		p.observe(msg.EventType, ResultRetry)

		if markErr := p.outboxRepo.MarkForRetry(ctx, msg.ID, err.Error()); markErr != nil {
			return fmt.Errorf("failed to requeue message: %w", markErr)
		}
		return err
	}

	if err := p.outboxRepo.MarkAsCompleted(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.observe(msg.EventType, ResultPublished)
	p.logger.Info("Outbox message delivered",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

func (p *Processor) deadLetter(ctx context.Context, msg *models.OutboxMessage, errorMsg, reason string) error {
	p.logger.Error("Moving outbox message to dead letter queue",
		"messageID", msg.ID,
		"eventType", msg.EventType,
		"reason", reason,
		"error", errorMsg)

	if err := p.deadLetters.MoveFromOutbox(ctx, models.NewDeadLetterMessage(msg, errorMsg, reason)); err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}

	p.observe(msg.EventType, ResultDeadLettered)
	return fmt.Errorf("message %d dead-lettered: %s", msg.ID, reason)
}
