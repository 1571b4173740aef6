package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/repository"
	"github.com/vaidashi/flower-shop-api/pkg/circuitbreaker"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
	"github.com/vaidashi/flower-shop-api/pkg/retry"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	msgs, _ := args.Get(0).([]*models.OutboxMessage)
	return msgs, args.Error(1)
}

func (m *mockStore) MarkAsProcessing(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) MarkAsCompleted(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	return m.Called(ctx, id, errorMessage).Error(0)
}

type mockSink struct{ mock.Mock }

func (m *mockSink) MoveFromOutbox(ctx context.Context, message *models.DeadLetterMessage) error {
	return m.Called(ctx, message).Error(0)
}

type mockHandler struct{ mock.Mock }

func (m *mockHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	return m.Called(ctx, message).Error(0)
}

type results map[string]int

func (r results) observe(_ string, result string) { r[result]++ }

func newTestProcessor(store Store, sink DeadLetterSink, maxRetries int, r results) *Processor {
	return NewProcessor(store, sink, ProcessorConfig{
		PollingInterval: time.Second,
		BatchSize:       5,
		MaxRetries:      maxRetries,
		Observer:        r.observe,
	}, logger.NewNop())
}

func pendingMessage(id int64, attempts int) *models.OutboxMessage {
	return &models.OutboxMessage{
		ID:                 id,
		AggregateType:      models.AggregateOrder,
		AggregateID:        "42",
		EventType:          models.EventOrderCreated,
		Payload:            []byte(`{"event_type":"order_created"}`),
		ProcessingAttempts: attempts,
		Status:             models.OutboxStatusPending,
	}
}

func TestNewProcessor_DefaultsNonPositiveInterval(t *testing.T) {
	p := NewProcessor(&mockStore{}, &mockSink{}, ProcessorConfig{PollingInterval: 0}, logger.NewNop())
	assert.Equal(t, 5*time.Second, p.pollingInterval)

	assert.NotPanics(t, func() {
		p.Start()
		p.Stop()
	})

	d := NewDeadLetterProcessor(&mockDeadLetterStore{}, logger.NewNop(), &DeadLetterProcessorConfig{PollingInterval: -time.Second})
	assert.Equal(t, 30*time.Second, d.pollingInterval)

	assert.NotPanics(t, func() {
		d.Start()
		d.Stop()
	})
}

func TestProcessor_DeliversAndCompletes(t *testing.T) {
	store, sink, handler := &mockStore{}, &mockSink{}, &mockHandler{}
	r := results{}
	p := newTestProcessor(store, sink, 3, r)
	p.RegisterHandler(models.EventOrderCreated, handler)

	msg := pendingMessage(1, 0)
	store.On("GetPendingMessages", mock.Anything, 5).Return([]*models.OutboxMessage{msg}, nil)
	store.On("MarkAsProcessing", mock.Anything, int64(1)).Return(nil)
	handler.On("HandleMessage", mock.Anything, msg).Return(nil)
	store.On("MarkAsCompleted", mock.Anything, int64(1)).Return(nil)

	require.NoError(t, p.processBatch(context.Background()))

	store.AssertExpectations(t)
	handler.AssertExpectations(t)
	sink.AssertNotCalled(t, "MoveFromOutbox", mock.Anything, mock.Anything)
	assert.Equal(t, 1, r[ResultPublished])
}

func TestProcessor_FailureGoesBackToPending(t *testing.T) {
	store, sink, handler := &mockStore{}, &mockSink{}, &mockHandler{}
	r := results{}
	p := newTestProcessor(store, sink, 3, r)
	p.RegisterHandler(models.EventOrderCreated, handler)

	msg := pendingMessage(2, 0)
	store.On("MarkAsProcessing", mock.Anything, int64(2)).Return(nil)
	handler.On("HandleMessage", mock.Anything, msg).Return(errors.New("broker down"))
	store.On("MarkForRetry", mock.Anything, int64(2), "broker down").Return(nil)

	err := p.processMessage(context.Background(), msg)

	assert.EqualError(t, err, "broker down")
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkAsCompleted", mock.Anything, mock.Anything)
	assert.Equal(t, 1, r[ResultRetry])
}

func TestProcessor_LastAttemptMovesToDeadLetters(t *testing.T) {
	store, sink, handler := &mockStore{}, &mockSink{}, &mockHandler{}
	r := results{}
	p := newTestProcessor(store, sink, 3, r)
	p.RegisterHandler(models.EventOrderCreated, handler)

	msg := pendingMessage(3, 2)
	store.On("MarkAsProcessing", mock.Anything, int64(3)).Return(nil)
	handler.On("HandleMessage", mock.Anything, msg).Return(errors.New("broker down"))
	sink.On("MoveFromOutbox", mock.Anything, mock.MatchedBy(func(dl *models.DeadLetterMessage) bool {
		return dl.OriginalMessageID == 3 && dl.ErrorMessage == "broker down" && dl.Status == models.DeadLetterStatusPending
	})).Return(nil)

	err := p.processMessage(context.Background(), msg)

	assert.Error(t, err)
	sink.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkForRetry", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, r[ResultDeadLettered])
}

func TestProcessor_UnknownEventTypeIsDeadLettered(t *testing.T) {
	store, sink := &mockStore{}, &mockSink{}
	p := newTestProcessor(store, sink, 3, results{})

	msg := pendingMessage(4, 0)
	msg.EventType = "bouquet_restocked"
	store.On("MarkAsProcessing", mock.Anything, int64(4)).Return(nil)
	sink.On("MoveFromOutbox", mock.Anything, mock.MatchedBy(func(dl *models.DeadLetterMessage) bool {
		return dl.FailureReason == "no handler"
	})).Return(nil)

	assert.Error(t, p.processMessage(context.Background(), msg))
	sink.AssertExpectations(t)
}

func TestProcessor_SkipsMessageClaimedElsewhere(t *testing.T) {
	store, sink, handler := &mockStore{}, &mockSink{}, &mockHandler{}
	p := newTestProcessor(store, sink, 3, results{})
	p.RegisterHandler(models.EventOrderCreated, handler)

	msg := pendingMessage(5, 0)
	store.On("MarkAsProcessing", mock.Anything, int64(5)).Return(repository.ErrNotFound)

	assert.NoError(t, p.processMessage(context.Background(), msg))
	handler.AssertNotCalled(t, "HandleMessage", mock.Anything, mock.Anything)
}

func TestProcessor_BatchError(t *testing.T) {
	store := &mockStore{}
	p := newTestProcessor(store, &mockSink{}, 3, results{})

	store.On("GetPendingMessages", mock.Anything, 5).Return(nil, repository.ErrDatabase)

	assert.ErrorIs(t, p.processBatch(context.Background()), repository.ErrDatabase)
}

type mockDeadLetterStore struct{ mock.Mock }

func (m *mockDeadLetterStore) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	args := m.Called(ctx, limit)
	msgs, _ := args.Get(0).([]*models.DeadLetterMessage)
	return msgs, args.Error(1)
}

func (m *mockDeadLetterStore) MarkAsRetrying(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDeadLetterStore) MarkAsResolved(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDeadLetterStore) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *mockDeadLetterStore) ResetToRetry(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func newTestDeadLetterProcessor(store DeadLetterStore) *DeadLetterProcessor {
	return NewDeadLetterProcessor(store, logger.NewNop(), &DeadLetterProcessorConfig{
		PollingInterval: time.Second,
		BatchSize:       5,
		MaxRetries:      2,
		BackoffStrategy: &retry.ConstantBackoff{Interval: time.Millisecond},
	})
}

func deadLetter(id int64) *models.DeadLetterMessage {
	return &models.DeadLetterMessage{
		ID:                id,
		OriginalMessageID: 10,
		AggregateType:     models.AggregateOrder,
		AggregateID:       "42",
		EventType:         models.EventOrderStatusChanged,
		Payload:           []byte(`{}`),
		Status:            models.DeadLetterStatusPending,
	}
}

func TestDeadLetterProcessor_Resolves(t *testing.T) {
	store, handler := &mockDeadLetterStore{}, &mockHandler{}
	p := newTestDeadLetterProcessor(store)
	p.RegisterHandler(models.EventOrderStatusChanged, handler)

	store.On("GetPendingMessages", mock.Anything, 5).Return([]*models.DeadLetterMessage{deadLetter(7)}, nil)
	store.On("MarkAsRetrying", mock.Anything, int64(7)).Return(nil)
	handler.On("HandleMessage", mock.Anything, mock.MatchedBy(func(m *models.OutboxMessage) bool {
		return m.ID == 10 && m.AggregateID == "42"
	})).Return(errors.New("flaky")).Once()
	handler.On("HandleMessage", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("MarkAsResolved", mock.Anything, int64(7)).Return(nil)

	require.NoError(t, p.processBatch(context.Background()))

	store.AssertExpectations(t)
	handler.AssertNumberOfCalls(t, "HandleMessage", 2)
}

func TestDeadLetterProcessor_DiscardsAfterRetries(t *testing.T) {
	store, handler := &mockDeadLetterStore{}, &mockHandler{}
	p := newTestDeadLetterProcessor(store)
	p.RegisterHandler(models.EventOrderStatusChanged, handler)

	store.On("MarkAsRetrying", mock.Anything, int64(8)).Return(nil)
	handler.On("HandleMessage", mock.Anything, mock.Anything).Return(errors.New("still down"))
	store.On("MarkAsDiscarded", mock.Anything, int64(8), mock.AnythingOfType("string")).Return(nil)

	err := p.processMessage(context.Background(), deadLetter(8))

	assert.Error(t, err)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkAsResolved", mock.Anything, mock.Anything)
	handler.AssertNumberOfCalls(t, "HandleMessage", 2)
}

func TestDeadLetterProcessor_CancelResetsMessage(t *testing.T) {
	store, handler := &mockDeadLetterStore{}, &mockHandler{}
	p := newTestDeadLetterProcessor(store)
	p.RegisterHandler(models.EventOrderStatusChanged, handler)

	ctx, cancel := context.WithCancel(context.Background())

	store.On("MarkAsRetrying", mock.Anything, int64(9)).Return(nil)
	handler.On("HandleMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(errors.New("interrupted"))
	store.On("ResetToRetry", mock.Anything, int64(9)).Return(nil)

	err := p.processMessage(ctx, deadLetter(9))

	assert.ErrorIs(t, err, context.Canceled)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkAsDiscarded", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeadLetterProcessor_NoHandler(t *testing.T) {
	store := &mockDeadLetterStore{}
	p := newTestDeadLetterProcessor(store)

	store.On("MarkAsRetrying", mock.Anything, int64(11)).Return(nil)
	store.On("MarkAsDiscarded", mock.Anything, int64(11), "No handler available").Return(nil)

	assert.Error(t, p.processMessage(context.Background(), deadLetter(11)))
	store.AssertExpectations(t)
}

type recordingPublisher struct {
	err     error
	calls   int
	key     string
	headers map[string]string
}

func (p *recordingPublisher) SendMessage(_ context.Context, _ string, key string, _ []byte, headers map[string]string) error {
	p.calls++
	p.key = key
	p.headers = headers
	return p.err
}

func TestKafkaHandler_PublishesWithHeaders(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewKafkaHandler(pub, "flower-shop.orders", nil, logger.NewNop())

	require.NoError(t, h.HandleMessage(context.Background(), pendingMessage(1, 0)))

	assert.Equal(t, "42", pub.key)
	assert.Equal(t, models.EventOrderCreated, pub.headers["event_type"])
	assert.Equal(t, "42", pub.headers["aggregate_id"])
}

func TestKafkaHandler_BreakerOpensOnFailures(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no brokers")}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "kafka",
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})
	h := NewKafkaHandler(pub, "flower-shop.orders", breaker, logger.NewNop())
	ctx := context.Background()

	assert.Error(t, h.HandleMessage(ctx, pendingMessage(1, 0)))
	assert.Error(t, h.HandleMessage(ctx, pendingMessage(1, 0)))

	err := h.HandleMessage(ctx, pendingMessage(1, 0))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, pub.calls)
}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHandler(logger.NewLogger("info", logger.WithOutput(&buf)))

	msg, err := models.NewOrderCreatedEvent(&models.Order{
		ID:          42,
		OrderNumber: "ORD-42",
		TotalAmount: decimal.RequireFromString("1800"),
		Items:       []*models.OrderItem{{Quantity: 2}, {Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), msg))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ORD-42", line["orderNumber"])
	assert.Equal(t, "1800.00", line["total"])
	assert.EqualValues(t, 3, line["items"])

	buf.Reset()
	changed, err := models.NewOrderStatusChangedEvent(&models.Order{ID: 42, OrderNumber: "ORD-42", Status: models.OrderStatusConfirmed}, models.OrderStatusPending)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), changed))
	assert.Contains(t, buf.String(), `"newStatus":"confirmed"`)

	assert.Error(t, h.HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("{")}))
	assert.Error(t, h.HandleMessage(context.Background(), &models.OutboxMessage{
		EventType: models.EventOrderCreated,
		Payload:   []byte(`{"event_type":"order_created","data":"oops"}`),
	}))
}
