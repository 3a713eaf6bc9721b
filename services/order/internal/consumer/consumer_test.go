package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/reservation-order/pkg/kafka"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/events"
	"example.com/reservation-order/services/order/internal/testutil"
	"example.com/reservation-order/services/order/internal/transition"
)

// =============================================================================
// Моки
// =============================================================================

type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) ApplySignal(ctx context.Context, orderID string, sig domain.Signal) (*transition.Result, error) {
	args := m.Called(ctx, orderID, sig)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transition.Result), args.Error(1)
}

func message(topic, value string) *kafka.Message {
	return &kafka.Message{Topic: topic, Value: []byte(value), Headers: map[string]string{}}
}

// =============================================================================
// Тесты обработчика
// =============================================================================

func TestHandler(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		setupMock func(m *MockApplier)
		wantErr   error
	}{
		{
			name:    "сигнал применён",
			payload: `{"event_id":"e-1","data":{"order_id":"order-1"}}`,
			setupMock: func(m *MockApplier) {
				m.On("ApplySignal", mock.Anything, "order-1", domain.SignalPaymentCompleted).
					Return(&transition.Result{Order: &domain.Order{ID: "order-1"}, Outcome: transition.OutcomeTransitioned}, nil)
			},
		},
		{
			name:    "неизвестный заказ подтверждается",
			payload: `{"data":{"order_id":"missing"}}`,
			setupMock: func(m *MockApplier) {
				m.On("ApplySignal", mock.Anything, "missing", domain.SignalPaymentCompleted).
					Return(nil, domain.ErrOrderNotFound)
			},
			wantErr: kafka.ErrPermanent,
		},
		{
			name:      "битый payload подтверждается",
			payload:   `{broken`,
			setupMock: func(m *MockApplier) {},
			wantErr:   kafka.ErrPermanent,
		},
		{
			name:      "нет order_id",
			payload:   `{"data":{}}`,
			setupMock: func(m *MockApplier) {},
			wantErr:   kafka.ErrPermanent,
		},
		{
			name:    "ошибка БД не подтверждается",
			payload: `{"data":{"order_id":"order-1"}}`,
			setupMock: func(m *MockApplier) {
				m.On("ApplySignal", mock.Anything, "order-1", domain.SignalPaymentCompleted).
					Return(nil, domain.ErrRepository)
			},
			wantErr: domain.ErrRepository,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &MockApplier{}
			tt.setupMock(applier)

			err := NewHandler(domain.SignalPaymentCompleted, applier)(context.Background(), message(kafka.TopicPaymentCompleted, tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			if errors.Is(tt.wantErr, domain.ErrRepository) {
				assert.NotErrorIs(t, err, kafka.ErrPermanent, "ошибка БД должна приводить к повторной доставке")
			}
			applier.AssertExpectations(t)
		})
	}
}

func TestHandler_LatePaymentAfterCancel(t *testing.T) {
	db := testutil.NewMemoryDB()
	db.Put(&domain.Order{ID: "order-1", ProductID: "p", Quantity: 1, UserID: "u", State: domain.StateCanceled})
	svc := transition.NewService(db, events.NewProducer())

	err := NewHandler(domain.SignalPaymentCompleted, svc)(context.Background(),
		message(kafka.TopicPaymentCompleted, `{"data":{"order_id":"order-1"}}`))
	require.NoError(t, err)

	o, _ := db.Order("order-1")
	assert.Equal(t, domain.StateCanceled, o.State)
	assert.Equal(t, []string{"order.payment_completed_after_canceled"}, db.OutboxEventTypes())
}

func TestBindings(t *testing.T) {
	want := map[string]domain.Signal{
		"product.deduction.completed": domain.SignalDeductionCompleted,
		"product.deduction.failed":    domain.SignalDeductionFailed,
		"payment.completed":           domain.SignalPaymentCompleted,
		"payment.canceled":            domain.SignalPaymentCanceled,
	}

	got := make(map[string]domain.Signal)
	for _, b := range Bindings() {
		got[b.Topic] = b.Signal
	}
	assert.Equal(t, want, got)
}

// =============================================================================
// Тесты Runner
// =============================================================================

// fakeConsumer вызывает обработчик для заготовленных сообщений и возвращает err.
type fakeConsumer struct {
	messages []*kafka.Message
	err      error
	closed   bool
}

func (f *fakeConsumer) ConsumeWithRetry(ctx context.Context, handler kafka.MessageHandler, _ int) error {
	for _, m := range f.messages {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

func TestRunner_RecreatesConsumerAfterNotCommitted(t *testing.T) {
	applier := &MockApplier{}
	applier.On("ApplySignal", mock.Anything, mock.Anything, mock.Anything).
		Return(&transition.Result{Order: &domain.Order{}, Outcome: transition.OutcomeNoop}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := make(chan string, 16)
	var (
		mu    sync.Mutex
		first *fakeConsumer
	)

	factory := func(topic string) (KafkaConsumer, error) {
		created <- topic
		mu.Lock()
		defer mu.Unlock()
		if topic == kafka.TopicPaymentCompleted && first == nil {
			first = &fakeConsumer{err: kafka.ErrNotCommitted}
			return first, nil
		}
		return &fakeConsumer{}, nil
	}

	runner := NewRunner(factory, applier, RunnerConfig{MaxRetries: 0, RestartDelay: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	counts := map[string]int{}
	require.Eventually(t, func() bool {
		for {
			select {
			case topic := <-created:
				counts[topic]++
			default:
				return counts[kafka.TopicPaymentCompleted] >= 2 && len(counts) == 4
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner не остановился")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, first.closed, "остановленный consumer закрыт")
}

func TestRunner_FactoryErrorRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan struct{}, 32)
	factory := func(topic string) (KafkaConsumer, error) {
		if topic != kafka.TopicDeductionFailed {
			return &fakeConsumer{}, nil
		}
		attempts <- struct{}{}
		return nil, errors.New("kafka недоступна")
	}

	runner := NewRunner(factory, &MockApplier{}, RunnerConfig{RestartDelay: 5 * time.Millisecond})
	go func() { _ = runner.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("factory не вызвана повторно")
		}
	}
}
