// Package service содержит unit тесты для OrderService.
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/testutil"
)

// =====================================
// Алиас MockOrderRepository из testutil (DRY)
// =====================================

type MockOrderRepository = testutil.MockOrderRepository

// MockPlacer — мок для OrderPlacer.
type MockPlacer struct {
	mock.Mock
}

func (m *MockPlacer) PlaceOrder(ctx context.Context, userID, productID string, quantity int) (string, error) {
	args := m.Called(ctx, userID, productID, quantity)
	return args.String(0), args.Error(1)
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *MockOrderRepository, placer *MockPlacer) *orderService {
	svc := NewOrderService(repo, placer, 10*time.Minute).(*orderService)
	svc.now = func() time.Time { return t0.Add(5 * time.Minute) }
	return svc
}

// =====================================
// Тесты PlaceOrder
// =====================================

func TestOrderService_PlaceOrder(t *testing.T) {
	placer := new(MockPlacer)
	placer.On("PlaceOrder", mock.Anything, "user-1", "product-1", 3).Return("order-1", nil)

	id, err := newTestService(new(MockOrderRepository), placer).
		PlaceOrder(context.Background(), "user-1", "product-1", 3)

	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	placer.AssertExpectations(t)
}

func TestOrderService_PlaceOrder_Error(t *testing.T) {
	placer := new(MockPlacer)
	placer.On("PlaceOrder", mock.Anything, "user-1", "product-1", 3).Return("", domain.ErrInsufficientStock)

	_, err := newTestService(new(MockOrderRepository), placer).
		PlaceOrder(context.Background(), "user-1", "product-1", 3)

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

// =====================================
// Тесты CountByProducts
// =====================================

func TestOrderService_CountByProducts(t *testing.T) {
	tests := []struct {
		name      string
		products  []string
		setupMock func(m *MockOrderRepository)
		want      map[string]int64
		wantErr   error
	}{
		{
			name:     "неизвестный товар получает ноль",
			products: []string{"p1", "p2", "p1"},
			setupMock: func(m *MockOrderRepository) {
				m.On("CountByProductsAndStates", mock.Anything, []string{"p1", "p2"}, domain.PaymentCompletedStates).
					Return(map[string]int64{"p1": 4}, nil)
			},
			want: map[string]int64{"p1": 4, "p2": 0},
		},
		{
			name:      "пустой список без запроса",
			products:  nil,
			setupMock: func(m *MockOrderRepository) {},
			want:      map[string]int64{},
		},
		{
			name:      "пустой ID товара",
			products:  []string{"p1", ""},
			setupMock: func(m *MockOrderRepository) {},
			wantErr:   domain.ErrInvalidProductID,
		},
		{
			name:     "ошибка БД",
			products: []string{"p1"},
			setupMock: func(m *MockOrderRepository) {
				m.On("CountByProductsAndStates", mock.Anything, []string{"p1"}, domain.PaymentCompletedStates).
					Return(nil, errors.New("connection refused"))
			},
			wantErr: domain.ErrRepository,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			tt.setupMock(repo)

			got, err := newTestService(repo, new(MockPlacer)).CountByProducts(context.Background(), tt.products)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			repo.AssertExpectations(t)
		})
	}
}

// =====================================
// Тесты ListPaymentCompletedOrders
// =====================================

func TestOrderService_ListPaymentCompletedOrders(t *testing.T) {
	t.Run("возвращает оплаченные заказы", func(t *testing.T) {
		repo := new(MockOrderRepository)
		orders := []*domain.Order{
			{ID: "o1", UserID: "user-1", State: domain.StateCompleted},
			{ID: "o2", UserID: "user-1", State: domain.StatePaymentCompleted},
		}
		repo.On("ListByUserAndStates", mock.Anything, "user-1", domain.PaymentCompletedStates).Return(orders, nil)

		got, err := newTestService(repo, new(MockPlacer)).ListPaymentCompletedOrders(context.Background(), "user-1")

		require.NoError(t, err)
		assert.Equal(t, orders, got)
		for _, o := range got {
			assert.True(t, domain.IsPaymentCompleted(o.State))
		}
	})

	t.Run("нет заказов — пустой список", func(t *testing.T) {
		repo := new(MockOrderRepository)
		repo.On("ListByUserAndStates", mock.Anything, "user-2", domain.PaymentCompletedStates).Return([]*domain.Order(nil), nil)

		got, err := newTestService(repo, new(MockPlacer)).ListPaymentCompletedOrders(context.Background(), "user-2")

		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("пустой user_id", func(t *testing.T) {
		_, err := newTestService(new(MockOrderRepository), new(MockPlacer)).ListPaymentCompletedOrders(context.Background(), "")
		assert.ErrorIs(t, err, domain.ErrInvalidUserID)
	})

	t.Run("ошибка БД", func(t *testing.T) {
		repo := new(MockOrderRepository)
		repo.On("ListByUserAndStates", mock.Anything, "user-1", domain.PaymentCompletedStates).Return(nil, errors.New("timeout"))

		_, err := newTestService(repo, new(MockPlacer)).ListPaymentCompletedOrders(context.Background(), "user-1")
		assert.ErrorIs(t, err, domain.ErrRepository)
	})
}

// =====================================
// Тесты GetOrder / IsPayable
// =====================================

func TestOrderService_GetOrder(t *testing.T) {
	repo := new(MockOrderRepository)
	repo.On("GetByID", mock.Anything, "order-1").Return(&domain.Order{ID: "order-1"}, nil)
	repo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrOrderNotFound)
	repo.On("GetByID", mock.Anything, "broken").Return(nil, errors.New("db down"))

	svc := newTestService(repo, new(MockPlacer))

	order, err := svc.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)

	_, err = svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.GetOrder(context.Background(), "broken")
	assert.ErrorIs(t, err, domain.ErrRepository)
}

func TestOrderService_IsPayable(t *testing.T) {
	tests := []struct {
		name      string
		state     domain.OrderState
		createdAt time.Time
		want      bool
	}{
		{"CREATED в окне оплаты", domain.StateCreated, t0, true},
		{"STOCK_CONFIRMED в окне оплаты", domain.StateStockConfirmed, t0, true},
		{"CREATED после окна оплаты", domain.StateCreated, t0.Add(-6 * time.Minute), false},
		{"уже оплачен", domain.StatePaymentCompleted, t0, false},
		{"отменён", domain.StateCanceled, t0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			repo.On("GetByID", mock.Anything, "order-1").
				Return(&domain.Order{ID: "order-1", State: tt.state, CreatedAt: tt.createdAt}, nil)

			got, err := newTestService(repo, new(MockPlacer)).IsPayable(context.Background(), "order-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderService_IsPayable_NotFound(t *testing.T) {
	repo := new(MockOrderRepository)
	repo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrOrderNotFound)

	_, err := newTestService(repo, new(MockPlacer)).IsPayable(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
