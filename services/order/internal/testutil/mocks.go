// Package testutil содержит общие моки и утилиты для тестирования.
// Моки вынесены сюда для избежания дублирования (DRY).
// ВАЖНО: этот пакет НЕ должен импортировать transition, reservation и другие потребители моков.
package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"example.com/reservation-order/services/order/internal/domain"
)

// =============================================================================
// MockOrderRepository — мок для repository.OrderRepository
// =============================================================================

// MockOrderRepository — мок OrderRepository для unit-тестов.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByIDForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateState(ctx context.Context, orderID string, from, to domain.OrderState, updatedAt time.Time) error {
	return m.Called(ctx, orderID, from, to, updatedAt).Error(0)
}

func (m *MockOrderRepository) ListByState(ctx context.Context, state domain.OrderState) ([]*domain.Order, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByUserAndStates(ctx context.Context, userID string, states []domain.OrderState) ([]*domain.Order, error) {
	args := m.Called(ctx, userID, states)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) CountByProductsAndStates(ctx context.Context, productIDs []string, states []domain.OrderState) (map[string]int64, error) {
	args := m.Called(ctx, productIDs, states)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// =============================================================================
// MockInventory — мок для inventory.Client
// =============================================================================

// MockInventory — мок клиента Inventory Service.
type MockInventory struct {
	mock.Mock
}

func (m *MockInventory) DecreaseStock(ctx context.Context, productID string, quantity int) error {
	return m.Called(ctx, productID, quantity).Error(0)
}

func (m *MockInventory) IncreaseStock(ctx context.Context, productID string, quantity int) error {
	return m.Called(ctx, productID, quantity).Error(0)
}
