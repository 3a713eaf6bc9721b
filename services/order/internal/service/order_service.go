// Package service содержит бизнес-логику API Order Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/repository"
)

// OrderPlacer размещает заказ (reservation.Service).
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID, productID string, quantity int) (string, error)
}

// OrderService определяет операции API заказов.
type OrderService interface {
	// PlaceOrder резервирует товар и создаёт заказ в CREATED. Возвращает ID заказа.
	PlaceOrder(ctx context.Context, userID, productID string, quantity int) (string, error)

	// CountByProducts возвращает число оплаченных заказов по каждому товару.
	// Товары без заказов присутствуют в результате с нулём.
	CountByProducts(ctx context.Context, productIDs []string) (map[string]int64, error)

	// ListPaymentCompletedOrders возвращает оплаченные заказы пользователя.
	// Пустой список, если заказов нет.
	ListPaymentCompletedOrders(ctx context.Context, userID string) ([]*domain.Order, error)

	// GetOrder возвращает заказ по ID.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// IsPayable сообщает, можно ли ещё оплатить заказ.
	IsPayable(ctx context.Context, orderID string) (bool, error)
}

// orderService — реализация OrderService.
type orderService struct {
	repo      repository.OrderRepository
	placer    OrderPlacer
	validTime time.Duration
	now       func() time.Time
}

// NewOrderService создаёт сервис заказов.
// validTime — окно оплаты, после которого заказ считается истёкшим.
func NewOrderService(repo repository.OrderRepository, placer OrderPlacer, validTime time.Duration) OrderService {
	return &orderService{
		repo:      repo,
		placer:    placer,
		validTime: validTime,
		now:       time.Now,
	}
}

// PlaceOrder делегирует размещение саге резервирования.
func (s *orderService) PlaceOrder(ctx context.Context, userID, productID string, quantity int) (string, error) {
	return s.placer.PlaceOrder(ctx, userID, productID, quantity)
}

// CountByProducts считает заказы в PaymentCompletedStates.
func (s *orderService) CountByProducts(ctx context.Context, productIDs []string) (map[string]int64, error) {
	result := make(map[string]int64, len(productIDs))

	unique := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		if id == "" {
			return nil, domain.ErrInvalidProductID
		}
		if _, seen := result[id]; seen {
			continue
		}
		result[id] = 0
		unique = append(unique, id)
	}

	if len(unique) == 0 {
		return result, nil
	}

	counts, err := s.repo.CountByProductsAndStates(ctx, unique, domain.PaymentCompletedStates)
	if err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Int("products", len(unique)).
			Msg("Ошибка подсчёта заказов по товарам")
		return nil, fmt.Errorf("%w: %w", domain.ErrRepository, err)
	}

	for id, n := range counts {
		if _, ok := result[id]; ok {
			result[id] = n
		}
	}

	return result, nil
}

// ListPaymentCompletedOrders возвращает заказы пользователя в PaymentCompletedStates.
func (s *orderService) ListPaymentCompletedOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	orders, err := s.repo.ListByUserAndStates(ctx, userID, domain.PaymentCompletedStates)
	if err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("user_id", userID).
			Msg("Ошибка получения списка оплаченных заказов")
		return nil, fmt.Errorf("%w: %w", domain.ErrRepository, err)
	}

	if orders == nil {
		orders = []*domain.Order{}
	}

	logger.Ctx(ctx).Debug().
		Str("user_id", userID).
		Int("returned", len(orders)).
		Msg("Список оплаченных заказов получен")

	return orders, nil
}

// GetOrder возвращает заказ по ID.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	log := logger.FromContext(ctx)

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Debug().
				Str("order_id", orderID).
				Msg("Заказ не найден")
			return nil, err
		}
		log.Error().
			Err(err).
			Str("order_id", orderID).
			Msg("Ошибка получения заказа")
		return nil, fmt.Errorf("%w: %w", domain.ErrRepository, err)
	}

	return order, nil
}

// IsPayable: заказ в CREATED или STOCK_CONFIRMED и окно оплаты не истекло.
func (s *orderService) IsPayable(ctx context.Context, orderID string) (bool, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.IsPayable(s.now(), s.validTime), nil
}
