package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/inventory"
)

// OrderCreator сохраняет новый заказ вместе с событием (transition.Service).
type OrderCreator interface {
	Create(ctx context.Context, order *domain.Order) error
}

// Service размещает заказы.
type Service struct {
	inventory inventory.Client
	orders    OrderCreator
	retry     RetryPolicy
	now       func() time.Time
	newID     func() string
}

// NewService создаёт сервис размещения заказов.
func NewService(inv inventory.Client, orders OrderCreator, retry RetryPolicy) *Service {
	return &Service{
		inventory: inv,
		orders:    orders,
		retry:     retry,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// PlaceOrder резервирует товар и создаёт заказ в CREATED.
//
// Ошибки:
//   - ErrInvalidUserID, ErrInvalidProductID, ErrInvalidQuantity — до вызова склада
//   - ErrProductNotFound, ErrInsufficientStock, ErrExternalService — склад отказал, ничего не сохранено
//   - ErrRepository — заказ не сохранён, резерв возвращён на склад
//   - ErrRepository + ErrCompensationFailed — резерв вернуть не удалось
func (s *Service) PlaceOrder(ctx context.Context, userID, productID string, quantity int) (string, error) {
	if err := domain.ValidatePlacement(userID, productID, quantity); err != nil {
		return "", err
	}

	order, err := domain.NewOrder(s.newID(), userID, productID, quantity, s.now())
	if err != nil {
		return "", err
	}

	ctx = logger.WithOrderID(ctx, order.ID)
	log := logger.FromContext(ctx)

	saga := NewSaga(s.retry,
		Step{
			Name: "reserve_stock",
			Forward: func(ctx context.Context) error {
				return s.inventory.DecreaseStock(ctx, productID, quantity)
			},
			Compensate: func(ctx context.Context) error {
				return s.inventory.IncreaseStock(ctx, productID, quantity)
			},
		},
		Step{
			Name: "persist_order",
			Forward: func(ctx context.Context) error {
				if err := s.orders.Create(ctx, order); err != nil {
					if errors.Is(err, domain.ErrRepository) {
						return err
					}
					return fmt.Errorf("%w: %w", domain.ErrRepository, err)
				}
				return nil
			},
		},
	)

	if err := saga.Execute(ctx); err != nil {
		event := log.Warn()
		if errors.Is(err, domain.ErrCompensationFailed) {
			event = log.Error()
		}
		event.Err(err).
			Str("user_id", userID).
			Str("product_id", productID).
			Int("quantity", quantity).
			Msg("Заказ не размещён")
		return "", err
	}

	return order.ID, nil
}
