// Package repository содержит реализацию доступа к данным для Order Service.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/reservation-order/services/order/internal/domain"
)

// OrderRepository определяет интерфейс для работы с заказами в БД.
type OrderRepository interface {
	// Create сохраняет новый заказ.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID возвращает заказ по ID.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// GetByIDForUpdate возвращает заказ и блокирует строку до конца транзакции.
	// Вызывается только внутри TxManager.WithinTransaction.
	GetByIDForUpdate(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateState меняет состояние, только если текущее равно from.
	// Возвращает ErrConcurrentUpdate, если строку изменили между чтением и записью.
	UpdateState(ctx context.Context, orderID string, from, to domain.OrderState, updatedAt time.Time) error

	// ListByState возвращает все заказы в заданном состоянии (старые первыми).
	ListByState(ctx context.Context, state domain.OrderState) ([]*domain.Order, error)

	// ListByUserAndStates возвращает заказы пользователя в любом из states (новые первыми).
	ListByUserAndStates(ctx context.Context, userID string, states []domain.OrderState) ([]*domain.Order, error)

	// CountByProductsAndStates считает заказы по товарам в любом из states.
	// Товары без заказов в результат не попадают.
	CountByProductsAndStates(ctx context.Context, productIDs []string, states []domain.OrderState) (map[string]int64, error)
}

// orderRepository — GORM реализация OrderRepository.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
// db может быть транзакцией.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create сохраняет новый заказ.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Create(orderModelFromDomain(order)).Error
}

// GetByID возвращает заказ по ID.
func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.first(r.db.WithContext(ctx), id)
}

// GetByIDForUpdate выполняет SELECT ... FOR UPDATE.
func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *orderRepository) first(q *gorm.DB, id string) (*domain.Order, error) {
	var model OrderModel

	if err := q.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// UpdateState выполняет UPDATE ... WHERE id = ? AND state = ?.
func (r *orderRepository) UpdateState(ctx context.Context, id string, from, to domain.OrderState, updatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND state = ?", id, string(from)).
		Updates(map[string]interface{}{
			"state":      string(to),
			"updated_at": updatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}

	return nil
}

// ListByState возвращает заказы в состоянии state.
func (r *orderRepository) ListByState(ctx context.Context, state domain.OrderState) ([]*domain.Order, error) {
	var models []OrderModel

	if err := r.db.WithContext(ctx).
		Where("state = ?", string(state)).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	return toDomainList(models), nil
}

// ListByUserAndStates возвращает заказы пользователя в заданных состояниях.
func (r *orderRepository) ListByUserAndStates(ctx context.Context, userID string, states []domain.OrderState) ([]*domain.Order, error) {
	if len(states) == 0 {
		return []*domain.Order{}, nil
	}

	var models []OrderModel

	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND state IN ?", userID, statesToStrings(states)).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	return toDomainList(models), nil
}

// productCount — строка результата GROUP BY product_id.
type productCount struct {
	ProductID string
	Count     int64
}

// CountByProductsAndStates выполняет SELECT product_id, COUNT(*) ... GROUP BY product_id.
func (r *orderRepository) CountByProductsAndStates(ctx context.Context, productIDs []string, states []domain.OrderState) (map[string]int64, error) {
	counts := make(map[string]int64, len(productIDs))
	if len(productIDs) == 0 || len(states) == 0 {
		return counts, nil
	}

	var rows []productCount

	if err := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Select("product_id, COUNT(*) AS count").
		Where("product_id IN ? AND state IN ?", productIDs, statesToStrings(states)).
		Group("product_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ProductID] = row.Count
	}

	return counts, nil
}

func toDomainList(models []OrderModel) []*domain.Order {
	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = models[i].toDomain()
	}
	return orders
}
