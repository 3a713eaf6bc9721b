package repository

import (
	"time"

	"example.com/reservation-order/services/order/internal/domain"
)

// OrderModel — GORM модель для таблицы orders.
// Отделена от доменной сущности для гибкости.
type OrderModel struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey"`
	ProductID string    `gorm:"column:product_id;type:varchar(64);not null;index:idx_orders_product_state,priority:1"`
	Quantity  int       `gorm:"column:quantity;not null"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;index"`
	State     string    `gorm:"column:state;type:varchar(32);not null;index;index:idx_orders_product_state,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "orders"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *OrderModel) toDomain() *domain.Order {
	return &domain.Order{
		ID:        m.ID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		UserID:    m.UserID,
		State:     domain.OrderState(m.State),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// orderModelFromDomain конвертирует доменную сущность в GORM модель.
func orderModelFromDomain(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:        o.ID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		UserID:    o.UserID,
		State:     string(o.State),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func statesToStrings(states []domain.OrderState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
