// Package domain содержит бизнес-сущности и доменные ошибки Order Service.
package domain

import (
	"strings"
	"time"
)

// Order — заказ на резервирование товара.
// Доменная сущность без зависимостей от инфраструктуры (GORM, Kafka).
type Order struct {
	ID        string     // Уникальный идентификатор заказа (UUID)
	ProductID string     // ID товара
	Quantity  int        // Количество, неизменно после создания
	UserID    string     // ID пользователя, создавшего заказ
	State     OrderState // Текущее состояние
	CreatedAt time.Time  // Дата создания заказа
	UpdatedAt time.Time  // Дата последнего изменения состояния
}

// NewOrder создаёт заказ в состоянии CREATED.
func NewOrder(id, userID, productID string, quantity int, now time.Time) (*Order, error) {
	o := &Order{
		ID:        id,
		ProductID: productID,
		Quantity:  quantity,
		UserID:    userID,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate проверяет корректность полей заказа.
func (o *Order) Validate() error {
	return ValidatePlacement(o.UserID, o.ProductID, o.Quantity)
}

// ValidatePlacement проверяет параметры размещения заказа до похода в склад.
func ValidatePlacement(userID, productID string, quantity int) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(productID) == "" {
		return ErrInvalidProductID
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ExpiresAt возвращает момент, после которого заказ нельзя оплатить.
func (o *Order) ExpiresAt(validTime time.Duration) time.Time {
	return o.CreatedAt.Add(validTime)
}

// IsExpired возвращает true, если окно оплаты закрыто.
func (o *Order) IsExpired(now time.Time, validTime time.Duration) bool {
	return now.After(o.ExpiresAt(validTime))
}

// IsPayable возвращает true, если заказ в оплачиваемом состоянии и окно не истекло.
func (o *Order) IsPayable(now time.Time, validTime time.Duration) bool {
	return IsPayableState(o.State) && !o.IsExpired(now, validTime)
}

// TransitionTo переводит заказ в новое состояние по таблице переходов.
func (o *Order) TransitionTo(to OrderState, now time.Time) error {
	if !CanTransition(o.State, to) {
		return ErrInvalidTransition
	}
	o.State = to
	o.UpdatedAt = now
	return nil
}
