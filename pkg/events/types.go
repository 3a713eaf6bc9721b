// Package events содержит wire-типы Kafka сообщений Order Service:
// входящие сигналы Inventory/Payment и исходящие события заказа.
// Единый источник правды для формата — используется producer, consumer и тестами.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMalformed — сообщение не удалось разобрать или в нём нет order_id.
var ErrMalformed = errors.New("некорректное сообщение")

// =============================================================================
// Входящие сигналы (Inventory / Payment → Order Service)
// =============================================================================

// SignalData — полезная нагрузка сигнала.
type SignalData struct {
	OrderID string `json:"order_id"`
}

// Signal — сообщение из топиков product.deduction.* и payment.*.
type Signal struct {
	EventID string     `json:"event_id,omitempty"` // ID события у отправителя
	Data    SignalData `json:"data"`
}

// SignalFromJSON десериализует сигнал и проверяет наличие order_id.
func SignalFromJSON(data []byte) (*Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	if s.Data.OrderID == "" {
		return nil, ErrMalformed
	}
	return &s, nil
}

// ToJSON сериализует сигнал в JSON.
func (s *Signal) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// =============================================================================
// Исходящие события (Order Service → outbox → Kafka)
// =============================================================================

// EventType — тип исходящего события заказа.
type EventType string

const (
	EventOrderAwaitingCompletion       EventType = "order.awaiting_completion"
	EventOrderCreated                  EventType = "order.created"
	EventOrderCanceled                 EventType = "order.canceled"
	EventOrderErrored                  EventType = "order.errored"
	EventDeductionAfterCanceled        EventType = "order.deduction_after_canceled"
	EventPaymentCompletedAfterCanceled EventType = "order.payment_completed_after_canceled"
)

// OrderData — снимок заказа в событии.
// Флаги заполняются только для событий отмены и описывают состояние до перехода.
type OrderData struct {
	OrderID             string `json:"order_id"`
	ProductID           string `json:"product_id"`
	Quantity            int    `json:"quantity"`
	UserID              string `json:"user_id"`
	State               string `json:"state"`
	WasStockOccupied    *bool  `json:"was_stock_occupied,omitempty"`
	WasPaymentCompleted *bool  `json:"was_payment_completed,omitempty"`
}

// OrderEvent — конверт исходящего события.
type OrderEvent struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       OrderData `json:"data"`
}

// ToJSON сериализует событие в JSON.
func (e *OrderEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// OrderEventFromJSON десериализует событие из JSON.
func OrderEventFromJSON(data []byte) (*OrderEvent, error) {
	var e OrderEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
