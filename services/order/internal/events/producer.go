// Package events превращает переходы состояния заказа в записи outbox.
// Записи добавляются в той же транзакции, что и изменение заказа; публикует их relay.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	orderevents "example.com/reservation-order/pkg/events"
	"example.com/reservation-order/pkg/kafka"
	"example.com/reservation-order/pkg/outbox"
	"example.com/reservation-order/services/order/internal/domain"
)

// aggregateType — тип агрегата в outbox.
const aggregateType = "order"

// Producer формирует события заказа.
type Producer struct {
	now func() time.Time
}

// NewProducer создаёт Producer.
func NewProducer() *Producer {
	return &Producer{now: time.Now}
}

// Build возвращает записи outbox для заказа, только что перешедшего из previous.
//
//	CREATED            -> order.awaiting_completion
//	COMPLETED          -> order.created
//	CANCELED           -> order.canceled
//	ERROR              -> order.canceled + order.errored
//	остальные          -> ничего
func (p *Producer) Build(ctx context.Context, order *domain.Order, previous domain.OrderState) ([]*outbox.Outbox, error) {
	var types []orderevents.EventType

	switch order.State {
	case domain.StateCreated:
		types = []orderevents.EventType{orderevents.EventOrderAwaitingCompletion}
	case domain.StateCompleted:
		types = []orderevents.EventType{orderevents.EventOrderCreated}
	case domain.StateCanceled:
		types = []orderevents.EventType{orderevents.EventOrderCanceled}
	case domain.StateError:
		types = []orderevents.EventType{orderevents.EventOrderCanceled, orderevents.EventOrderErrored}
	default:
		return nil, nil
	}

	records := make([]*outbox.Outbox, 0, len(types))
	for _, t := range types {
		data := orderData(order)
		if t == orderevents.EventOrderCanceled {
			stock := domain.IsStockOccupied(previous)
			paid := domain.IsPaymentCompleted(previous)
			data.WasStockOccupied = &stock
			data.WasPaymentCompleted = &paid
		}

		record, err := p.record(ctx, t, data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// EmitForState добавляет события перехода в outbox репозиторий транзакции.
func (p *Producer) EmitForState(ctx context.Context, repo outbox.OutboxRepository, order *domain.Order, previous domain.OrderState) error {
	records, err := p.Build(ctx, order, previous)
	if err != nil {
		return err
	}
	return appendAll(ctx, repo, records)
}

// EmitDeductionAfterCancel сообщает Inventory, что списание пришло после отмены заказа.
func (p *Producer) EmitDeductionAfterCancel(ctx context.Context, repo outbox.OutboxRepository, order *domain.Order) error {
	return p.emitOne(ctx, repo, orderevents.EventDeductionAfterCanceled, order)
}

// EmitPaymentCompletedAfterCancel сообщает Payment, что оплата пришла после отмены заказа.
func (p *Producer) EmitPaymentCompletedAfterCancel(ctx context.Context, repo outbox.OutboxRepository, order *domain.Order) error {
	return p.emitOne(ctx, repo, orderevents.EventPaymentCompletedAfterCanceled, order)
}

// EmitCompensation добавляет компенсирующее событие по решению таблицы сигналов.
func (p *Producer) EmitCompensation(ctx context.Context, repo outbox.OutboxRepository, order *domain.Order, c domain.Compensation) error {
	switch c {
	case domain.CompensationDeductionAfterCancel:
		return p.EmitDeductionAfterCancel(ctx, repo, order)
	case domain.CompensationPaymentCompletedAfterCancel:
		return p.EmitPaymentCompletedAfterCancel(ctx, repo, order)
	default:
		return nil
	}
}

func (p *Producer) emitOne(ctx context.Context, repo outbox.OutboxRepository, t orderevents.EventType, order *domain.Order) error {
	record, err := p.record(ctx, t, orderData(order))
	if err != nil {
		return err
	}
	return appendAll(ctx, repo, []*outbox.Outbox{record})
}

func (p *Producer) record(ctx context.Context, t orderevents.EventType, data orderevents.OrderData) (*outbox.Outbox, error) {
	event := &orderevents.OrderEvent{
		EventID:    uuid.New().String(),
		EventType:  t,
		OccurredAt: p.now().UTC(),
		Data:       data,
	}

	payload, err := event.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", t, err)
	}

	return outbox.New(aggregateType, data.OrderID, string(t), TopicFor(t), payload, kafka.HeadersFromContext(ctx)), nil
}

// TopicFor возвращает Kafka топик для типа события.
func TopicFor(t orderevents.EventType) string {
	switch t {
	case orderevents.EventOrderAwaitingCompletion:
		return kafka.TopicOrderAwaitingCompletion
	case orderevents.EventOrderCreated:
		return kafka.TopicOrderCreated
	case orderevents.EventOrderCanceled:
		return kafka.TopicOrderCanceled
	case orderevents.EventOrderErrored:
		return kafka.TopicOrderErrored
	case orderevents.EventDeductionAfterCanceled:
		return kafka.TopicOrderDeductionAfterCanceled
	case orderevents.EventPaymentCompletedAfterCanceled:
		return kafka.TopicOrderPaymentAfterCanceled
	default:
		return string(t)
	}
}

func orderData(o *domain.Order) orderevents.OrderData {
	return orderevents.OrderData{
		OrderID:   o.ID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		UserID:    o.UserID,
		State:     string(o.State),
	}
}

func appendAll(ctx context.Context, repo outbox.OutboxRepository, records []*outbox.Outbox) error {
	for _, r := range records {
		if err := repo.Create(ctx, r); err != nil {
			return fmt.Errorf("ошибка записи в outbox (%s): %w", r.EventType, err)
		}
	}
	return nil
}
