// Package consumer связывает Kafka топики Inventory/Payment с сигналами заказа.
//
// Offset коммитится только после того, как обработчик вернул nil, то есть
// после фиксации транзакции. Сообщения, повтор которых не поможет
// (неизвестный заказ, битый payload), помечаются kafka.Permanent:
// consumer кладёт их в DLQ, если он включён, и подтверждает.
// Остальные ошибки не подтверждаются и приводят к повторной доставке.
package consumer

import (
	"context"
	"errors"
	"fmt"

	orderevents "example.com/reservation-order/pkg/events"
	"example.com/reservation-order/pkg/kafka"
	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/transition"
)

// SignalApplier применяет сигнал к заказу (transition.Service).
type SignalApplier interface {
	ApplySignal(ctx context.Context, orderID string, sig domain.Signal) (*transition.Result, error)
}

// Binding — топик и сигнал, который он несёт.
type Binding struct {
	Topic  string
	Signal domain.Signal
}

// Bindings возвращает все входящие топики Order Service.
func Bindings() []Binding {
	return []Binding{
		{Topic: kafka.TopicDeductionCompleted, Signal: domain.SignalDeductionCompleted},
		{Topic: kafka.TopicDeductionFailed, Signal: domain.SignalDeductionFailed},
		{Topic: kafka.TopicPaymentCompleted, Signal: domain.SignalPaymentCompleted},
		{Topic: kafka.TopicPaymentCanceled, Signal: domain.SignalPaymentCanceled},
	}
}

// NewHandler возвращает обработчик сообщений топика, несущего сигнал sig.
func NewHandler(sig domain.Signal, applier SignalApplier) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		log := logger.FromContext(ctx).With().
			Str("topic", msg.Topic).
			Str("signal", string(sig)).
			Logger()

		signal, err := orderevents.SignalFromJSON(msg.Value)
		if err != nil {
			metrics.ConsumerSignalsTotal.WithLabelValues(string(sig), "malformed").Inc()
			log.Error().
				Err(err).
				Str("payload", string(msg.Value)).
				Msg("Некорректный сигнал, подтверждаем без обработки")
			return kafka.Permanent(err)
		}

		ctx = logger.WithOrderID(ctx, signal.Data.OrderID)

		result, err := applier.ApplySignal(ctx, signal.Data.OrderID, sig)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				metrics.ConsumerSignalsTotal.WithLabelValues(string(sig), "not_found").Inc()
				log.Warn().
					Str("order_id", signal.Data.OrderID).
					Msg("Сигнал для неизвестного заказа, подтверждаем без обработки")
				return kafka.Permanent(err)
			}

			metrics.ConsumerSignalsTotal.WithLabelValues(string(sig), "error").Inc()
			return fmt.Errorf("ошибка обработки сигнала %s для заказа %s: %w", sig, signal.Data.OrderID, err)
		}

		metrics.ConsumerSignalsTotal.WithLabelValues(string(sig), string(result.Outcome)).Inc()
		return nil
	}
}
