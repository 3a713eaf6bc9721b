// Package kafka предоставляет обёртки над kafka-go для событийного обмена Order Service.
// Включает Producer и Consumer с поддержкой headers, трассировки и ручного коммита offset.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/reservation-order/pkg/logger"
)

// Входящие топики: сигналы от Inventory и Payment Service.
const (
	TopicDeductionCompleted = "product.deduction.completed"
	TopicDeductionFailed    = "product.deduction.failed"
	TopicPaymentCompleted   = "payment.completed"
	TopicPaymentCanceled    = "payment.canceled"
)

// Исходящие топики: события заказа, публикуемые через outbox.
const (
	TopicOrderAwaitingCompletion     = "order.awaiting_completion"
	TopicOrderCreated                = "order.created"
	TopicOrderCanceled               = "order.canceled"
	TopicOrderErrored                = "order.errored"
	TopicOrderDeductionAfterCanceled = "order.deduction_after_canceled"
	TopicOrderPaymentAfterCanceled   = "order.payment_completed_after_canceled"
)

// TopicDLQ — Dead Letter Queue для сигналов, которые не удалось обработать.
const TopicDLQ = "dlq.order"

// Ключи для headers сообщений Kafka.
const (
	// HeaderTraceID - идентификатор трассировки для distributed tracing.
	HeaderTraceID = "trace_id"

	// HeaderCorrelationID - идентификатор корреляции для связи запросов и событий.
	HeaderCorrelationID = "correlation_id"

	// HeaderTimestamp - временная метка создания сообщения.
	HeaderTimestamp = "timestamp"
)

// Config содержит настройки для подключения к Kafka.
type Config struct {
	// Brokers - список адресов брокеров Kafka.
	Brokers []string

	// ConsumerGroup - имя consumer group для Consumer.
	ConsumerGroup string
}

// Message представляет сообщение Kafka с метаданными.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Headers   map[string]string // trace_id, correlation_id и т.д.
	Time      time.Time
}

// fromKafkaMessage конвертирует kafka.Message в Message.
func fromKafkaMessage(m kafka.Message) *Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Headers:   headers,
		Time:      m.Time,
	}
}

// toKafkaMessage конвертирует Message в kafka.Message.
func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	return kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Topic:   m.Topic,
		Headers: headers,
		Time:    m.Time,
	}
}

// TraceIDFromContext извлекает trace_id из context.
func TraceIDFromContext(ctx context.Context) string {
	return logger.TraceIDFromContext(ctx)
}

// CorrelationIDFromContext извлекает correlation_id из context.
func CorrelationIDFromContext(ctx context.Context) string {
	return logger.CorrelationIDFromContext(ctx)
}

// HeadersFromContext собирает trace_id и correlation_id из context.
// Пустые значения не попадают в результат.
func HeadersFromContext(ctx context.Context) map[string]string {
	headers := make(map[string]string, 2)
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		headers[HeaderTraceID] = traceID
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		headers[HeaderCorrelationID] = correlationID
	}
	return headers
}
