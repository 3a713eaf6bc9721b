package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/reservation-order/pkg/logger"
)

// DLQ headers: исходный топик и причина, по которой сигнал не обработан.
const (
	HeaderDLQError         = "dlq_error"
	HeaderDLQOriginalTopic = "dlq_original_topic"
	HeaderDLQTimestamp     = "dlq_timestamp"
)

// writer — подмножество kafka.Writer, используемое Producer.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует записи outbox и отправляет необрабатываемые сигналы в DLQ.
// Запись синхронная с RequireAll: relay помечает запись опубликованной
// только после подтверждения всех реплик.
type Producer struct {
	writer writer
}

// NewProducer создаёт синхронный Producer.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{}, // события одного заказа в одной партиции
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Msg("Создан Kafka Producer")

	return &Producer{writer: w}, nil
}

// SendMessage отправляет сообщение. trace_id и correlation_id берутся из
// context, если их нет в headers сообщения; timestamp проставляется всегда,
// когда не задан.
func (p *Producer) SendMessage(ctx context.Context, msg *Message) error {
	if msg.Headers == nil {
		msg.Headers = make(map[string]string, 3)
	}
	for k, v := range HeadersFromContext(ctx) {
		if _, ok := msg.Headers[k]; !ok {
			msg.Headers[k] = v
		}
	}
	if _, ok := msg.Headers[HeaderTimestamp]; !ok {
		msg.Headers[HeaderTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if err := p.writer.WriteMessages(ctx, msg.toKafkaMessage()); err != nil {
		logger.Error().
			Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("Ошибка отправки сообщения в Kafka")
		return fmt.Errorf("ошибка отправки в Kafka: %w", err)
	}

	logger.Debug().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Str("trace_id", msg.Headers[HeaderTraceID]).
		Msg("Сообщение отправлено в Kafka")

	return nil
}

// SendToDLQ кладёт исходное сообщение в TopicDLQ, сохраняя его headers
// и добавляя причину ошибки.
func (p *Producer) SendToDLQ(ctx context.Context, originalMsg *Message, processingError error) error {
	headers := make(map[string]string, len(originalMsg.Headers)+3)
	for k, v := range originalMsg.Headers {
		headers[k] = v
	}
	headers[HeaderDLQError] = processingError.Error()
	headers[HeaderDLQOriginalTopic] = originalMsg.Topic
	headers[HeaderDLQTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)

	return p.SendMessage(ctx, &Message{
		Topic:   TopicDLQ,
		Key:     originalMsg.Key,
		Value:   originalMsg.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

// Close закрывает writer. Вызывается после остановки outbox relay.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		logger.Error().Err(err).Msg("Ошибка при закрытии Kafka Producer")
		return fmt.Errorf("ошибка закрытия producer: %w", err)
	}

	logger.Info().Msg("Kafka Producer закрыт")
	return nil
}
