package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/reservation-order/pkg/logger"
)

// MessageHandler - функция обработки сообщений.
// Получает context с headers (trace_id, correlation_id) и сообщение.
// nil означает, что сообщение обработано и offset можно коммитить.
type MessageHandler func(ctx context.Context, msg *Message) error

var (
	// ErrNotCommitted возвращается Consume, когда сообщение не обработано.
	// Offset не закоммичен: после пересоздания Consumer сообщение будет доставлено снова.
	ErrNotCommitted = errors.New("сообщение не обработано, offset не закоммичен")

	// ErrPermanent помечает ошибку, которую повторная доставка не исправит
	// (битый payload, неизвестный заказ). Только такие сообщения уходят в DLQ
	// и коммитятся без успешной обработки.
	ErrPermanent = errors.New("необрабатываемое сообщение")
)

// Permanent оборачивает err в ErrPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// reader — подмножество kafka.Reader, используемое Consumer.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQSender отправляет необработанное сообщение в Dead Letter Queue.
type DLQSender interface {
	SendToDLQ(ctx context.Context, originalMsg *Message, processingError error) error
}

// Consumer читает сообщения из Kafka и передаёт их обработчику.
// Offset коммитится только после успешной обработки (ручной ack).
type Consumer struct {
	reader reader
	dlq    DLQSender
	cfg    Config
	topic  string
}

// NewConsumer создаёт новый Consumer для чтения сообщений из топика.
// groupID используется для consumer group - несколько инстансов с одним groupID
// будут распределять партиции между собой.
func NewConsumer(cfg Config, topic string, groupID string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	if topic == "" {
		return nil, fmt.Errorf("не указан топик")
	}

	if groupID == "" {
		return nil, fmt.Errorf("не указан group ID")
	}

	// CommitInterval = 0: CommitMessages коммитит синхронно.
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        100 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Создан Kafka Consumer")

	return &Consumer{
		reader: r,
		cfg:    cfg,
		topic:  topic,
	}, nil
}

// SetDLQProducer устанавливает отправитель в DLQ для сообщений, исчерпавших повторы.
func (c *Consumer) SetDLQProducer(p DLQSender) {
	c.dlq = p
}

// Topic возвращает топик Consumer.
func (c *Consumer) Topic() string {
	return c.topic
}

// Consume запускает чтение сообщений из топика.
// Блокирует выполнение до отмены context.
//
// Успешно обработанное сообщение коммитится. Сообщение с ErrPermanent уходит
// в DLQ (если он задан) и коммитится; при сбое записи в DLQ offset не коммитится.
// Любая другая ошибка останавливает Consume с ErrNotCommitted без коммита,
// и вызывающая сторона пересоздаёт Consumer для повторной доставки.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger.Info().
		Str("topic", c.topic).
		Msg("Запуск чтения сообщений из Kafka")

	for {
		select {
		case <-ctx.Done():
			logger.Info().
				Str("topic", c.topic).
				Msg("Получен сигнал завершения, остановка Consumer")
			return ctx.Err()
		default:
		}

		msg, err := c.fetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error().
				Err(err).
				Str("topic", c.topic).
				Msg("Ошибка чтения сообщения из Kafka")
			continue
		}

		if err := c.processMessage(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logger.Error().
				Err(err).
				Str("topic", c.topic).
				Str("key", string(msg.Key)).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Ошибка обработки сообщения")

			if !errors.Is(err, ErrPermanent) {
				return fmt.Errorf("%w: %w", ErrNotCommitted, err)
			}
			if c.dlq != nil {
				if dlqErr := c.sendToDLQ(ctx, msg, err); dlqErr != nil {
					logger.Error().
						Err(dlqErr).
						Msg("Ошибка отправки в DLQ")
					return fmt.Errorf("%w: %w", ErrNotCommitted, dlqErr)
				}
			}
		}

		if err := c.commitMessage(ctx, msg); err != nil {
			logger.Error().
				Err(err).
				Str("topic", c.topic).
				Int64("offset", msg.Offset).
				Msg("Ошибка коммита offset")
			return fmt.Errorf("ошибка коммита offset: %w", err)
		}
	}
}

// ConsumeWithRetry запускает чтение с автоматическими повторами при ошибках.
// maxRetries - максимальное количество повторов для каждого сообщения.
func (c *Consumer) ConsumeWithRetry(ctx context.Context, handler MessageHandler, maxRetries int) error {
	return c.Consume(ctx, WithRetry(handler, maxRetries))
}

// WithRetry оборачивает handler экспоненциальными повторами: 100ms, 200ms, 400ms...
// Ошибка с ErrPermanent возвращается сразу, без повторов.
func WithRetry(handler MessageHandler, maxRetries int) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
				logger.Warn().
					Int("attempt", attempt).
					Str("key", string(msg.Key)).
					Dur("delay", delay).
					Msg("Повторная попытка обработки сообщения")

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if err := handler(ctx, msg); err != nil {
				if errors.Is(err, ErrPermanent) {
					return err
				}
				lastErr = err
				continue
			}
			return nil
		}
		return fmt.Errorf("исчерпаны попытки обработки: %w", lastErr)
	}
}

// fetchMessage читает следующее сообщение из Kafka.
func (c *Consumer) fetchMessage(ctx context.Context) (*Message, error) {
	kafkaMsg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return fromKafkaMessage(kafkaMsg), nil
}

// processMessage обрабатывает сообщение, добавляя headers в context.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) error {
	msgCtx := ContextFromMessage(ctx, msg)

	logger.Debug().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("trace_id", TraceIDFromContext(msgCtx)).
		Str("correlation_id", CorrelationIDFromContext(msgCtx)).
		Msg("Получено сообщение из Kafka")

	return handler(msgCtx, msg)
}

// ContextFromMessage создаёт context с trace_id и correlation_id из headers сообщения.
func ContextFromMessage(ctx context.Context, msg *Message) context.Context {
	return logger.NewContextWithIDs(ctx, msg.Headers[HeaderTraceID], msg.Headers[HeaderCorrelationID])
}

// commitMessage коммитит offset сообщения.
func (c *Consumer) commitMessage(ctx context.Context, msg *Message) error {
	return c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

// sendToDLQ отправляет сообщение в Dead Letter Queue.
func (c *Consumer) sendToDLQ(ctx context.Context, msg *Message, processingErr error) error {
	logger.Warn().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Err(processingErr).
		Msg("Отправка сообщения в DLQ")

	return c.dlq.SendToDLQ(ctx, msg, processingErr)
}

// Close закрывает Consumer.
func (c *Consumer) Close() error {
	logger.Info().
		Str("topic", c.topic).
		Msg("Закрытие Kafka Consumer")

	if err := c.reader.Close(); err != nil {
		logger.Error().
			Err(err).
			Str("topic", c.topic).
			Msg("Ошибка при закрытии Kafka Consumer")
		return fmt.Errorf("ошибка закрытия consumer: %w", err)
	}

	return nil
}
