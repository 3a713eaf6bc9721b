package outbox

import (
	"context"
	"time"

	"example.com/reservation-order/pkg/kafka"
	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
)

// KafkaProducer — интерфейс для отправки сообщений в Kafka.
type KafkaProducer interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// WorkerConfig — настройки relay.
type WorkerConfig struct {
	// PollInterval — интервал между опросами таблицы outbox.
	PollInterval time.Duration

	// BatchSize — количество записей за один запрос.
	BatchSize int

	// Retention — сколько хранить опубликованные записи.
	Retention time.Duration
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
		Retention:    7 * 24 * time.Hour,
	}
}

// cleanupInterval — интервал очистки опубликованных записей outbox.
const cleanupInterval = 1 * time.Hour

// Worker читает неопубликованные записи outbox и отправляет их в Kafka.
// Доставка at-least-once: неудачная запись остаётся в очереди и повторяется бесконечно.
type Worker struct {
	repo     OutboxRepository
	producer KafkaProducer
	cfg      WorkerConfig
	name     string
}

// NewWorker создаёт новый relay.
// name — имя для логов и метрик (например, "order").
func NewWorker(repo OutboxRepository, producer KafkaProducer, cfg WorkerConfig, name string) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultWorkerConfig().Retention
	}
	return &Worker{
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		name:     name,
	}
}

// Run запускает relay. Блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Str("name", w.name).
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("name", w.name).Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanupPublished(ctx)
		}
	}
}

// cleanupPublished удаляет опубликованные записи старше Retention.
func (w *Worker) cleanupPublished(ctx context.Context) {
	log := logger.FromContext(ctx)

	deleted, err := w.repo.DeletePublishedBefore(ctx, time.Now().Add(-w.cfg.Retention))
	if err != nil {
		log.Error().Err(err).Str("name", w.name).Msg("Ошибка очистки outbox")
		return
	}

	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Str("name", w.name).Msg("Очистка опубликованных записей outbox")
	}
}

// processOutbox обрабатывает пачку неопубликованных записей.
// После ошибки отправки остальные записи того же агрегата в пачке пропускаются,
// чтобы не нарушить порядок событий одного заказа.
func (w *Worker) processOutbox(ctx context.Context) {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnpublished(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("name", w.name).Msg("Ошибка чтения outbox")
		return
	}

	if len(records) == 0 {
		return
	}

	log.Debug().Int("count", len(records)).Str("name", w.name).Msg("Обработка записей outbox")

	blocked := make(map[string]struct{})
	for _, record := range records {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, ok := blocked[record.AggregateID]; ok {
			continue
		}

		if err := w.ProcessSingle(ctx, record); err != nil {
			blocked[record.AggregateID] = struct{}{}
		}
	}
}

// ProcessSingle отправляет одну запись и помечает её опубликованной.
func (w *Worker) ProcessSingle(ctx context.Context, record *Outbox) error {
	log := logger.FromContext(ctx)

	msg := &kafka.Message{
		Topic:   record.Topic,
		Key:     []byte(record.MessageKey),
		Value:   record.Payload,
		Headers: record.Headers,
	}

	if err := w.producer.SendMessage(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("outbox_id", record.ID).
			Str("topic", record.Topic).
			Int("retry_count", record.RetryCount).
			Msg("Ошибка отправки в Kafka")
		metrics.OutboxPublishTotal.WithLabelValues(w.name, "error").Inc()

		if markErr := w.repo.MarkFailed(ctx, record.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как failed")
		}
		return err
	}

	// Запись уже в Kafka: если пометка не удалась, relay отправит её повторно (at-least-once).
	if err := w.repo.MarkPublished(ctx, record.ID); err != nil {
		log.Error().
			Err(err).
			Str("outbox_id", record.ID).
			Msg("Ошибка пометки outbox как опубликованной")
		return err
	}

	metrics.OutboxPublishTotal.WithLabelValues(w.name, "success").Inc()
	log.Debug().
		Str("outbox_id", record.ID).
		Str("topic", record.Topic).
		Str("event_type", record.EventType).
		Msg("Событие опубликовано в Kafka")

	return nil
}
