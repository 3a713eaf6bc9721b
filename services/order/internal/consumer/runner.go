package consumer

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/reservation-order/pkg/kafka"
	"example.com/reservation-order/pkg/logger"
)

// KafkaConsumer — интерфейс для чтения сообщений из Kafka.
// Позволяет замокать kafka.Consumer в unit-тестах.
type KafkaConsumer interface {
	ConsumeWithRetry(ctx context.Context, handler kafka.MessageHandler, maxRetries int) error
	Close() error
}

// Factory создаёт consumer для топика. Вызывается заново после каждой остановки.
type Factory func(topic string) (KafkaConsumer, error)

// RunnerConfig — настройки Runner.
type RunnerConfig struct {
	MaxRetries   int           // повторы обработчика до DLQ / остановки
	RestartDelay time.Duration // пауза перед пересозданием consumer
}

// Runner держит по одному consumer на каждый Binding и пересоздаёт его
// после остановки, чтобы незакоммиченное сообщение было доставлено снова.
type Runner struct {
	factory  Factory
	applier  SignalApplier
	bindings []Binding
	cfg      RunnerConfig
}

// NewRunner создаёт Runner для всех входящих топиков.
func NewRunner(factory Factory, applier SignalApplier, cfg RunnerConfig) *Runner {
	return &Runner{
		factory:  factory,
		applier:  applier,
		bindings: Bindings(),
		cfg:      cfg,
	}
}

// Run блокируется до отмены ctx.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, b := range r.bindings {
		b := b
		g.Go(func() error {
			r.loop(ctx, b)
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, b Binding) {
	log := logger.With().
		Str("topic", b.Topic).
		Str("signal", string(b.Signal)).
		Logger()

	handler := NewHandler(b.Signal, r.applier)

	for {
		if ctx.Err() != nil {
			return
		}

		err := r.runOnce(ctx, b.Topic, handler)
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, kafka.ErrNotCommitted) {
			log.Warn().Err(err).Dur("delay", r.cfg.RestartDelay).Msg("Consumer остановлен без коммита, пересоздаём для повторной доставки")
		} else {
			log.Error().Err(err).Dur("delay", r.cfg.RestartDelay).Msg("Consumer остановлен, пересоздаём")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.RestartDelay):
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, topic string, handler kafka.MessageHandler) error {
	c, err := r.factory(topic)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("Ошибка закрытия consumer")
		}
	}()

	logger.Info().Str("topic", topic).Msg("Запуск consumer сигналов")
	return c.ConsumeWithRetry(ctx, handler, r.cfg.MaxRetries)
}
