// Package reservation реализует размещение заказа как сагу из двух шагов:
// резерв товара в Inventory Service и сохранение заказа.
// Если шаг падает, уже выполненные шаги компенсируются в обратном порядке.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/services/order/internal/domain"
)

// Step — шаг саги. Compensate может быть nil, если откатывать нечего.
type Step struct {
	Name       string
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// RetryPolicy — повторы компенсации.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy — 3 попытки с экспоненциальной задержкой.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Saga выполняет шаги по порядку.
type Saga struct {
	steps []Step
	retry RetryPolicy
}

// NewSaga создаёт сагу из шагов.
func NewSaga(retry RetryPolicy, steps ...Step) *Saga {
	return &Saga{steps: steps, retry: retry}
}

// Execute выполняет Forward всех шагов.
// При ошибке шага i компенсирует шаги i-1..0 и возвращает ошибку шага.
// Если компенсация не удалась, к ошибке добавляется domain.ErrCompensationFailed.
func (s *Saga) Execute(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Forward(ctx); err != nil {
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("step", step.Name).
				Msg("Шаг саги не выполнен, запускаем компенсацию")

			if compErr := s.compensate(ctx, s.steps[:i]); compErr != nil {
				return errors.Join(err, compErr)
			}
			return err
		}
	}
	return nil
}

// compensate откатывает шаги в обратном порядке. Контекст запроса может быть
// уже отменён, поэтому компенсация выполняется без отмены родителя.
func (s *Saga) compensate(ctx context.Context, done []Step) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}

		if err := s.withRetry(ctx, step.Compensate); err != nil {
			metrics.SagaCompensationsTotal.WithLabelValues(step.Name, "failed").Inc()
			metrics.SagaCompensationFailuresTotal.Inc()
			errs = append(errs, fmt.Errorf("%w: шаг %s: %w", domain.ErrCompensationFailed, step.Name, err))
			continue
		}
		metrics.SagaCompensationsTotal.WithLabelValues(step.Name, "success").Inc()
	}

	return errors.Join(errs...)
}

func (s *Saga) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval

	attempts := s.retry.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	return err
}
