// Package reaper отменяет заказы, не оплаченные за отведённое время.
//
// Запуск по расписанию на всех экземплярах; работу выполняет тот, кто
// захватил кластерную блокировку. Остальные пропускают тик без ожидания.
package reaper

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/reservation-order/pkg/lock"
	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/inventory"
	"example.com/reservation-order/services/order/internal/transition"
)

// releaseTimeout — сколько ждём освобождения блокировки после завершения прохода.
const releaseTimeout = 5 * time.Second

// OrderLister возвращает заказы по состоянию.
type OrderLister interface {
	ListByState(ctx context.Context, state domain.OrderState) ([]*domain.Order, error)
}

// Transitioner применяет переход состояния (transition.Service).
type Transitioner interface {
	Apply(ctx context.Context, orderID string, target domain.OrderState, guards ...transition.Guard) (*transition.Result, error)
}

// Config — параметры reaper.
type Config struct {
	ValidTime   time.Duration // окно оплаты заказа
	LockKey     string
	LockTTL     time.Duration
	Parallelism int // сколько заказов обрабатываем одновременно
}

// Report — итог одного прохода.
type Report struct {
	Skipped  bool // блокировка занята другим экземпляром
	Scanned  int  // заказов в CREATED
	Expired  int  // из них с истёкшим окном оплаты
	Canceled int
	Errored  int // товар удалён со склада, заказ переведён в ERROR
	Failed   int // оставлены до следующего прохода
}

// Reaper находит и отменяет истёкшие заказы.
type Reaper struct {
	orders    OrderLister
	trans     Transitioner
	inventory inventory.Client
	locker    lock.Locker
	cfg       Config
	now       func() time.Time
}

// New создаёт Reaper.
func New(orders OrderLister, trans Transitioner, inv inventory.Client, locker lock.Locker, cfg Config) *Reaper {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Reaper{
		orders:    orders,
		trans:     trans,
		inventory: inv,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunOnce выполняет один проход: захват блокировки, отмена истёкших заказов, освобождение.
func (r *Reaper) RunOnce(ctx context.Context) (Report, error) {
	log := logger.FromContext(ctx).With().Str("component", "reaper").Logger()

	lease, acquired, err := r.locker.TryAcquire(ctx, r.cfg.LockKey, r.cfg.LockTTL)
	if err != nil {
		metrics.ReaperRunsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("Не удалось захватить блокировку reaper")
		return Report{}, err
	}
	if !acquired {
		metrics.ReaperRunsTotal.WithLabelValues("skipped").Inc()
		log.Debug().Msg("Блокировка reaper занята, пропускаем проход")
		return Report{Skipped: true}, nil
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка освобождения блокировки reaper")
		}
	}()

	report, err := r.sweep(ctx)
	if err != nil {
		metrics.ReaperRunsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("Ошибка получения заказов в CREATED")
		return report, err
	}

	metrics.ReaperRunsTotal.WithLabelValues("completed").Inc()
	log.Info().
		Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("canceled", report.Canceled).
		Int("errored", report.Errored).
		Int("failed", report.Failed).
		Msg("Проверка истёкших заказов завершена")

	return report, nil
}

func (r *Reaper) sweep(ctx context.Context) (Report, error) {
	var report Report

	orders, err := r.orders.ListByState(ctx, domain.StateCreated)
	if err != nil {
		return report, err
	}
	report.Scanned = len(orders)

	now := r.now()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)

	for _, order := range orders {
		if !order.IsExpired(now, r.cfg.ValidTime) {
			continue
		}
		report.Expired++

		order := order
		g.Go(func() error {
			outcome := r.expire(gctx, order, now)
			metrics.ReaperOrdersTotal.WithLabelValues(string(outcome)).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCanceled:
				report.Canceled++
			case outcomeErrored:
				report.Errored++
			default:
				report.Failed++
			}
			return nil
		})
	}

	_ = g.Wait()
	return report, nil
}

type outcome string

const (
	outcomeCanceled outcome = "canceled"
	outcomeErrored  outcome = "errored"
	outcomeFailed   outcome = "failed"
)

// expire возвращает товар на склад и отменяет заказ.
func (r *Reaper) expire(ctx context.Context, order *domain.Order, now time.Time) outcome {
	ctx = logger.WithOrderID(ctx, order.ID)
	log := logger.FromContext(ctx).With().
		Str("product_id", order.ProductID).
		Int("quantity", order.Quantity).
		Logger()

	if err := r.inventory.IncreaseStock(ctx, order.ProductID, order.Quantity); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			if _, err := r.trans.Apply(ctx, order.ID, domain.StateError, transition.InState(domain.StateCreated)); err != nil {
				log.Error().Err(err).Msg("Не удалось перевести заказ в ERROR")
				return outcomeFailed
			}
			log.Warn().Msg("Товар не найден на складе, заказ переведён в ERROR")
			return outcomeErrored
		}

		log.Warn().Err(err).Msg("Не удалось вернуть товар на склад, повторим на следующем проходе")
		return outcomeFailed
	}

	_, err := r.trans.Apply(ctx, order.ID, domain.StateCanceled,
		transition.InState(domain.StateCreated),
		transition.Expired(now, r.cfg.ValidTime),
	)
	if err != nil {
		log.Error().Err(err).Msg("Не удалось отменить заказ, возвращаем резерв")

		if restoreErr := r.inventory.DecreaseStock(context.WithoutCancel(ctx), order.ProductID, order.Quantity); restoreErr != nil {
			log.Error().
				Err(errors.Join(domain.ErrRepository, domain.ErrCompensationFailed, restoreErr)).
				Msg("Не удалось восстановить резерв после ошибки отмены")
		}
		return outcomeFailed
	}

	log.Info().Msg("Истёкший заказ отменён")
	return outcomeCanceled
}
