// Package transition — единственный путь изменения состояния заказа.
//
// Каждый вызов выполняется в одной транзакции: строка заказа блокируется
// (SELECT ... FOR UPDATE), решение принимается по таблицам domain, состояние
// пишется с проверкой WHERE state = текущее, события добавляются в outbox.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/events"
	"example.com/reservation-order/services/order/internal/repository"
)

// Outcome — результат применения перехода или сигнала.
type Outcome string

const (
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeNoop         Outcome = "noop"
	OutcomeCompensated  Outcome = "compensated"
	OutcomeInvalid      Outcome = "invalid"
)

// Result описывает, что произошло с заказом.
type Result struct {
	Order    *domain.Order
	Previous domain.OrderState
	Outcome  Outcome
}

// Guard — дополнительное условие, проверяемое под блокировкой строки.
// Ошибка guard отменяет переход и возвращается вызывающему.
type Guard func(order *domain.Order) error

// Service применяет переходы состояния заказа.
type Service struct {
	tx       repository.TxManager
	producer *events.Producer
	now      func() time.Time
}

// NewService создаёт Transition Service.
func NewService(tx repository.TxManager, producer *events.Producer) *Service {
	return &Service{tx: tx, producer: producer, now: time.Now}
}

// Create сохраняет заказ в CREATED и событие order.awaiting_completion одной транзакцией.
func (s *Service) Create(ctx context.Context, order *domain.Order) error {
	if order.State != domain.StateCreated {
		return fmt.Errorf("%w: новый заказ в состоянии %s", domain.ErrInvalidTransition, order.State)
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		if err := store.Orders().Create(ctx, order); err != nil {
			return err
		}
		return s.producer.EmitForState(ctx, store.Outbox(), order, "")
	})
	if err != nil {
		return wrapRepository(err)
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("product_id", order.ProductID).
		Int("quantity", order.Quantity).
		Msg("Заказ создан")

	return nil
}

// Apply переводит заказ в target.
// Если заказ уже в target — no-op. Недопустимый переход — ErrInvalidTransition.
func (s *Service) Apply(ctx context.Context, orderID string, target domain.OrderState, guards ...Guard) (*Result, error) {
	var result *Result

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		order, err := store.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		for _, guard := range guards {
			if err := guard(order); err != nil {
				return err
			}
		}

		if order.State == target {
			result = &Result{Order: order, Previous: order.State, Outcome: OutcomeNoop}
			return nil
		}

		result, err = s.transition(ctx, store, order, target)
		return err
	})
	if err != nil {
		return nil, wrapRepository(err)
	}

	s.logResult(ctx, result, "")
	return result, nil
}

// ApplySignal применяет входящий сигнал по таблице domain.Decide.
func (s *Service) ApplySignal(ctx context.Context, orderID string, sig domain.Signal) (*Result, error) {
	var result *Result

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		order, err := store.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		decision := domain.Decide(order.State, sig)

		switch decision.Kind {
		case domain.DecisionTransition:
			result, err = s.transition(ctx, store, order, decision.Target)
			return err

		case domain.DecisionCompensate:
			if err := s.producer.EmitCompensation(ctx, store.Outbox(), order, decision.Compensation); err != nil {
				return err
			}
			result = &Result{Order: order, Previous: order.State, Outcome: OutcomeCompensated}
			return nil

		case domain.DecisionInvalid:
			result = &Result{Order: order, Previous: order.State, Outcome: OutcomeInvalid}
			return nil

		default:
			result = &Result{Order: order, Previous: order.State, Outcome: OutcomeNoop}
			return nil
		}
	})
	if err != nil {
		return nil, wrapRepository(err)
	}

	s.logResult(ctx, result, sig)
	return result, nil
}

// transition пишет новое состояние и события внутри транзакции.
func (s *Service) transition(ctx context.Context, store repository.Store, order *domain.Order, target domain.OrderState) (*Result, error) {
	previous := order.State

	if err := order.TransitionTo(target, s.now()); err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", err, previous, target)
	}

	if err := store.Orders().UpdateState(ctx, order.ID, previous, target, order.UpdatedAt); err != nil {
		return nil, err
	}

	if err := s.producer.EmitForState(ctx, store.Outbox(), order, previous); err != nil {
		return nil, err
	}

	return &Result{Order: order, Previous: previous, Outcome: OutcomeTransitioned}, nil
}

func (s *Service) logResult(ctx context.Context, r *Result, sig domain.Signal) {
	log := logger.FromContext(ctx).With().
		Str("order_id", r.Order.ID).
		Str("outcome", string(r.Outcome)).
		Logger()
	if sig != "" {
		log = log.With().Str("signal", string(sig)).Logger()
	}

	switch r.Outcome {
	case OutcomeTransitioned:
		metrics.OrderTransitionsTotal.WithLabelValues(string(r.Previous), string(r.Order.State)).Inc()
		log.Info().
			Str("from", string(r.Previous)).
			Str("to", string(r.Order.State)).
			Msg("Состояние заказа изменено")
	case OutcomeCompensated:
		log.Warn().Str("state", string(r.Order.State)).Msg("Сигнал пришёл после отмены заказа, отправлено компенсирующее событие")
	case OutcomeInvalid:
		log.Warn().Str("state", string(r.Order.State)).Msg("Сигнал недопустим для текущего состояния, игнорируем")
	default:
		log.Debug().Str("state", string(r.Order.State)).Msg("Повторный сигнал, состояние не изменено")
	}
}

// wrapRepository оставляет доменные ошибки как есть, остальные помечает ErrRepository.
func wrapRepository(err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentUpdate),
		errors.Is(err, domain.ErrRepository):
		return err
	case isGuardError(err):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrRepository, err)
	}
}

// GuardError — отказ guard, не связанный с БД.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string {
	return "условие перехода не выполнено: " + e.Reason
}

func isGuardError(err error) bool {
	var g *GuardError
	return errors.As(err, &g)
}

// InState — guard: заказ всё ещё в состоянии state.
func InState(state domain.OrderState) Guard {
	return func(order *domain.Order) error {
		if order.State != state {
			return &GuardError{Reason: fmt.Sprintf("ожидалось состояние %s, текущее %s", state, order.State)}
		}
		return nil
	}
}

// Expired — guard: окно оплаты закрыто на момент now.
func Expired(now time.Time, validTime time.Duration) Guard {
	return func(order *domain.Order) error {
		if !order.IsExpired(now, validTime) {
			return &GuardError{Reason: "окно оплаты ещё не истекло"}
		}
		return nil
	}
}
