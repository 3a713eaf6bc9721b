package domain

// OrderState — состояние заказа в жизненном цикле резервирования.
type OrderState string

const (
	// StateCreated — товар зарезервирован, заказ ждёт подтверждений.
	StateCreated OrderState = "CREATED"

	// StateStockConfirmed — склад подтвердил списание.
	StateStockConfirmed OrderState = "STOCK_CONFIRMED"

	// StatePaymentCompleted — оплата подтверждена, ждём подтверждение склада.
	StatePaymentCompleted OrderState = "PAYMENT_COMPLETED"

	// StateCompleted — склад и оплата подтверждены.
	StateCompleted OrderState = "COMPLETED"

	// StateCanceled — заказ отменён (истёк или отменена оплата).
	StateCanceled OrderState = "CANCELED"

	// StateError — заказ не может быть выполнен.
	StateError OrderState = "ERROR"
)

// AllStates перечисляет все состояния заказа.
var AllStates = []OrderState{
	StateCreated,
	StateStockConfirmed,
	StatePaymentCompleted,
	StateCompleted,
	StateCanceled,
	StateError,
}

// PayableStates — состояния, в которых заказ ещё можно оплатить.
var PayableStates = []OrderState{StateCreated, StateStockConfirmed}

// PaymentCompletedStates — «одобренные» заказы для read API.
var PaymentCompletedStates = []OrderState{StatePaymentCompleted, StateCompleted}

// IsValid проверяет, что значение входит в закрытое множество состояний.
func (s OrderState) IsValid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для COMPLETED, CANCELED и ERROR.
func (s OrderState) IsTerminal() bool {
	return s == StateCompleted || s == StateCanceled || s == StateError
}

// IsPayableState возвращает true, если состояние допускает оплату.
func IsPayableState(s OrderState) bool {
	return s == StateCreated || s == StateStockConfirmed
}

// IsStockOccupied возвращает true, если списание склада подтверждено.
func IsStockOccupied(s OrderState) bool {
	return s == StateStockConfirmed || s == StateCompleted
}

// IsPaymentCompleted возвращает true, если оплата подтверждена.
func IsPaymentCompleted(s OrderState) bool {
	return s == StatePaymentCompleted || s == StateCompleted
}

// allowedTransitions определяет допустимые переходы состояний.
// Терминальные состояния в таблице отсутствуют.
var allowedTransitions = map[OrderState][]OrderState{
	StateCreated:          {StateStockConfirmed, StatePaymentCompleted, StateCanceled, StateError},
	StateStockConfirmed:   {StateCompleted, StateCanceled, StateError},
	StatePaymentCompleted: {StateCompleted, StateCanceled, StateError},
}

// CanTransition проверяет, допустим ли переход from -> to.
func CanTransition(from, to OrderState) bool {
	for _, st := range allowedTransitions[from] {
		if st == to {
			return true
		}
	}
	return false
}
