package domain

// Signal — входящее асинхронное событие от Inventory или Payment Service.
type Signal string

const (
	SignalDeductionCompleted Signal = "deduction_completed"
	SignalDeductionFailed    Signal = "deduction_failed"
	SignalPaymentCompleted   Signal = "payment_completed"
	SignalPaymentCanceled    Signal = "payment_canceled"
)

// Compensation — компенсирующее событие для сигнала, пришедшего после отмены.
type Compensation string

const (
	CompensationNone                        Compensation = ""
	CompensationDeductionAfterCancel        Compensation = "deduction_after_cancel"
	CompensationPaymentCompletedAfterCancel Compensation = "payment_completed_after_cancel"
)

// DecisionKind — вид реакции на сигнал.
type DecisionKind int

const (
	// DecisionNoop — сигнал дублирован или запоздал, ничего не делаем.
	DecisionNoop DecisionKind = iota
	// DecisionTransition — переводим заказ в Target.
	DecisionTransition
	// DecisionCompensate — состояние не меняется, публикуем Compensation.
	DecisionCompensate
	// DecisionInvalid — сигнал недопустим для текущего состояния, пропускаем.
	DecisionInvalid
)

// Decision — результат разрешения сигнала для текущего состояния.
type Decision struct {
	Kind         DecisionKind
	Target       OrderState
	Compensation Compensation
}

func transition(to OrderState) Decision { return Decision{Kind: DecisionTransition, Target: to} }

func compensate(c Compensation) Decision {
	return Decision{Kind: DecisionCompensate, Compensation: c}
}

var (
	noop    = Decision{Kind: DecisionNoop}
	invalid = Decision{Kind: DecisionInvalid}
)

// signalTable — реакция на каждый сигнал в каждом состоянии.
var signalTable = map[Signal]map[OrderState]Decision{
	SignalDeductionCompleted: {
		StateCreated:          transition(StateStockConfirmed),
		StateStockConfirmed:   noop,
		StatePaymentCompleted: transition(StateCompleted),
		StateCompleted:        noop,
		StateCanceled:         compensate(CompensationDeductionAfterCancel),
		StateError:            compensate(CompensationDeductionAfterCancel),
	},
	SignalDeductionFailed: {
		StateCreated:          transition(StateError),
		StateStockConfirmed:   invalid,
		StatePaymentCompleted: transition(StateError),
		StateCompleted:        invalid,
		StateCanceled:         noop,
		StateError:            noop,
	},
	SignalPaymentCompleted: {
		StateCreated:          transition(StatePaymentCompleted),
		StateStockConfirmed:   transition(StateCompleted),
		StatePaymentCompleted: noop,
		StateCompleted:        noop,
		StateCanceled:         compensate(CompensationPaymentCompletedAfterCancel),
		StateError:            compensate(CompensationPaymentCompletedAfterCancel),
	},
	SignalPaymentCanceled: {
		StateCreated:          transition(StateCanceled),
		StateStockConfirmed:   transition(StateCanceled),
		StatePaymentCompleted: transition(StateCanceled),
		StateCompleted:        invalid,
		StateCanceled:         noop,
		StateError:            noop,
	},
}

// IsValid проверяет, что сигнал известен.
func (s Signal) IsValid() bool {
	_, ok := signalTable[s]
	return ok
}

// Decide возвращает реакцию на сигнал в текущем состоянии.
// Неизвестные сигнал или состояние дают DecisionInvalid.
func Decide(current OrderState, sig Signal) Decision {
	row, ok := signalTable[sig]
	if !ok {
		return invalid
	}
	d, ok := row[current]
	if !ok {
		return invalid
	}
	return d
}
