package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	for _, s := range AllStates {
		if IsPaymentCompleted(s) {
			assert.NotEqual(t, StateCreated, s, "оплаченный заказ не может быть CREATED")
		}
		if IsStockOccupied(s) {
			assert.NotEqual(t, StateCreated, s)
		}
	}

	assert.True(t, IsPayableState(StateCreated))
	assert.True(t, IsPayableState(StateStockConfirmed))
	assert.False(t, IsPayableState(StatePaymentCompleted))

	assert.True(t, IsStockOccupied(StateCompleted))
	assert.False(t, IsStockOccupied(StatePaymentCompleted))

	assert.True(t, IsPaymentCompleted(StateCompleted))
	assert.False(t, IsPaymentCompleted(StateStockConfirmed))
	assert.False(t, OrderState("UNKNOWN").IsValid())
}

func TestCanTransition_TerminalStates(t *testing.T) {
	for _, from := range []OrderState{StateCompleted, StateCanceled, StateError} {
		assert.True(t, from.IsTerminal())
		for _, to := range AllStates {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderState
		allowed  bool
	}{
		{StateCreated, StateStockConfirmed, true},
		{StateCreated, StatePaymentCompleted, true},
		{StateCreated, StateCanceled, true},
		{StateCreated, StateError, true},
		{StateCreated, StateCompleted, false},
		{StateStockConfirmed, StateCompleted, true},
		{StateStockConfirmed, StatePaymentCompleted, false},
		{StateStockConfirmed, StateCreated, false},
		{StatePaymentCompleted, StateCompleted, true},
		{StatePaymentCompleted, StateStockConfirmed, false},
		{StatePaymentCompleted, StateCanceled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		current OrderState
		signal  Signal
		want    Decision
	}{
		{"списание подтверждено в CREATED", StateCreated, SignalDeductionCompleted, Decision{Kind: DecisionTransition, Target: StateStockConfirmed}},
		{"списание после оплаты завершает заказ", StatePaymentCompleted, SignalDeductionCompleted, Decision{Kind: DecisionTransition, Target: StateCompleted}},
		{"дубль списания", StateStockConfirmed, SignalDeductionCompleted, Decision{Kind: DecisionNoop}},
		{"списание после отмены", StateCanceled, SignalDeductionCompleted, Decision{Kind: DecisionCompensate, Compensation: CompensationDeductionAfterCancel}},
		{"списание после ошибки", StateError, SignalDeductionCompleted, Decision{Kind: DecisionCompensate, Compensation: CompensationDeductionAfterCancel}},
		{"ошибка списания в CREATED", StateCreated, SignalDeductionFailed, Decision{Kind: DecisionTransition, Target: StateError}},
		{"ошибка списания после оплаты", StatePaymentCompleted, SignalDeductionFailed, Decision{Kind: DecisionTransition, Target: StateError}},
		{"ошибка списания после подтверждения", StateStockConfirmed, SignalDeductionFailed, Decision{Kind: DecisionInvalid}},
		{"ошибка списания после отмены", StateCanceled, SignalDeductionFailed, Decision{Kind: DecisionNoop}},
		{"оплата в CREATED", StateCreated, SignalPaymentCompleted, Decision{Kind: DecisionTransition, Target: StatePaymentCompleted}},
		{"оплата после списания", StateStockConfirmed, SignalPaymentCompleted, Decision{Kind: DecisionTransition, Target: StateCompleted}},
		{"дубль оплаты", StateCompleted, SignalPaymentCompleted, Decision{Kind: DecisionNoop}},
		{"оплата после отмены", StateCanceled, SignalPaymentCompleted, Decision{Kind: DecisionCompensate, Compensation: CompensationPaymentCompletedAfterCancel}},
		{"отмена оплаты в CREATED", StateCreated, SignalPaymentCanceled, Decision{Kind: DecisionTransition, Target: StateCanceled}},
		{"отмена оплаты после оплаты", StatePaymentCompleted, SignalPaymentCanceled, Decision{Kind: DecisionTransition, Target: StateCanceled}},
		{"отмена оплаты в CANCELED", StateCanceled, SignalPaymentCanceled, Decision{Kind: DecisionNoop}},
		{"отмена оплаты в COMPLETED", StateCompleted, SignalPaymentCanceled, Decision{Kind: DecisionInvalid}},
		{"неизвестный сигнал", StateCreated, Signal("unknown"), Decision{Kind: DecisionInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.current, tt.signal))
		})
	}
}

func TestDecide_TransitionsAreLegal(t *testing.T) {
	for _, sig := range []Signal{SignalDeductionCompleted, SignalDeductionFailed, SignalPaymentCompleted, SignalPaymentCanceled} {
		for _, s := range AllStates {
			d := Decide(s, sig)
			if d.Kind == DecisionTransition {
				assert.True(t, CanTransition(s, d.Target), "%s: %s -> %s", sig, s, d.Target)
			}
		}
	}
}
