package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/reservation-order/services/order/internal/domain"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

// recorder собирает порядок вызовов шагов.
type recorder struct {
	calls []string
}

func (r *recorder) step(name string, forwardErr error, compensateErr error) Step {
	return Step{
		Name: name,
		Forward: func(ctx context.Context) error {
			r.calls = append(r.calls, "forward:"+name)
			return forwardErr
		},
		Compensate: func(ctx context.Context) error {
			r.calls = append(r.calls, "compensate:"+name)
			return compensateErr
		},
	}
}

func TestSaga_AllStepsSucceed(t *testing.T) {
	rec := &recorder{}

	err := NewSaga(fastRetry(), rec.step("a", nil, nil), rec.step("b", nil, nil)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"forward:a", "forward:b"}, rec.calls)
}

func TestSaga_CompensatesCompletedStepsInReverse(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	err := NewSaga(fastRetry(),
		rec.step("a", nil, nil),
		rec.step("b", nil, nil),
		rec.step("c", boom, nil),
	).Execute(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrCompensationFailed)
	assert.Equal(t, []string{"forward:a", "forward:b", "forward:c", "compensate:b", "compensate:a"}, rec.calls)
}

func TestSaga_FirstStepFailureHasNothingToCompensate(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	err := NewSaga(fastRetry(), rec.step("a", boom, nil), rec.step("b", nil, nil)).Execute(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"forward:a"}, rec.calls)
}

func TestSaga_CompensationRetriedThenSucceeds(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")

	steps := []Step{
		{
			Name:    "reserve",
			Forward: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				attempts++
				if attempts < 3 {
					return errors.New("временная ошибка")
				}
				return nil
			},
		},
		{Name: "persist", Forward: func(ctx context.Context) error { return boom }},
	}

	err := NewSaga(fastRetry(), steps...).Execute(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrCompensationFailed)
	assert.Equal(t, 3, attempts)
}

func TestSaga_CompensationExhausted(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")

	steps := []Step{
		{
			Name:    "reserve",
			Forward: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				attempts++
				return errors.New("склад недоступен")
			},
		},
		{Name: "persist", Forward: func(ctx context.Context) error { return boom }},
	}

	err := NewSaga(fastRetry(), steps...).Execute(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, domain.ErrCompensationFailed)
	assert.Equal(t, 3, attempts)
}

func TestSaga_CompensationSurvivesCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	compensated := false

	steps := []Step{
		{
			Name:    "reserve",
			Forward: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				compensated = true
				return ctx.Err()
			},
		},
		{
			Name: "persist",
			Forward: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		},
	}

	err := NewSaga(fastRetry(), steps...).Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrCompensationFailed)
	assert.True(t, compensated)
}
