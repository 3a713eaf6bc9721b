package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/reservation-order/services/order/internal/domain"
)

func TestScheduler_InvalidSpec(t *testing.T) {
	e := newEnv(t, nil)

	err := NewScheduler(e.reaper, "not a cron").Run(context.Background())
	assert.Error(t, err)
}

func TestScheduler_RunsReaperAndStops(t *testing.T) {
	e := newEnv(t, nil)
	putOrder(e.db, "order-1", "product-1", 3, domain.StateCreated, t0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(e.reaper, "* * * * * *").Run(ctx)
	}()

	require.Eventually(t, func() bool {
		o, ok := e.db.Order("order-1")
		return ok && o.State == domain.StateCanceled
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("планировщик не остановился")
	}
}
