package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ucp/checkout"
)

func TestJanitorSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	abandoned, err := h.machine.Create(ctx, checkout.CreateParams{})
	require.NoError(t, err)
	cancelled, err := h.machine.Create(ctx, checkout.CreateParams{})
	require.NoError(t, err)
	_, err = h.machine.Cancel(ctx, cancelled.ID, "")
	require.NoError(t, err)

	paid := submitted(t, h)
	h.ledger.Record(finalizedTransfer(transferRef, merchantAccount, 100000))
	_, _, err = h.machine.Complete(ctx, paid.ID)
	require.NoError(t, err)

	// Sessions above were stamped with a fixed date well in the past.
	j := checkout.NewJanitor(h.store, time.Hour, time.Minute, zerolog.Nop())
	n, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = h.machine.Get(ctx, abandoned.ID)
	assert.ErrorIs(t, err, checkout.ErrSessionNotFound)
	_, err = h.machine.Get(ctx, cancelled.ID)
	assert.ErrorIs(t, err, checkout.ErrSessionNotFound)
	got, err := h.machine.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusCompleted, got.Status)
}

func TestJanitorRunStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checkout.NewJanitor(h.store, time.Hour, time.Millisecond, zerolog.Nop()).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
