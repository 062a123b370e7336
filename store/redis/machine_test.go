package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ucp/checkout"
	"github.com/sumup/ucp/ledger"
	"github.com/sumup/ucp/pricing"
)

// writingGateway writes to the session while a transfer is being broadcast,
// the window in which a WATCH conflict would otherwise rerun the broadcast.
type writingGateway struct {
	*ledger.Memory
	submits atomic.Int32
	during  func()
}

func (g *writingGateway) Submit(ctx context.Context, signed []byte) (string, error) {
	g.submits.Add(1)
	g.during()
	return g.Memory.Submit(ctx, signed)
}

func TestMachineBroadcastsOnceDespiteConcurrentWrites(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	rail := ledger.NewMemory()
	rail.Fund("0.0.1001", 1_000_000)
	gw := &writingGateway{Memory: rail}
	machine := checkout.NewMachine(checkout.Merchant{
		ID:             "m1",
		PaymentAccount: "0.0.5005",
		Catalog:        pricing.NewCatalog(pricing.Product{SKU: "widget", Title: "Widget", UnitPrice: 100000, Stock: -1}),
		Fulfillment:    []pricing.FulfillmentOption{{ID: "email", Title: "Email", Type: "digital"}},
	}, store, gw, checkout.WithClock(func() time.Time { return now }))

	s, err := machine.Create(ctx, checkout.CreateParams{Items: []checkout.ItemRequest{{SKU: "widget", Quantity: 1}}})
	require.NoError(t, err)
	_, err = machine.SelectFulfillment(ctx, s.ID, checkout.Address{Country: "SE"}, "email")
	require.NoError(t, err)
	_, err = machine.LockTotals(ctx, s.ID)
	require.NoError(t, err)

	var busy error
	gw.during = func() {
		_, busy = machine.SelectPaymentMethod(ctx, s.ID, checkout.PaymentMethodHedera)
		_, err := store.Update(ctx, s.ID, func(s *checkout.Session) error {
			s.Customer.Name = "Ada"
			return nil
		})
		require.NoError(t, err)
	}

	s, err = machine.SubmitPayment(ctx, s.ID, checkout.PaymentSubmission{
		SignedTransfer: []byte(`{"from":"0.0.1001","to":"0.0.5005","amount":100000}`),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, busy, checkout.ErrSessionBusy)
	assert.Equal(t, int32(1), gw.submits.Load())
	assert.Equal(t, checkout.StatusPaymentSubmitted, s.Status)
	assert.Equal(t, "Ada", s.Customer.Name)

	balance, err := rail.Balance(ctx, "0.0.5005")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance)
}
