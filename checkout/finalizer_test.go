package checkout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ucp/ledger"
	"github.com/sumup/ucp/pricing"
)

func TestFinalizerFinalize(t *testing.T) {
	f := NewFinalizer("https://shop.example.com/", ledger.Mainnet)
	f.newID = func() string { return "ord_1" }
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	s := &Session{
		ID:               "cs_1",
		Status:           StatusPaymentSubmitted,
		MerchantAccount:  "0.0.5005",
		Currency:         pricing.HBAR,
		Totals:           pricing.Totals{Subtotal: 100, Total: 100},
		AmountDue:        100,
		PaymentReference: "0.0.1001@1.2",
	}
	transfer := ledger.TransferStatus{
		State:   ledger.StateFinalized,
		Credits: []ledger.Credit{{Account: "0.0.5005", Amount: 60}, {Account: "0.0.5005", Amount: 40}},
	}

	order, err := f.Finalize(s, transfer, now)
	require.NoError(t, err)
	assert.Equal(t, &Order{
		ID:               "ord_1",
		SessionID:        "cs_1",
		Totals:           s.Totals,
		Currency:         "HBAR",
		AmountDue:        100,
		AmountPaid:       100,
		PaymentReference: "0.0.1001@1.2",
		PermalinkURL:     "https://shop.example.com/orders/ord_1",
		ReceiptURL:       "https://hashscan.io/mainnet/transaction/0.0.1001@1.2",
		CreatedAt:        now.UTC(),
	}, order)
	assert.Empty(t, s.OrderID)
	assert.Nil(t, s.Order)
}

func TestFinalizerRefusesSecondOrder(t *testing.T) {
	f := NewFinalizer("https://shop.example.com", ledger.Testnet)
	s := &Session{ID: "cs_1", Status: StatusPaymentSubmitted, OrderID: "ord_1", Order: &Order{ID: "ord_1"}}

	_, err := f.Finalize(s, ledger.TransferStatus{}, time.Now())
	assert.ErrorIs(t, err, ErrOrderImmutable)

	s = &Session{ID: "cs_2", Status: StatusTotalsLocked}
	_, err = f.Finalize(s, ledger.TransferStatus{}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheckOrderWrite(t *testing.T) {
	order := &Order{ID: "ord_1", SessionID: "cs_1"}
	tests := map[string]struct {
		before, after *Session
		created       bool
		err           error
	}{
		"no order": {
			before: &Session{}, after: &Session{},
		},
		"new order": {
			before:  &Session{Status: StatusPaymentSubmitted},
			after:   &Session{Status: StatusCompleted, OrderID: "ord_1", Order: order},
			created: true,
		},
		"order without completion": {
			before: &Session{Status: StatusPaymentSubmitted},
			after:  &Session{Status: StatusPaymentSubmitted, OrderID: "ord_1", Order: order},
			err:    ErrOrderImmutable,
		},
		"order replaced": {
			before: &Session{Status: StatusCompleted, OrderID: "ord_1", Order: order},
			after:  &Session{Status: StatusCompleted, OrderID: "ord_2", Order: &Order{ID: "ord_2"}},
			err:    ErrOrderImmutable,
		},
		"order dropped": {
			before: &Session{Status: StatusCompleted, OrderID: "ord_1", Order: order},
			after:  &Session{Status: StatusCompleted},
			err:    ErrOrderImmutable,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			created, err := CheckOrderWrite(tc.before, tc.after)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.created, created)
		})
	}
}

func TestCanRun(t *testing.T) {
	assert.True(t, CanRun(OpApplyDiscount, StatusDiscountApplied))
	assert.True(t, CanRun(OpComplete, StatusCompleted))
	assert.False(t, CanRun(OpLockTotals, StatusItemsSelected))
	assert.False(t, CanRun(OpCancel, StatusCompleted))
	for _, terminal := range []Status{StatusCompleted, StatusExpired, StatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, terminal.Expires())
	}
	assert.False(t, StatusPaymentSubmitted.Expires())
}

func TestSessionPurgeable(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)
	old := now.Add(-2 * time.Hour)

	tests := map[string]struct {
		session *Session
		want    bool
	}{
		"old cancelled":          {&Session{Status: StatusCancelled, UpdatedAt: old}, true},
		"recent cancelled":       {&Session{Status: StatusCancelled, UpdatedAt: now}, false},
		"old expired":            {&Session{Status: StatusExpired, ExpiresAt: old}, true},
		"lazily expired":         {&Session{Status: StatusItemsSelected, ExpiresAt: old}, true},
		"open":                   {&Session{Status: StatusItemsSelected, ExpiresAt: now.Add(time.Hour)}, false},
		"completed":              {&Session{Status: StatusCompleted, UpdatedAt: old, ExpiresAt: old}, false},
		"payment submitted":      {&Session{Status: StatusPaymentSubmitted, ExpiresAt: old}, false},
		"cancelled with payment": {&Session{Status: StatusCancelled, UpdatedAt: old, PaymentReference: "0.0.1@1.1"}, false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.session.Purgeable(now, cutoff))
		})
	}
}
