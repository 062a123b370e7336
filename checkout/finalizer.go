package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumup/ucp/ledger"
)

// Finalizer turns a verified session into its order.
type Finalizer struct {
	permalinkBase string
	network       string
	newID         func() string
}

// NewFinalizer returns a Finalizer that links orders under permalinkBase and
// receipts on the explorer of network.
func NewFinalizer(permalinkBase, network string) *Finalizer {
	return &Finalizer{
		permalinkBase: strings.TrimRight(permalinkBase, "/"),
		network:       network,
		newID:         func() string { return "ord_" + uuid.NewString() },
	}
}

// Finalize builds the order for s from the verified transfer. It does not
// modify s. A session that already has an order is refused.
func (f *Finalizer) Finalize(s *Session, transfer ledger.TransferStatus, now time.Time) (*Order, error) {
	if s.Order != nil || s.OrderID != "" {
		return nil, fmt.Errorf("%w: session %s has order %s", ErrOrderImmutable, s.ID, s.OrderID)
	}
	if s.Status != StatusPaymentSubmitted {
		return nil, fmt.Errorf("%w: cannot finalize session in %s", ErrInvalidTransition, s.Status)
	}

	id := f.newID()
	return &Order{
		ID:               id,
		SessionID:        s.ID,
		Totals:           s.Totals,
		Currency:         s.Currency.Code,
		AmountDue:        s.AmountDue,
		AmountPaid:       transfer.AmountTo(s.MerchantAccount),
		PaymentReference: s.PaymentReference,
		PermalinkURL:     f.permalinkBase + "/orders/" + id,
		ReceiptURL:       ledger.ExplorerURL(f.network, s.PaymentReference),
		CreatedAt:        now.UTC(),
	}, nil
}
