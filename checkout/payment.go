package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sumup/ucp/ledger"
)

// PaymentSubmission points at the buyer's transfer. Exactly one field is set:
// either the reference of a transfer already broadcast, or the signed transfer
// bytes for the merchant to broadcast.
type PaymentSubmission struct {
	TransferReference string
	SignedTransfer    []byte
}

// Verification results reported to metrics.
const (
	verifiedPaid        = "paid"
	verifiedPending     = "pending"
	verifiedMismatch    = "mismatch"
	verifiedUnavailable = "unavailable"
)

// submitGrace is added to the ledger timeout when reserving a session for a
// broadcast, so the reservation outlives the broadcast it guards.
const submitGrace = 30 * time.Second

// SubmitPayment attaches the payment reference and moves the session to
// payment_submitted. Nothing about the payment is trusted at this point.
//
// Signed transfer bytes are broadcast at most once per call, outside any store
// update: the session is reserved first, the bytes are relayed, and the
// returned reference is attached in a second update.
func (m *Machine) SubmitPayment(ctx context.Context, id string, payment PaymentSubmission) (*Session, error) {
	reference := strings.TrimSpace(payment.TransferReference)
	signed := payment.SignedTransfer
	switch {
	case reference == "" && len(signed) == 0:
		return nil, fmt.Errorf("%w: a transfer reference or signed transfer is required", ErrInvalidPayment)
	case reference != "" && len(signed) > 0:
		return nil, fmt.Errorf("%w: provide either a transfer reference or a signed transfer", ErrInvalidPayment)
	case len(signed) > 0:
		return m.broadcast(ctx, id, signed)
	}

	if err := ledger.ValidateReference(reference); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	return m.transition(ctx, OpSubmitPayment, id, func(s *Session, _ time.Time) error {
		if s.PaymentReference != "" {
			return fmt.Errorf("%w: payment reference already attached", ErrInvalidTransition)
		}
		m.attachPayment(s, reference)
		return nil
	})
}

func (m *Machine) attachPayment(s *Session, reference string) {
	if s.PaymentMethod == "" {
		s.PaymentMethod = m.merchant.SupportedPaymentMethods()[0]
	}
	s.PaymentReference = reference
	s.SubmittingUntil = time.Time{}
	s.Status = StatusPaymentSubmitted
	m.log.Info().Str("session", s.ID).Str("payment_reference", reference).
		Int64("amount_due", s.AmountDue).Msg("payment submitted")
}

func (m *Machine) broadcast(ctx context.Context, id string, signed []byte) (*Session, error) {
	_, err := m.transition(ctx, OpSubmitPayment, id, func(s *Session, now time.Time) error {
		if s.PaymentReference != "" {
			return fmt.Errorf("%w: payment reference already attached", ErrInvalidTransition)
		}
		s.SubmittingUntil = now.Add(m.ledgerTimeout + submitGrace)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref, submitErr := m.submit(ctx, signed)
	// The reservation must be settled even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if submitErr != nil {
		if _, err := m.store.Update(ctx, id, func(s *Session) error {
			s.SubmittingUntil = time.Time{}
			return nil
		}); err != nil {
			m.log.Error().Err(err).Str("session", id).Msg("releasing payment reservation")
		}
		return nil, submitErr
	}

	var closed Status
	s, err := m.store.Update(ctx, id, func(s *Session) error {
		closed = ""
		s.UpdatedAt = m.clock().UTC()
		if s.Status != StatusTotalsLocked || s.PaymentReference != "" {
			// The reservation lapsed and the session moved on. Keep the
			// reference so the transfer can be reconciled.
			closed = s.Status
			if s.PaymentReference == "" {
				s.PaymentReference = ref
			}
			s.SubmittingUntil = time.Time{}
			return nil
		}
		m.attachPayment(s, ref)
		return nil
	})
	if err != nil {
		m.log.Error().Err(err).Str("session", id).Str("payment_reference", ref).
			Msg("broadcast transfer could not be attached")
		return nil, err
	}
	if closed != "" {
		m.log.Error().Str("session", id).Str("payment_reference", ref).Str("status", closed.String()).
			Msg("transfer broadcast for a session that is no longer payable")
		return s, fmt.Errorf("%w: session is %s, transfer %s needs reconciliation", ErrSessionClosed, closed, ref)
	}
	return s, nil
}

func (m *Machine) submit(ctx context.Context, signed []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ledgerTimeout)
	defer cancel()
	defer m.metrics.ledgerCall("submit", time.Now())

	ref, err := m.gateway.Submit(ctx, signed)
	switch {
	case errors.Is(err, ledger.ErrRejected):
		return "", fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	case ref == "":
		return "", fmt.Errorf("%w: ledger returned no transfer reference", ErrLedgerUnavailable)
	}
	return ref, nil
}

// Complete verifies the submitted payment on the ledger and, when it covers the
// amount due, completes the session and records its order.
//
// While the transfer is pending, unknown to the ledger or the ledger cannot be
// reached, the session stays in payment_submitted and ErrPaymentPending or
// ErrLedgerUnavailable is returned. A transfer that failed, paid another
// account or paid too little cancels the session and returns
// ErrPaymentMismatch. Completing a completed session returns its order.
func (m *Machine) Complete(ctx context.Context, id string) (*Session, *Order, error) {
	s, err := m.transition(ctx, OpComplete, id, func(s *Session, now time.Time) error {
		if s.Status == StatusCompleted {
			return errAlreadyCompleted
		}
		transfer, err := m.status(ctx, s.PaymentReference)
		if errors.Is(err, ledger.ErrInvalidReference) {
			m.metrics.verification(verifiedMismatch)
			m.log.Warn().Err(err).Str("session", s.ID).Msg("payment reference can never be verified, cancelling session")
			s.Status = StatusCancelled
			s.CancelReason = "payment mismatch: unusable payment reference"
			return commitThen(fmt.Errorf("%w: %v", ErrPaymentMismatch, err))
		}
		if err != nil {
			m.metrics.verification(verifiedUnavailable)
			return err
		}
		if reason, ok := m.verify(s, transfer); !ok {
			if transfer.State == ledger.StatePending || transfer.State == ledger.StateNotFound {
				m.metrics.verification(verifiedPending)
				return fmt.Errorf("%w: transfer %s is %s", ErrPaymentPending, s.PaymentReference, transfer.State)
			}
			m.metrics.verification(verifiedMismatch)
			m.log.Warn().Str("session", s.ID).Str("payment_reference", s.PaymentReference).
				Str("reason", reason).Msg("payment mismatch, cancelling session")
			s.Status = StatusCancelled
			s.CancelReason = "payment mismatch: " + reason
			return commitThen(fmt.Errorf("%w: %s", ErrPaymentMismatch, reason))
		}

		order, err := m.finalizer.Finalize(s, transfer, now)
		if err != nil {
			return err
		}
		if paid := order.AmountPaid; paid > s.AmountDue {
			m.log.Warn().Str("session", s.ID).Int64("amount_paid", paid).Int64("amount_due", s.AmountDue).
				Msg("payment exceeds amount due")
		}
		m.metrics.verification(verifiedPaid)
		s.Order = order
		s.OrderID = order.ID
		s.Status = StatusCompleted
		return nil
	})

	if errors.Is(err, errAlreadyCompleted) {
		return m.completed(ctx, id)
	}
	if err != nil {
		return s, nil, err
	}

	order := *s.Order
	m.log.Info().Str("session", s.ID).Str("order", order.ID).Int64("amount_paid", order.AmountPaid).Msg("checkout completed")
	for _, hook := range m.hooks {
		hook(ctx, order)
	}
	return s, &order, nil
}

// completed loads a session that was already completed together with its order.
func (m *Machine) completed(ctx context.Context, id string) (*Session, *Order, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	order, err := m.store.GetOrder(ctx, s.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return s, order, nil
}

func (m *Machine) status(ctx context.Context, reference string) (ledger.TransferStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ledgerTimeout)
	defer cancel()
	defer m.metrics.ledgerCall("status", time.Now())

	transfer, err := m.gateway.Status(ctx, reference)
	if errors.Is(err, ledger.ErrInvalidReference) {
		return ledger.TransferStatus{}, err
	}
	if err != nil {
		return ledger.TransferStatus{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return transfer, nil
}

// verify checks transfer against s. It returns false with a reason when the
// transfer does not settle the session.
func (m *Machine) verify(s *Session, transfer ledger.TransferStatus) (string, bool) {
	switch transfer.State {
	case ledger.StateFinalized:
	case ledger.StateFailed:
		return fmt.Sprintf("transfer failed on ledger: %s", transfer.Result), false
	default:
		return string(transfer.State), false
	}
	paid := transfer.AmountTo(s.MerchantAccount)
	switch {
	case s.AmountDue <= 0:
		return fmt.Sprintf("locked amount due %d is not payable", s.AmountDue), false
	case paid == 0:
		return fmt.Sprintf("transfer did not credit merchant account %s", s.MerchantAccount), false
	case paid < s.AmountDue:
		return fmt.Sprintf("paid %d, due %d", paid, s.AmountDue), false
	}
	return "", true
}
