package checkout

import (
	"errors"
)

// Validation errors. The session is left exactly as it was.
var (
	ErrInvalidMerchantConfig    = errors.New("merchant has no payment account configured")
	ErrUnknownSKU               = errors.New("unknown sku")
	ErrInsufficientInventory    = errors.New("insufficient inventory")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidDiscountCode      = errors.New("invalid discount code")
	ErrUnsupportedDestination   = errors.New("merchant cannot ship to destination")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidPayment           = errors.New("invalid payment submission")
	// ErrNothingDue rejects locking a session whose total is zero: a ledger
	// settled checkout needs a transfer to verify.
	ErrNothingDue = errors.New("nothing to pay")
)

// Lookup and lifecycle errors.
var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionExists   = errors.New("checkout session already exists")
	ErrOrderNotFound   = errors.New("order not found")
	ErrSessionExpired  = errors.New("checkout session expired")
	ErrSessionClosed   = errors.New("checkout session is closed")
)

// ErrSessionBusy is returned when another transition holds the session.
var ErrSessionBusy = errors.New("checkout session busy")

// Transient payment errors. The session stays in payment_submitted and
// Complete can be retried.
var (
	ErrPaymentPending    = errors.New("payment not yet finalized on ledger")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// ErrPaymentMismatch is permanent: the transfer is final but wrong. The session
// is cancelled and must not be retried.
var ErrPaymentMismatch = errors.New("payment mismatch")

// Invariant violations are programming errors, not business outcomes.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrOrderImmutable    = errors.New("order already finalized")
	ErrTotalsOutOfRange  = errors.New("totals out of range")
)

// IsValidation reports whether err is a caller input problem.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidMerchantConfig, ErrUnknownSKU, ErrInsufficientInventory, ErrInvalidQuantity,
		ErrInvalidDiscountCode, ErrUnsupportedDestination, ErrUnsupportedPaymentMethod, ErrInvalidPayment,
		ErrNothingDue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSessionBusy) || errors.Is(err, ErrPaymentPending) || errors.Is(err, ErrLedgerUnavailable)
}

// IsInvariantViolation reports whether err signals a broken caller contract.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrOrderImmutable) || errors.Is(err, ErrTotalsOutOfRange)
}

// committed carries an error that is reported only after the session change
// that accompanies it has been stored.
type committed struct {
	err error
}

func (c committed) Error() string { return c.err.Error() }
func (c committed) Unwrap() error { return c.err }

func commitThen(err error) error {
	return committed{err: err}
}

// errAlreadyCompleted aborts a Complete call that lost the race to another one.
var errAlreadyCompleted = errors.New("checkout session already completed")
