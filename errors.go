package ucp

import (
	"errors"
	"net/http"
	"time"

	"github.com/sumup/ucp/checkout"
)

// ErrorType mirrors the error.type field.
type ErrorType string

const (
	InvalidRequest     ErrorType = "invalid_request"     // Missing or malformed field.
	RequestConflict    ErrorType = "request_conflict"    // Request does not fit the current session state.
	PaymentFailed      ErrorType = "payment_failed"      // Ledger transfer does not settle the session.
	ProcessingError    ErrorType = "processing_error"    // Downstream ledger or network failure.
	ServiceUnavailable ErrorType = "service_unavailable" // Temporary outage or maintenance.
)

// ErrorCode is a machine-readable identifier for the specific failure.
type ErrorCode string

const (
	DuplicateRequest     ErrorCode = "duplicate_request"     // Same idempotency key is still being processed.
	IdempotencyConflict  ErrorCode = "idempotency_conflict"  // Same idempotency key but different parameters.
	InvalidSignature     ErrorCode = "invalid_signature"     // Signature is missing or does not match the payload.
	SignatureRequired    ErrorCode = "signature_required"    // Signed requests are required but headers were missing.
	StaleTimestamp       ErrorCode = "stale_timestamp"       // Timestamp skew exceeded the allowed window.
	MissingAuthorization ErrorCode = "missing_authorization" // Authorization header missing.
	InvalidAuthorization ErrorCode = "invalid_authorization" // Authorization header malformed or API key invalid.

	NotFound                 ErrorCode = "not_found"
	UnknownSKU               ErrorCode = "unknown_sku"
	OutOfStock               ErrorCode = "out_of_stock"
	InvalidQuantity          ErrorCode = "invalid_quantity"
	InvalidDiscountCode      ErrorCode = "invalid_discount_code"
	UnsupportedDestination   ErrorCode = "unsupported_destination"
	UnsupportedPaymentMethod ErrorCode = "unsupported_payment_method"
	InvalidPayment           ErrorCode = "invalid_payment"
	NothingDue               ErrorCode = "nothing_due"
	SessionExpired           ErrorCode = "session_expired"
	SessionClosed            ErrorCode = "session_closed"
	SessionBusy              ErrorCode = "session_busy"
	InvalidStateTransition   ErrorCode = "invalid_state_transition"
	OrderExists              ErrorCode = "order_exists"
	InvalidTotals            ErrorCode = "invalid_totals"
	PaymentPending           ErrorCode = "payment_pending"
	PaymentMismatch          ErrorCode = "payment_mismatch"
	LedgerUnavailable        ErrorCode = "ledger_unavailable"
	MerchantMisconfigured    ErrorCode = "merchant_misconfigured"
)

// Error represents a structured error payload.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Param   *string   `json:"param,omitempty"`

	status     int           `json:"-"`
	retryAfter time.Duration `json:"-"`
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StatusCode returns the HTTP status the error is written with.
func (e *Error) StatusCode() int {
	if e == nil || e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

// RetryAfter returns the duration clients should wait before retrying.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

type errorOption func(*Error)

// WithOffendingParam sets the JSON path for the field that triggered the error.
func WithOffendingParam(jsonPath string) errorOption {
	return func(er *Error) {
		er.Param = &jsonPath
	}
}

// WithStatusCode overrides the HTTP status code returned to the client.
func WithStatusCode(status int) errorOption {
	return func(er *Error) {
		er.status = status
	}
}

// WithRetryAfter specifies how long clients should wait before retrying.
func WithRetryAfter(d time.Duration) errorOption {
	return func(er *Error) {
		er.retryAfter = d
	}
}

// NewServiceUnavailableError builds a Service Unavailable error payload.
func NewServiceUnavailableError(message string, opts ...errorOption) *Error {
	return newError(ServiceUnavailable, ErrorCode(ServiceUnavailable), message, append([]errorOption{WithStatusCode(http.StatusServiceUnavailable)}, opts...)...)
}

// NewInvalidRequestError builds a Bad Request error payload.
func NewInvalidRequestError(message string, opts ...errorOption) *Error {
	return newError(InvalidRequest, ErrorCode(InvalidRequest), message, append([]errorOption{WithStatusCode(http.StatusBadRequest)}, opts...)...)
}

// NewProcessingError builds an Internal Server Error payload.
func NewProcessingError(message string, opts ...errorOption) *Error {
	return newError(ProcessingError, ErrorCode(ProcessingError), message, append([]errorOption{WithStatusCode(http.StatusInternalServerError)}, opts...)...)
}

// NewHTTPError allows callers to control the status code explicitly.
func NewHTTPError(status int, typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(typ, code, message, append(opts, WithStatusCode(status))...)
}

// newError builds a typed error payload.
func newError(typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Type:    typ,
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}

// Retry hints for transient checkout failures.
const (
	busyRetryAfter    = time.Second
	pendingRetryAfter = 3 * time.Second
	ledgerRetryAfter  = 5 * time.Second
)

// checkoutErrors maps checkout sentinels onto payloads. Order matters only
// where one error wraps another.
var checkoutErrors = []struct {
	target error
	status int
	typ    ErrorType
	code   ErrorCode
	retry  time.Duration
}{
	{checkout.ErrSessionNotFound, http.StatusNotFound, InvalidRequest, NotFound, 0},
	{checkout.ErrOrderNotFound, http.StatusNotFound, InvalidRequest, NotFound, 0},
	{checkout.ErrUnknownSKU, http.StatusUnprocessableEntity, InvalidRequest, UnknownSKU, 0},
	{checkout.ErrInsufficientInventory, http.StatusUnprocessableEntity, InvalidRequest, OutOfStock, 0},
	{checkout.ErrInvalidQuantity, http.StatusUnprocessableEntity, InvalidRequest, InvalidQuantity, 0},
	{checkout.ErrInvalidDiscountCode, http.StatusUnprocessableEntity, InvalidRequest, InvalidDiscountCode, 0},
	{checkout.ErrUnsupportedDestination, http.StatusUnprocessableEntity, InvalidRequest, UnsupportedDestination, 0},
	{checkout.ErrUnsupportedPaymentMethod, http.StatusUnprocessableEntity, InvalidRequest, UnsupportedPaymentMethod, 0},
	{checkout.ErrInvalidPayment, http.StatusUnprocessableEntity, InvalidRequest, InvalidPayment, 0},
	{checkout.ErrNothingDue, http.StatusUnprocessableEntity, InvalidRequest, NothingDue, 0},
	{checkout.ErrSessionExpired, http.StatusConflict, RequestConflict, SessionExpired, 0},
	{checkout.ErrSessionClosed, http.StatusConflict, RequestConflict, SessionClosed, 0},
	{checkout.ErrInvalidTransition, http.StatusConflict, RequestConflict, InvalidStateTransition, 0},
	{checkout.ErrOrderImmutable, http.StatusConflict, RequestConflict, OrderExists, 0},
	{checkout.ErrTotalsOutOfRange, http.StatusConflict, RequestConflict, InvalidTotals, 0},
	{checkout.ErrSessionBusy, http.StatusConflict, RequestConflict, SessionBusy, busyRetryAfter},
	{checkout.ErrPaymentPending, http.StatusConflict, RequestConflict, PaymentPending, pendingRetryAfter},
	{checkout.ErrPaymentMismatch, http.StatusPaymentRequired, PaymentFailed, PaymentMismatch, 0},
	{checkout.ErrLedgerUnavailable, http.StatusServiceUnavailable, ServiceUnavailable, LedgerUnavailable, ledgerRetryAfter},
	{checkout.ErrInvalidMerchantConfig, http.StatusInternalServerError, ProcessingError, MerchantMisconfigured, 0},
}

// errorFromService converts provider errors into payloads. Unknown errors
// become an opaque processing error.
func errorFromService(err error) *Error {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr
	}
	for _, m := range checkoutErrors {
		if errors.Is(err, m.target) {
			return NewHTTPError(m.status, m.typ, m.code, err.Error(), WithRetryAfter(m.retry))
		}
	}
	return NewProcessingError("internal server error")
}

// errorFromValidation converts request validation failures into payloads.
func errorFromValidation(err error) *Error {
	var vErr *validationError
	if errors.As(err, &vErr) {
		return NewInvalidRequestError(vErr.Error(), WithOffendingParam("$."+vErr.param))
	}
	return NewInvalidRequestError(err.Error())
}
