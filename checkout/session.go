package checkout

import (
	"time"

	"github.com/sumup/ucp/pricing"
)

// Customer identifies the buyer.
type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Address is a fulfillment destination.
type Address struct {
	Name       string `json:"name"`
	LineOne    string `json:"line_one"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	// Country is an ISO-3166 alpha-2 code.
	Country string `json:"country"`
}

// AppliedDiscount is the discount rule as it was when the code was applied.
type AppliedDiscount struct {
	Rule      pricing.DiscountRule `json:"rule"`
	AppliedAt time.Time            `json:"applied_at"`
}

// FulfillmentSelection is the chosen option together with its destination.
type FulfillmentSelection struct {
	Destination Address                   `json:"destination"`
	Option      pricing.FulfillmentOption `json:"option"`
}

// Session is the persisted checkout record.
type Session struct {
	ID              string           `json:"id"`
	Status          Status           `json:"status"`
	MerchantID      string           `json:"merchant_id"`
	MerchantAccount string           `json:"merchant_account"`
	Currency        pricing.Currency `json:"currency"`
	Customer        Customer         `json:"customer"`

	LineItems     []pricing.LineItem    `json:"line_items"`
	Discount      *AppliedDiscount      `json:"discount,omitempty"`
	Fulfillment   *FulfillmentSelection `json:"fulfillment,omitempty"`
	PaymentMethod string                `json:"payment_method,omitempty"`

	// Totals is a preview until the session reaches totals_locked; from then on
	// it is frozen and AmountDue equals Totals.Total.
	Totals    pricing.Totals `json:"totals"`
	AmountDue int64          `json:"amount_due"`

	// PaymentReference is attached at most once, by SubmitPayment.
	PaymentReference string `json:"payment_reference,omitempty"`
	// SubmittingUntil reserves the session while signed transfer bytes are
	// being broadcast. Until then no other transition runs and the session
	// does not expire.
	SubmittingUntil time.Time `json:"submitting_until,omitzero"`
	OrderID          string `json:"order_id,omitempty"`
	Order            *Order `json:"order,omitempty"`
	CancelReason     string `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Version is incremented by the store on every committed update.
	Version int64 `json:"version"`
}

// Order is the immutable outcome of a completed session.
type Order struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	Totals           pricing.Totals `json:"totals"`
	Currency         string         `json:"currency"`
	AmountDue        int64          `json:"amount_due"`
	AmountPaid       int64          `json:"amount_paid"`
	PaymentReference string         `json:"payment_reference"`
	PermalinkURL     string         `json:"permalink_url"`
	ReceiptURL       string         `json:"receipt_url"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Locked reports whether the totals of s are frozen.
func (s *Session) Locked() bool {
	switch s.Status {
	case StatusTotalsLocked, StatusPaymentSubmitted, StatusCompleted:
		return true
	}
	return false
}

// ExpiredAt reports whether s should be treated as expired at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.Status.Expires() && !now.Before(s.ExpiresAt) && !s.Submitting(now)
}

// Submitting reports whether a broadcast holds the session at now.
func (s *Session) Submitting(now time.Time) bool {
	return now.Before(s.SubmittingUntil)
}

// Purgeable reports whether s may be deleted once cutoff has passed. Sessions
// that reference a payment are kept so the transfer stays traceable.
func (s *Session) Purgeable(now, cutoff time.Time) bool {
	if s.PaymentReference != "" {
		return false
	}
	switch {
	case s.Status == StatusCancelled:
		return s.UpdatedAt.Before(cutoff)
	case s.Status == StatusExpired, s.ExpiredAt(now):
		return s.ExpiresAt.Before(cutoff)
	}
	return false
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.LineItems = append([]pricing.LineItem(nil), s.LineItems...)
	if s.Discount != nil {
		d := *s.Discount
		if d.Rule.ExpiresAt != nil {
			at := *d.Rule.ExpiresAt
			d.Rule.ExpiresAt = &at
		}
		out.Discount = &d
	}
	if s.Fulfillment != nil {
		f := *s.Fulfillment
		f.Option.Countries = append([]string(nil), f.Option.Countries...)
		out.Fulfillment = &f
	}
	if s.Order != nil {
		o := *s.Order
		out.Order = &o
	}
	return &out
}

func (s *Session) discountRule() *pricing.DiscountRule {
	if s.Discount == nil {
		return nil
	}
	return &s.Discount.Rule
}

func (s *Session) fulfillmentOption() *pricing.FulfillmentOption {
	if s.Fulfillment == nil {
		return nil
	}
	return &s.Fulfillment.Option
}

func (s *Session) recompute() {
	s.Totals = pricing.ComputeTotals(s.LineItems, s.discountRule(), s.fulfillmentOption())
}
