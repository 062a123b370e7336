// Package checkout implements the merchant side of a ledger-settled checkout:
// a session state machine that prices a cart, locks the amount due and only
// completes once the ledger itself confirms the payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sumup/ucp/ledger"
	"github.com/sumup/ucp/pricing"
)

const (
	defaultSessionTTL    = 30 * time.Minute
	defaultLedgerTimeout = 10 * time.Second
)

// Machine drives checkout sessions for one merchant. Several machines may share
// a Store; each only sees the sessions it created.
type Machine struct {
	merchant      Merchant
	store         Store
	gateway       ledger.Gateway
	finalizer     *Finalizer
	clock         func() time.Time
	ttl           time.Duration
	ledgerTimeout time.Duration
	log           zerolog.Logger
	metrics       *Metrics
	hooks         []func(context.Context, Order)
	newID         func() string
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithSessionTTL sets how long a session stays open before it expires.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLedgerTimeout bounds every ledger gateway call.
func WithLedgerTimeout(timeout time.Duration) Option {
	return func(m *Machine) {
		if timeout > 0 {
			m.ledgerTimeout = timeout
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Machine) {
		m.log = logger
	}
}

// WithMetrics reports to metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// WithOrderHook registers fn to run after an order has been stored.
func WithOrderHook(fn func(ctx context.Context, order Order)) Option {
	return func(m *Machine) {
		if fn != nil {
			m.hooks = append(m.hooks, fn)
		}
	}
}

// WithIDGenerator overrides how session ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewMachine returns a Machine for merchant. The merchant is copied; later
// changes to it have no effect. An empty network defaults to testnet and an
// empty currency to HBAR.
func NewMachine(merchant Merchant, store Store, gateway ledger.Gateway, opts ...Option) *Machine {
	merchant.PaymentMethods = merchant.SupportedPaymentMethods()
	if merchant.Network == "" {
		merchant.Network = ledger.Testnet
	}
	if merchant.Currency.Code == "" {
		merchant.Currency = pricing.HBAR
	}
	merchant.Fulfillment = append([]pricing.FulfillmentOption(nil), merchant.Fulfillment...)
	m := &Machine{
		merchant:      merchant,
		store:         store,
		gateway:       gateway,
		finalizer:     NewFinalizer(merchant.PermalinkBaseURL, merchant.Network),
		clock:         time.Now,
		ttl:           defaultSessionTTL,
		ledgerTimeout: defaultLedgerTimeout,
		log:           zerolog.Nop(),
		newID:         func() string { return "cs_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("merchant", merchant.ID).Logger()
	return m
}

// Merchant returns the configuration the machine serves.
func (m *Machine) Merchant() Merchant {
	return m.merchant
}

// ItemRequest asks for quantity units of a catalog SKU.
type ItemRequest struct {
	SKU      string
	Quantity int64
}

// CreateParams are the inputs of Create.
type CreateParams struct {
	Customer Customer
	Items    []ItemRequest
}

// Create opens a session. Items, if any, are added in the same step.
func (m *Machine) Create(ctx context.Context, params CreateParams) (s *Session, err error) {
	defer func() { m.metrics.transition(OpCreate, err) }()

	if strings.TrimSpace(m.merchant.PaymentAccount) == "" {
		return nil, ErrInvalidMerchantConfig
	}
	now := m.clock().UTC()
	s = &Session{
		ID:              m.newID(),
		Status:          StatusCreated,
		MerchantID:      m.merchant.ID,
		MerchantAccount: m.merchant.PaymentAccount,
		Currency:        m.merchant.Currency,
		Customer:        params.Customer,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(m.ttl),
	}
	if len(params.Items) > 0 {
		if err := m.mergeItems(s, params.Items); err != nil {
			return nil, err
		}
		s.Status = StatusItemsSelected
	}
	s.recompute()

	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	m.log.Debug().Str("session", s.ID).Str("status", s.Status.String()).Msg("checkout session created")
	return s.Clone(), nil
}

// Get returns the session with id. Sessions past their expiry are reported as
// expired even before a transition records it.
func (m *Machine) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.MerchantID != m.merchant.ID {
		return nil, ErrSessionNotFound
	}
	if s.ExpiredAt(m.clock()) {
		s.Status = StatusExpired
	}
	return s, nil
}

// AddItems merges items into the cart. Quantities for a SKU already in the cart
// are added together.
func (m *Machine) AddItems(ctx context.Context, id string, items []ItemRequest) (*Session, error) {
	return m.transition(ctx, OpAddItems, id, func(s *Session, _ time.Time) error {
		if len(items) == 0 {
			return fmt.Errorf("%w: at least one item is required", ErrInvalidQuantity)
		}
		if err := m.mergeItems(s, items); err != nil {
			return err
		}
		s.Status = StatusItemsSelected
		return nil
	})
}

// ApplyDiscount applies code, replacing any discount applied earlier.
func (m *Machine) ApplyDiscount(ctx context.Context, id, code string) (*Session, error) {
	return m.transition(ctx, OpApplyDiscount, id, func(s *Session, now time.Time) error {
		rule, err := m.merchant.Discounts.Lookup(code, now)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidDiscountCode, code, err)
		}
		s.Discount = &AppliedDiscount{Rule: rule, AppliedAt: now}
		s.Status = StatusDiscountApplied
		return nil
	})
}

// SelectFulfillment chooses how the order reaches destination.
func (m *Machine) SelectFulfillment(ctx context.Context, id string, destination Address, optionID string) (*Session, error) {
	return m.transition(ctx, OpSelectFulfillment, id, func(s *Session, _ time.Time) error {
		opt, ok := m.merchant.FulfillmentOption(optionID)
		if !ok {
			return fmt.Errorf("%w: unknown fulfillment option %q", ErrUnsupportedDestination, optionID)
		}
		if !opt.ShipsTo(destination.Country) {
			return fmt.Errorf("%w: %s does not ship to %q", ErrUnsupportedDestination, opt.ID, destination.Country)
		}
		if _, err := pricing.CheckTotals(s.LineItems, s.discountRule(), &opt); err != nil {
			return fmt.Errorf("%w: cart total with %s out of range", ErrInvalidQuantity, opt.ID)
		}
		opt.Countries = append([]string(nil), opt.Countries...)
		s.Fulfillment = &FulfillmentSelection{Destination: destination, Option: opt}
		s.Status = StatusFulfillmentSelected
		return nil
	})
}

// SelectPaymentMethod records the rail the buyer intends to pay with. The
// session state does not change.
func (m *Machine) SelectPaymentMethod(ctx context.Context, id, method string) (*Session, error) {
	return m.transition(ctx, OpSelectPaymentMethod, id, func(s *Session, _ time.Time) error {
		if !m.merchant.SupportsPaymentMethod(method) {
			return fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, method)
		}
		s.PaymentMethod = strings.ToLower(method)
		return nil
	})
}

// LockTotals freezes the cart and fixes the amount due.
func (m *Machine) LockTotals(ctx context.Context, id string) (*Session, error) {
	return m.transition(ctx, OpLockTotals, id, func(s *Session, _ time.Time) error {
		if len(s.LineItems) == 0 || s.Fulfillment == nil {
			return fmt.Errorf("%w: cannot lock totals without items and fulfillment", ErrInvalidTransition)
		}
		totals, err := pricing.CheckTotals(s.LineItems, s.discountRule(), s.fulfillmentOption())
		switch {
		case err != nil, totals.Total < 0:
			return fmt.Errorf("%w: total %d: %v", ErrTotalsOutOfRange, totals.Total, err)
		case totals.Total == 0:
			return fmt.Errorf("%w: total is zero", ErrNothingDue)
		}
		s.Totals = totals
		s.AmountDue = totals.Total
		s.Status = StatusTotalsLocked
		return nil
	})
}

// Cancel closes the session. Cancelling after a payment was submitted does not
// reverse the transfer; the reference stays on the record.
func (m *Machine) Cancel(ctx context.Context, id, reason string) (*Session, error) {
	return m.transition(ctx, OpCancel, id, func(s *Session, _ time.Time) error {
		if s.Status == StatusPaymentSubmitted {
			m.log.Warn().Str("session", s.ID).Str("payment_reference", s.PaymentReference).
				Msg("cancelling session with a payment in flight")
		}
		if reason == "" {
			reason = "cancelled by request"
		}
		s.CancelReason = reason
		s.Status = StatusCancelled
		return nil
	})
}

// GetOrder returns the order with id.
func (m *Machine) GetOrder(ctx context.Context, id string) (*Order, error) {
	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := m.store.Get(ctx, order.SessionID)
	if err != nil || s.MerchantID != m.merchant.ID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// Balance returns the merchant account balance on the ledger.
func (m *Machine) Balance(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ledgerTimeout)
	defer cancel()
	defer m.metrics.ledgerCall("balance", time.Now())
	balance, err := m.gateway.Balance(ctx, m.merchant.PaymentAccount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return balance, nil
}

// transition runs fn on the stored session with id inside a single store
// update. fn only runs when op may start from the current status. Errors fn
// wraps with commitThen are returned after the change has been stored.
func (m *Machine) transition(ctx context.Context, op Operation, id string, fn func(s *Session, now time.Time) error) (*Session, error) {
	var (
		after error
		from  Status
	)
	s, err := m.store.Update(ctx, id, func(s *Session) error {
		after = nil
		from = s.Status
		if s.MerchantID != m.merchant.ID {
			return ErrSessionNotFound
		}
		now := m.clock().UTC()
		if s.ExpiredAt(now) {
			s.Status = StatusExpired
			s.UpdatedAt = now
			after = ErrSessionExpired
			return nil
		}
		if !CanRun(op, s.Status) {
			if s.Status.IsTerminal() {
				return fmt.Errorf("%w: session is %s", ErrSessionClosed, s.Status)
			}
			return fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, op, s.Status)
		}
		if s.Submitting(now) {
			return fmt.Errorf("%w: payment submission in progress", ErrSessionBusy)
		}
		if err := fn(s, now); err != nil {
			var c committed
			if !errors.As(err, &c) {
				return err
			}
			after = c.err
		}
		s.recompute()
		s.UpdatedAt = now
		return nil
	})
	if err == nil {
		err = after
	}
	m.metrics.transition(op, err)

	switch {
	case err == nil:
		m.log.Debug().Str("session", id).Str("operation", string(op)).
			Str("from", from.String()).Str("to", s.Status.String()).Msg("checkout transition")
	case IsInvariantViolation(err):
		m.log.Error().Err(err).Str("session", id).Str("operation", string(op)).Msg("checkout invariant violated")
	default:
		m.log.Debug().Err(err).Str("session", id).Str("operation", string(op)).Msg("checkout operation rejected")
	}
	if err != nil && after == nil {
		return nil, err
	}
	return s, err
}

func (m *Machine) mergeItems(s *Session, items []ItemRequest) error {
	merged := append([]pricing.LineItem(nil), s.LineItems...)
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: %s has quantity %d", ErrInvalidQuantity, item.SKU, item.Quantity)
		}
		product, ok := m.merchant.Catalog.Lookup(item.SKU)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSKU, item.SKU)
		}
		idx := -1
		for i := range merged {
			if merged[i].SKU == product.SKU {
				idx = i
				break
			}
		}
		quantity := item.Quantity
		if idx >= 0 {
			if merged[idx].Quantity > math.MaxInt64-quantity {
				return fmt.Errorf("%w: %s quantity out of range", ErrInvalidQuantity, product.SKU)
			}
			quantity += merged[idx].Quantity
		}
		if !product.Unlimited() && quantity > product.Stock {
			return fmt.Errorf("%w: %s requested %d, available %d", ErrInsufficientInventory, product.SKU, quantity, product.Stock)
		}
		line := pricing.LineItem{SKU: product.SKU, Title: product.Title, Quantity: quantity, UnitPrice: product.UnitPrice}
		if idx >= 0 {
			merged[idx] = line
		} else {
			merged = append(merged, line)
		}
	}
	if _, err := pricing.CheckTotals(merged, s.discountRule(), s.fulfillmentOption()); err != nil {
		return fmt.Errorf("%w: cart total out of range", ErrInvalidQuantity)
	}
	s.LineItems = merged
	return nil
}
