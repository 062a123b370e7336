package checkout

// Status is the position of a session in the checkout state machine.
type Status string

const (
	StatusCreated             Status = "created"
	StatusItemsSelected       Status = "items_selected"
	StatusDiscountApplied     Status = "discount_applied"
	StatusFulfillmentSelected Status = "fulfillment_selected"
	StatusTotalsLocked        Status = "totals_locked"
	StatusPaymentSubmitted    Status = "payment_submitted"
	StatusCompleted           Status = "completed"
	StatusExpired             Status = "expired"
	StatusCancelled           Status = "cancelled"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// Expires reports whether a session in s is subject to its expiry timestamp.
// A submitted payment must be resolved before the session can leave that state.
func (s Status) Expires() bool {
	return !s.IsTerminal() && s != StatusPaymentSubmitted
}

func (s Status) String() string {
	return string(s)
}

// Operation names a Machine call for transition checks, logs and metrics.
type Operation string

const (
	OpCreate              Operation = "create"
	OpAddItems            Operation = "add_items"
	OpApplyDiscount       Operation = "apply_discount"
	OpSelectFulfillment   Operation = "select_fulfillment"
	OpSelectPaymentMethod Operation = "select_payment_method"
	OpLockTotals          Operation = "lock_totals"
	OpSubmitPayment       Operation = "submit_payment"
	OpComplete            Operation = "complete"
	OpCancel              Operation = "cancel"
)

// allowedFrom lists the states each operation may start from. Anything else is
// rejected before the operation runs.
var allowedFrom = map[Operation]map[Status]bool{
	OpAddItems: {
		StatusCreated:       true,
		StatusItemsSelected: true,
	},
	// Re-applying a code replaces the previous one.
	OpApplyDiscount: {
		StatusItemsSelected:   true,
		StatusDiscountApplied: true,
	},
	OpSelectFulfillment: {
		StatusItemsSelected:   true,
		StatusDiscountApplied: true,
	},
	OpSelectPaymentMethod: {
		StatusCreated:             true,
		StatusItemsSelected:       true,
		StatusDiscountApplied:     true,
		StatusFulfillmentSelected: true,
		StatusTotalsLocked:        true,
	},
	OpLockTotals: {
		StatusFulfillmentSelected: true,
	},
	OpSubmitPayment: {
		StatusTotalsLocked: true,
	},
	// Completing a completed session replays the existing order.
	OpComplete: {
		StatusPaymentSubmitted: true,
		StatusCompleted:        true,
	},
	OpCancel: {
		StatusCreated:             true,
		StatusItemsSelected:       true,
		StatusDiscountApplied:     true,
		StatusFulfillmentSelected: true,
		StatusTotalsLocked:        true,
		StatusPaymentSubmitted:    true,
	},
}

// CanRun reports whether op may start from status.
func CanRun(op Operation, status Status) bool {
	return allowedFrom[op][status]
}
