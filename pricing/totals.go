package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// LineItem is a priced catalog entry inside a checkout session.
type LineItem struct {
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// ErrAmountOverflow is returned when a total does not fit in an int64.
var ErrAmountOverflow = errors.New("pricing: amount out of range")

// Amount is Quantity × UnitPrice, saturating at math.MaxInt64. Non-positive
// quantities or prices contribute nothing.
func (li LineItem) Amount() int64 {
	amount, _ := mulAmount(li.Quantity, li.UnitPrice)
	return amount
}

// Totals is the breakdown of what a session owes.
type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	Fulfillment int64 `json:"fulfillment"`
	Total       int64 `json:"total"`
}

// ComputeTotals prices items, applies the discount to the subtotal and then adds
// the fulfillment cost. The order is part of the contract: discounts never
// reduce shipping. Amounts saturate instead of wrapping, so Total is never
// negative; use CheckTotals to detect that case.
func ComputeTotals(items []LineItem, discount *DiscountRule, option *FulfillmentOption) Totals {
	t, _ := computeTotals(items, discount, option)
	return t
}

// CheckTotals is ComputeTotals that reports ErrAmountOverflow when any amount
// saturated.
func CheckTotals(items []LineItem, discount *DiscountRule, option *FulfillmentOption) (Totals, error) {
	t, ok := computeTotals(items, discount, option)
	if !ok {
		return t, ErrAmountOverflow
	}
	return t, nil
}

func computeTotals(items []LineItem, discount *DiscountRule, option *FulfillmentOption) (Totals, bool) {
	var t Totals
	exact := true
	for _, item := range items {
		amount, ok := mulAmount(item.Quantity, item.UnitPrice)
		exact = exact && ok
		t.Subtotal, ok = addAmount(t.Subtotal, amount)
		exact = exact && ok
	}
	if discount != nil {
		t.Discount = discount.Amount(t.Subtotal)
	}
	if option != nil && option.Cost > 0 {
		t.Fulfillment = option.Cost
	}
	var ok bool
	t.Total, ok = addAmount(t.Subtotal-t.Discount, t.Fulfillment)
	return t, exact && ok
}

// mulAmount multiplies non-negative amounts, saturating on overflow.
func mulAmount(a, b int64) (int64, bool) {
	if a <= 0 || b <= 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64, false
	}
	return a * b, true
}

// addAmount adds non-negative amounts, saturating on overflow.
func addAmount(a, b int64) (int64, bool) {
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	if a > math.MaxInt64-b {
		return math.MaxInt64, false
	}
	return a + b, true
}

// Currency describes the single unit a merchant settles in.
type Currency struct {
	Code string `yaml:"code" json:"code"`
	// Exponent is the number of decimal places between the native unit and the
	// display unit (8 for tinybar → HBAR).
	Exponent int32 `yaml:"exponent" json:"exponent"`
}

// HBAR settles in tinybars and displays in HBAR.
var HBAR = Currency{Code: "HBAR", Exponent: 8}

// Format renders amount in display units, e.g. "0.00100000 HBAR".
func (c Currency) Format(amount int64) string {
	value := decimal.New(amount, -c.Exponent)
	return fmt.Sprintf("%s %s", value.StringFixed(c.Exponent), c.Code)
}
