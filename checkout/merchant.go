package checkout

import (
	"strings"

	"github.com/sumup/ucp/pricing"
)

// PaymentMethodHedera is the rail every merchant advertises by default.
const PaymentMethodHedera = "hedera"

// Merchant is the read-only configuration a Machine serves sessions for.
type Merchant struct {
	ID   string
	Name string
	// PaymentAccount receives every checkout payment.
	PaymentAccount string
	// Network selects the ledger explorer used for receipts.
	Network        string
	Currency       pricing.Currency
	Catalog        *pricing.Catalog
	Discounts      *pricing.DiscountTable
	Fulfillment    []pricing.FulfillmentOption
	PaymentMethods []string
	// PermalinkBaseURL prefixes order permalinks, e.g. https://shop.example.com.
	PermalinkBaseURL string
}

// FulfillmentOption returns the option with id.
func (m *Merchant) FulfillmentOption(id string) (pricing.FulfillmentOption, bool) {
	for _, opt := range m.Fulfillment {
		if opt.ID == id {
			return opt, true
		}
	}
	return pricing.FulfillmentOption{}, false
}

// SupportedPaymentMethods returns the advertised rails.
func (m *Merchant) SupportedPaymentMethods() []string {
	if len(m.PaymentMethods) == 0 {
		return []string{PaymentMethodHedera}
	}
	return append([]string(nil), m.PaymentMethods...)
}

// SupportsPaymentMethod reports whether method is advertised.
func (m *Merchant) SupportsPaymentMethod(method string) bool {
	for _, candidate := range m.SupportedPaymentMethods() {
		if strings.EqualFold(candidate, method) {
			return true
		}
	}
	return false
}
