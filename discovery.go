package ucp

import (
	"net/http"
)

// Capabilities advertised by the discovery document.
const (
	CapabilityCheckout  = "checkout"
	CapabilityDiscounts = "discounts"
	CapabilityOrders    = "orders"
)

// DiscoveryMerchant identifies the merchant behind the endpoint.
type DiscoveryMerchant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Discovery is served at /.well-known/ucp. Clients read it before creating a
// session to learn how the merchant accepts payment.
type Discovery struct {
	Version            string              `json:"version"`
	Merchant           DiscoveryMerchant   `json:"merchant"`
	Capabilities       []string            `json:"capabilities"`
	Endpoints          map[string]string   `json:"endpoints"`
	PaymentHandlers    []PaymentHandler    `json:"payment_handlers"`
	FulfillmentOptions []FulfillmentOption `json:"fulfillment_options"`
}

func (h *CheckoutHandler) discovery() Discovery {
	merchant := h.service.Merchant()
	capabilities := []string{CapabilityCheckout, CapabilityOrders}
	if merchant.Discounts != nil && merchant.Discounts.Len() > 0 {
		capabilities = []string{CapabilityCheckout, CapabilityDiscounts, CapabilityOrders}
	}
	return Discovery{
		Version: APIVersion,
		Merchant: DiscoveryMerchant{
			ID:   merchant.ID,
			Name: merchant.Name,
		},
		Capabilities: capabilities,
		Endpoints: map[string]string{
			"checkout_sessions": "/checkout_sessions",
			"orders":            "/orders",
		},
		PaymentHandlers:    paymentHandlers(merchant),
		FulfillmentOptions: fulfillmentOptions(merchant),
	}
}

func (h *CheckoutHandler) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.discovery())
}
