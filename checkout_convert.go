package ucp

import (
	"fmt"
	"strings"

	"github.com/sumup/ucp/checkout"
	"github.com/sumup/ucp/ledger"
	"github.com/sumup/ucp/pricing"
)

func sessionFromCheckout(s *checkout.Session, merchant checkout.Merchant) CheckoutSession {
	out := CheckoutSession{
		ID:                 s.ID,
		Status:             CheckoutSessionStatus(s.Status),
		Currency:           s.Currency.Code,
		LineItems:          make([]LineItem, 0, len(s.LineItems)),
		FulfillmentOptions: fulfillmentOptions(merchant),
		PaymentHandlers:    paymentHandlers(merchant),
		Totals:             totalsFromCheckout(s.Totals, s.Currency),
		Messages:           make([]Message, 0, 1),
		Links:              make([]Link, 0, 2),
		ExpiresAt:          s.ExpiresAt,
	}
	if s.Customer != (checkout.Customer{}) {
		out.Buyer = &Buyer{Email: s.Customer.Email, Name: s.Customer.Name}
	}
	for _, li := range s.LineItems {
		out.LineItems = append(out.LineItems, LineItem{
			ID:         li.SKU,
			Item:       Item{ID: li.SKU, Quantity: li.Quantity},
			Title:      li.Title,
			UnitPrice:  li.UnitPrice,
			BaseAmount: li.Amount(),
		})
	}
	if s.Discount != nil {
		code := s.Discount.Rule.Code
		out.DiscountCode = &code
	}
	if s.Fulfillment != nil {
		addr := addressFromCheckout(s.Fulfillment.Destination)
		optionID := s.Fulfillment.Option.ID
		out.FulfillmentAddress = &addr
		out.FulfillmentOptionID = &optionID
	}

	out.Payment.Method = s.PaymentMethod
	if s.Locked() {
		due := s.AmountDue
		out.Payment.AmountDue = &due
	}
	if s.PaymentReference != "" {
		ref := s.PaymentReference
		explorer := ledger.ExplorerURL(merchant.Network, ref)
		out.Payment.Reference = &ref
		out.Payment.ExplorerURL = &explorer
	}
	if s.Order != nil {
		out.Links = append(out.Links,
			Link{Type: LinkTypeOrder, URL: s.Order.PermalinkURL},
			Link{Type: LinkTypeReceipt, URL: s.Order.ReceiptURL},
		)
	}
	if msg, ok := statusMessage(s); ok {
		out.Messages = append(out.Messages, msg)
	}
	return out
}

func statusMessage(s *checkout.Session) (Message, bool) {
	var msg Message
	switch s.Status {
	case checkout.StatusExpired:
		_ = msg.FromMessageError(MessageError{
			Code:        MessageErrorCodeExpired,
			Content:     fmt.Sprintf("Checkout session expired at %s.", s.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")),
			ContentType: MessageContentTypePlain,
		})
	case checkout.StatusCancelled:
		code := MessageErrorCodeCancelled
		if strings.HasPrefix(s.CancelReason, "payment mismatch") {
			code = MessageErrorCodePaymentDeclined
		}
		_ = msg.FromMessageError(MessageError{
			Code:        code,
			Content:     s.CancelReason,
			ContentType: MessageContentTypePlain,
		})
	case checkout.StatusPaymentSubmitted:
		param := "$.payment.reference"
		_ = msg.FromMessageInfo(MessageInfo{
			Content:     "Payment submitted. Complete the checkout once the transfer has reached consensus.",
			ContentType: MessageContentTypePlain,
			Param:       &param,
		})
	default:
		return Message{}, false
	}
	return msg, true
}

func addressFromCheckout(a checkout.Address) Address {
	out := Address{
		Name:       a.Name,
		LineOne:    a.LineOne,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
	if a.LineTwo != "" {
		lineTwo := a.LineTwo
		out.LineTwo = &lineTwo
	}
	return out
}

func addressToCheckout(a Address) checkout.Address {
	out := checkout.Address{
		Name:       strings.TrimSpace(a.Name),
		LineOne:    strings.TrimSpace(a.LineOne),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    a.Country,
	}
	if a.LineTwo != nil {
		out.LineTwo = strings.TrimSpace(*a.LineTwo)
	}
	return out
}

func itemsToCheckout(items []Item) []checkout.ItemRequest {
	out := make([]checkout.ItemRequest, 0, len(items))
	for _, item := range items {
		out = append(out, checkout.ItemRequest{SKU: item.ID, Quantity: item.Quantity})
	}
	return out
}

func totalsFromCheckout(t pricing.Totals, currency pricing.Currency) []Total {
	totals := []Total{
		{Type: TotalTypeSubtotal, Amount: t.Subtotal, DisplayText: currency.Format(t.Subtotal)},
	}
	if t.Discount > 0 {
		totals = append(totals, Total{Type: TotalTypeDiscount, Amount: t.Discount, DisplayText: "-" + currency.Format(t.Discount)})
	}
	if t.Fulfillment > 0 {
		totals = append(totals, Total{Type: TotalTypeFulfillment, Amount: t.Fulfillment, DisplayText: currency.Format(t.Fulfillment)})
	}
	return append(totals, Total{Type: TotalTypeTotal, Amount: t.Total, DisplayText: currency.Format(t.Total)})
}

func fulfillmentOptions(merchant checkout.Merchant) []FulfillmentOption {
	options := make([]FulfillmentOption, 0, len(merchant.Fulfillment))
	for _, opt := range merchant.Fulfillment {
		var subtitle *string
		if opt.Subtitle != "" {
			s := opt.Subtitle
			subtitle = &s
		}
		var item FulfillmentOption
		if opt.Type == "digital" {
			_ = item.FromFulfillmentOptionDigital(FulfillmentOptionDigital{
				ID:          opt.ID,
				Title:       opt.Title,
				Subtitle:    subtitle,
				Cost:        opt.Cost,
				DisplayText: merchant.Currency.Format(opt.Cost),
			})
		} else {
			_ = item.FromFulfillmentOptionShipping(FulfillmentOptionShipping{
				ID:          opt.ID,
				Title:       opt.Title,
				Subtitle:    subtitle,
				Cost:        opt.Cost,
				DisplayText: merchant.Currency.Format(opt.Cost),
				Countries:   opt.Countries,
			})
		}
		options = append(options, item)
	}
	return options
}

func paymentHandlers(merchant checkout.Merchant) []PaymentHandler {
	methods := merchant.SupportedPaymentMethods()
	handlers := make([]PaymentHandler, 0, len(methods))
	for _, method := range methods {
		handlers = append(handlers, PaymentHandler{
			ID:       method,
			Network:  merchant.Network,
			PayTo:    merchant.PaymentAccount,
			Currency: merchant.Currency.Code,
			Decimals: merchant.Currency.Exponent,
		})
	}
	return handlers
}

func orderFromCheckout(o *checkout.Order, currency pricing.Currency) Order {
	return Order{
		ID:                o.ID,
		CheckoutSessionID: o.SessionID,
		PermalinkURL:      o.PermalinkURL,
		ReceiptURL:        o.ReceiptURL,
		PaymentReference:  o.PaymentReference,
		Currency:          o.Currency,
		AmountPaid:        o.AmountPaid,
		Totals:            totalsFromCheckout(o.Totals, currency),
		CreatedAt:         o.CreatedAt,
	}
}
