package ucp

import (
	"encoding/json"
	"time"

	"github.com/oapi-codegen/runtime"
)

// APIVersion is sent in the API-Version header of every response and webhook.
const APIVersion = "2026-01-11"

// CheckoutSessionStatus defines model for CheckoutSession.Status.
type CheckoutSessionStatus string

// Defines values for CheckoutSessionStatus.
const (
	CheckoutSessionStatusCreated             CheckoutSessionStatus = "created"
	CheckoutSessionStatusItemsSelected       CheckoutSessionStatus = "items_selected"
	CheckoutSessionStatusDiscountApplied     CheckoutSessionStatus = "discount_applied"
	CheckoutSessionStatusFulfillmentSelected CheckoutSessionStatus = "fulfillment_selected"
	CheckoutSessionStatusTotalsLocked        CheckoutSessionStatus = "totals_locked"
	CheckoutSessionStatusPaymentSubmitted    CheckoutSessionStatus = "payment_submitted"
	CheckoutSessionStatusCompleted           CheckoutSessionStatus = "completed"
	CheckoutSessionStatusExpired             CheckoutSessionStatus = "expired"
	CheckoutSessionStatusCancelled           CheckoutSessionStatus = "cancelled"
)

// LinkType defines model for Link.Type.
type LinkType string

// Defines values for LinkType.
const (
	LinkTypeOrder   LinkType = "order"
	LinkTypeReceipt LinkType = "receipt"
)

// MessageErrorCode defines model for MessageError.Code.
type MessageErrorCode string

// Defines values for MessageErrorCode.
const (
	MessageErrorCodeExpired         MessageErrorCode = "expired"
	MessageErrorCodeCancelled       MessageErrorCode = "cancelled"
	MessageErrorCodePaymentDeclined MessageErrorCode = "payment_declined"
)

// MessageContentType defines model for MessageInfo.ContentType and MessageError.ContentType.
type MessageContentType string

// Defines values for MessageContentType.
const (
	MessageContentTypeMarkdown MessageContentType = "markdown"
	MessageContentTypePlain    MessageContentType = "plain"
)

// TotalType defines model for Total.Type.
type TotalType string

// Defines values for TotalType.
const (
	TotalTypeSubtotal    TotalType = "subtotal"
	TotalTypeDiscount    TotalType = "discount"
	TotalTypeFulfillment TotalType = "fulfillment"
	TotalTypeTotal       TotalType = "total"
)

// Address defines model for Address.
type Address struct {
	Name       string  `json:"name" validate:"required,max=256"`
	LineOne    string  `json:"line_one" validate:"required,max=256"`
	LineTwo    *string `json:"line_two,omitempty" validate:"omitempty,max=256"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	City       string  `json:"city" validate:"required,max=128"`
	State      string  `json:"state,omitempty" validate:"max=128"`
	Country    string  `json:"country" validate:"required,country"`
}

// Buyer defines model for Buyer.
type Buyer struct {
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Name  string `json:"name,omitempty" validate:"max=256"`
}

// Item defines model for Item.
type Item struct {
	ID       string `json:"id" validate:"required,sku"`
	Quantity int64  `json:"quantity" validate:"gt=0,lte=1000000"`
}

// LineItem defines model for LineItem.
type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	Title      string `json:"title"`
	UnitPrice  int64  `json:"unit_price"`
	BaseAmount int64  `json:"base_amount"`
}

// Total defines model for Total.
type Total struct {
	Amount      int64     `json:"amount"`
	DisplayText string    `json:"display_text"`
	Type        TotalType `json:"type"`
}

// Link defines model for Link.
type Link struct {
	Type LinkType `json:"type"`
	URL  string   `json:"url"`
}

// PaymentHandler advertises a rail the buyer can pay with.
type PaymentHandler struct {
	ID string `json:"id"`
	// Network is the ledger network, e.g. testnet.
	Network string `json:"network"`
	// PayTo is the merchant account payments must credit.
	PayTo    string `json:"pay_to"`
	Currency string `json:"currency"`
	// Decimals is the number of decimal places of the currency's native unit.
	Decimals int32 `json:"decimals"`
}

// Payment defines model for CheckoutSession.Payment.
type Payment struct {
	Method      string  `json:"method,omitempty"`
	AmountDue   *int64  `json:"amount_due,omitempty"`
	Reference   *string `json:"reference,omitempty"`
	ExplorerURL *string `json:"explorer_url,omitempty"`
}

// CheckoutSession defines model for CheckoutSession.
type CheckoutSession struct {
	ID                  string                `json:"id"`
	Status              CheckoutSessionStatus `json:"status"`
	Currency            string                `json:"currency"`
	Buyer               *Buyer                `json:"buyer,omitempty"`
	LineItems           []LineItem            `json:"line_items"`
	DiscountCode        *string               `json:"discount_code,omitempty"`
	FulfillmentAddress  *Address              `json:"fulfillment_address,omitempty"`
	FulfillmentOptionID *string               `json:"fulfillment_option_id,omitempty"`
	FulfillmentOptions  []FulfillmentOption   `json:"fulfillment_options"`
	PaymentHandlers     []PaymentHandler      `json:"payment_handlers"`
	Payment             Payment               `json:"payment"`
	Totals              []Total               `json:"totals"`
	Messages            []Message             `json:"messages"`
	Links               []Link                `json:"links"`
	ExpiresAt           time.Time             `json:"expires_at"`
}

// FulfillmentOption defines model for CheckoutSession.fulfillment_options.Item.
type FulfillmentOption struct {
	union json.RawMessage
}

// Message defines model for CheckoutSession.messages.Item.
type Message struct {
	union json.RawMessage
}

// SessionWithOrder defines model for SessionWithOrder.
type SessionWithOrder struct {
	CheckoutSession
	Order Order `json:"order"`
}

// FulfillmentOptionDigital defines model for FulfillmentOptionDigital.
type FulfillmentOptionDigital struct {
	ID          string  `json:"id"`
	Subtitle    *string `json:"subtitle,omitempty"`
	Title       string  `json:"title"`
	Cost        int64   `json:"cost"`
	DisplayText string  `json:"display_text"`
	Type        string  `json:"type"`
}

// FulfillmentOptionShipping defines model for FulfillmentOptionShipping.
type FulfillmentOptionShipping struct {
	ID          string   `json:"id"`
	Subtitle    *string  `json:"subtitle,omitempty"`
	Title       string   `json:"title"`
	Cost        int64    `json:"cost"`
	DisplayText string   `json:"display_text"`
	Countries   []string `json:"countries,omitempty"`
	Type        string   `json:"type"`
}

// MessageInfo defines model for MessageInfo.
type MessageInfo struct {
	Content     string             `json:"content"`
	ContentType MessageContentType `json:"content_type"`

	// Param RFC 9535 JSONPath
	Param *string `json:"param,omitempty"`
	Type  string  `json:"type"`
}

// MessageError defines model for MessageError.
type MessageError struct {
	Code        MessageErrorCode   `json:"code"`
	Content     string             `json:"content"`
	ContentType MessageContentType `json:"content_type"`

	// Param RFC 9535 JSONPath
	Param *string `json:"param,omitempty"`
	Type  string  `json:"type"`
}

// Order defines model for Order.
type Order struct {
	ID                string    `json:"id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	PermalinkURL      string    `json:"permalink_url"`
	ReceiptURL        string    `json:"receipt_url"`
	PaymentReference  string    `json:"payment_reference"`
	Currency          string    `json:"currency"`
	AmountPaid        int64     `json:"amount_paid"`
	Totals            []Total   `json:"totals"`
	CreatedAt         time.Time `json:"created_at"`
}

// CheckoutSessionCreateRequest defines model for CheckoutSessionCreateRequest.
type CheckoutSessionCreateRequest struct {
	Buyer *Buyer `json:"buyer,omitempty"`
	Items []Item `json:"items,omitempty" validate:"dive"`
}

// AddItemsRequest defines model for AddItemsRequest.
type AddItemsRequest struct {
	Items []Item `json:"items" validate:"required,min=1,dive"`
}

// ApplyDiscountRequest defines model for ApplyDiscountRequest.
type ApplyDiscountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// SelectFulfillmentRequest defines model for SelectFulfillmentRequest.
type SelectFulfillmentRequest struct {
	FulfillmentAddress  Address `json:"fulfillment_address"`
	FulfillmentOptionID string  `json:"fulfillment_option_id" validate:"required,max=64"`
}

// SelectPaymentMethodRequest defines model for SelectPaymentMethodRequest.
type SelectPaymentMethodRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,max=64"`
}

// SubmitPaymentRequest defines model for SubmitPaymentRequest. Exactly one of
// the two fields is set.
type SubmitPaymentRequest struct {
	// TransactionID references a transfer the buyer already broadcast.
	TransactionID string `json:"transaction_id,omitempty" validate:"required_without=SignedTransaction,excluded_with=SignedTransaction,max=128,transaction_id"`
	// SignedTransaction is a base64 encoded transfer signed by the buyer for the
	// merchant to broadcast.
	SignedTransaction string `json:"signed_transaction,omitempty" validate:"omitempty,base64"`
}

// CancelRequest defines model for CancelRequest.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=256"`
}

// AsFulfillmentOptionShipping returns the union data inside the FulfillmentOption as a FulfillmentOptionShipping
func (t FulfillmentOption) AsFulfillmentOptionShipping() (FulfillmentOptionShipping, error) {
	var body FulfillmentOptionShipping
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromFulfillmentOptionShipping overwrites any union data inside the FulfillmentOption as the provided FulfillmentOptionShipping
func (t *FulfillmentOption) FromFulfillmentOptionShipping(v FulfillmentOptionShipping) error {
	v.Type = "shipping"
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeFulfillmentOptionShipping performs a merge with any union data inside the FulfillmentOption, using the provided FulfillmentOptionShipping
func (t *FulfillmentOption) MergeFulfillmentOptionShipping(v FulfillmentOptionShipping) error {
	v.Type = "shipping"
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// AsFulfillmentOptionDigital returns the union data inside the FulfillmentOption as a FulfillmentOptionDigital
func (t FulfillmentOption) AsFulfillmentOptionDigital() (FulfillmentOptionDigital, error) {
	var body FulfillmentOptionDigital
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromFulfillmentOptionDigital overwrites any union data inside the FulfillmentOption as the provided FulfillmentOptionDigital
func (t *FulfillmentOption) FromFulfillmentOptionDigital(v FulfillmentOptionDigital) error {
	v.Type = "digital"
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// Discriminator returns the type field of the union.
func (t FulfillmentOption) Discriminator() (string, error) {
	var discriminator struct {
		Discriminator string `json:"type"`
	}
	err := json.Unmarshal(t.union, &discriminator)
	return discriminator.Discriminator, err
}

// MarshalJSON serializes the underlying union for FulfillmentOption.
func (t FulfillmentOption) MarshalJSON() ([]byte, error) {
	b, err := t.union.MarshalJSON()
	return b, err
}

// UnmarshalJSON loads union data for FulfillmentOption.
func (t *FulfillmentOption) UnmarshalJSON(b []byte) error {
	err := t.union.UnmarshalJSON(b)
	return err
}

// AsMessageInfo returns the union data inside the Message as a MessageInfo
func (t Message) AsMessageInfo() (MessageInfo, error) {
	var body MessageInfo
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromMessageInfo overwrites any union data inside the Message as the provided MessageInfo
func (t *Message) FromMessageInfo(v MessageInfo) error {
	v.Type = "info"
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// AsMessageError returns the union data inside the Message as a MessageError
func (t Message) AsMessageError() (MessageError, error) {
	var body MessageError
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromMessageError overwrites any union data inside the Message as the provided MessageError
func (t *Message) FromMessageError(v MessageError) error {
	v.Type = "error"
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeMessageError performs a merge with any union data inside the Message, using the provided MessageError
func (t *Message) MergeMessageError(v MessageError) error {
	v.Type = "error"
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// Discriminator returns the type field of the union.
func (t Message) Discriminator() (string, error) {
	var discriminator struct {
		Discriminator string `json:"type"`
	}
	err := json.Unmarshal(t.union, &discriminator)
	return discriminator.Discriminator, err
}

// MarshalJSON serializes the underlying union for Message.
func (t Message) MarshalJSON() ([]byte, error) {
	b, err := t.union.MarshalJSON()
	return b, err
}

// UnmarshalJSON loads union data for Message.
func (t *Message) UnmarshalJSON(b []byte) error {
	err := t.union.UnmarshalJSON(b)
	return err
}
