package ucp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sumup/ucp/checkout"
	"github.com/sumup/ucp/signature"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookEventType enumerates the supported webhook events.
type WebhookEventType string

const (
	WebhookEventTypeOrderCreated WebhookEventType = "order_created"
)

// EventDataType labels the payload for a webhook event.
type EventDataType string

const (
	EventDataTypeOrder EventDataType = "order"
)

// OrderStatus defines model for webhook data status. Orders are final once
// created; a ledger payment cannot be reversed by the merchant.
type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// EventData is implemented by webhook payloads.
type EventData interface {
	eventType() WebhookEventType
}

// OrderCreated emits order data after the order is created.
type OrderCreated struct {
	Type              EventDataType `json:"type"`
	OrderID           string        `json:"order_id"`
	CheckoutSessionID string        `json:"checkout_session_id"`
	PermalinkURL      string        `json:"permalink_url"`
	ReceiptURL        string        `json:"receipt_url"`
	PaymentReference  string        `json:"payment_reference"`
	Currency          string        `json:"currency"`
	AmountPaid        int64         `json:"amount_paid"`
	Status            OrderStatus   `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (OrderCreated) eventType() WebhookEventType { return WebhookEventTypeOrderCreated }

// OrderCreatedEvent builds the webhook payload for order.
func OrderCreatedEvent(order checkout.Order) OrderCreated {
	return OrderCreated{
		Type:              EventDataTypeOrder,
		OrderID:           order.ID,
		CheckoutSessionID: order.SessionID,
		PermalinkURL:      order.PermalinkURL,
		ReceiptURL:        order.ReceiptURL,
		PaymentReference:  order.PaymentReference,
		Currency:          order.Currency,
		AmountPaid:        order.AmountPaid,
		Status:            OrderStatusConfirmed,
		CreatedAt:         order.CreatedAt,
	}
}

type webhookEvent struct {
	Type WebhookEventType `json:"type"`
	Data any              `json:"data"`
}

// WebhookOptions configures where and how webhooks are delivered.
type WebhookOptions struct {
	// Endpoint receives POSTed webhook events.
	Endpoint string
	// HeaderName carries the signature. Defaults to Signature; the Timestamp
	// header is always set.
	HeaderName string
	// SecretKey signs requests the same way [signature.HMAC] verifies them.
	SecretKey []byte
	// Client sends the requests. Defaults to a client with a 10s timeout.
	Client *http.Client
}

// WebhookSender posts signed webhook events to a platform endpoint.
type WebhookSender struct {
	endpoint string
	header   string
	signer   signature.HMAC
	client   *http.Client
	clock    func() time.Time
}

// NewWebhookSender validates opts and returns a sender.
func NewWebhookSender(opts WebhookOptions) (*WebhookSender, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("ucp: webhook endpoint is required")
	}
	if len(opts.SecretKey) == 0 {
		return nil, errors.New("ucp: webhook secret key is required")
	}
	s := &WebhookSender{
		endpoint: opts.Endpoint,
		header:   opts.HeaderName,
		signer:   signature.HMAC{Key: append([]byte(nil), opts.SecretKey...)},
		client:   opts.Client,
		clock:    time.Now,
	}
	if s.header == "" {
		s.header = signature.HeaderSignature
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return s, nil
}

// Send posts data to the configured endpoint.
func (s *WebhookSender) Send(ctx context.Context, data EventData) error {
	body, err := json.Marshal(webhookEvent{
		Type: data.eventType(),
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("ucp: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ucp: build webhook request: %w", err)
	}
	canonical, err := signature.CanonicalizeJSONBody(body)
	if err != nil {
		return fmt.Errorf("ucp: canonicalize webhook payload: %w", err)
	}
	now := s.clock().UTC()
	sig, err := s.signer.Sign(now, req.Method, req.URL.Path, canonical)
	if err != nil {
		return fmt.Errorf("ucp: sign webhook payload: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Version", APIVersion)
	req.Header.Set(s.header, sig)
	req.Header.Set(signature.HeaderTimestamp, now.Format(time.RFC3339Nano))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ucp: send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ucp: webhook endpoint %s returned %s: %s", s.endpoint, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// OrderHook returns a function for checkout.WithOrderHook that delivers an
// order_created event without holding up the completing request. Failures are
// logged.
func (s *WebhookSender) OrderHook(logger zerolog.Logger) func(context.Context, checkout.Order) {
	return func(ctx context.Context, order checkout.Order) {
		ctx = context.WithoutCancel(ctx)
		go func() {
			ctx, cancel := context.WithTimeout(ctx, defaultWebhookTimeout)
			defer cancel()
			if err := s.Send(ctx, OrderCreatedEvent(order)); err != nil {
				logger.Error().Err(err).Str("order", order.ID).Msg("delivering order_created webhook")
				return
			}
			logger.Debug().Str("order", order.ID).Msg("order_created webhook delivered")
		}()
	}
}
