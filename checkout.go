package ucp

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sumup/ucp/checkout"
)

// CheckoutProvider is implemented by business logic that owns checkout
// sessions. [checkout.Machine] satisfies it.
type CheckoutProvider interface {
	Merchant() checkout.Merchant
	Create(ctx context.Context, params checkout.CreateParams) (*checkout.Session, error)
	Get(ctx context.Context, id string) (*checkout.Session, error)
	AddItems(ctx context.Context, id string, items []checkout.ItemRequest) (*checkout.Session, error)
	ApplyDiscount(ctx context.Context, id, code string) (*checkout.Session, error)
	SelectFulfillment(ctx context.Context, id string, destination checkout.Address, optionID string) (*checkout.Session, error)
	SelectPaymentMethod(ctx context.Context, id, method string) (*checkout.Session, error)
	LockTotals(ctx context.Context, id string) (*checkout.Session, error)
	SubmitPayment(ctx context.Context, id string, payment checkout.PaymentSubmission) (*checkout.Session, error)
	Complete(ctx context.Context, id string) (*checkout.Session, *checkout.Order, error)
	Cancel(ctx context.Context, id, reason string) (*checkout.Session, error)
	GetOrder(ctx context.Context, id string) (*checkout.Order, error)
}

var _ CheckoutProvider = (*checkout.Machine)(nil)

// CheckoutHandler wires UCP checkout routes to a [CheckoutProvider].
type CheckoutHandler struct {
	service CheckoutProvider
	mux     *http.ServeMux
	cfg     config
}

// NewCheckoutHandler builds a [CheckoutHandler] backed by net/http's ServeMux.
func NewCheckoutHandler(service CheckoutProvider, opts ...Option) *CheckoutHandler {
	cfg := config{
		maxClockSkew:   5 * time.Minute,
		clock:          time.Now,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("checkout: signature verifier required when signed requests are enforced")
	}
	h := &CheckoutHandler{
		service: service,
		mux:     http.NewServeMux(),
		cfg:     cfg,
	}
	var middleware []Middleware
	if mw := newSignatureMiddleware(signatureMiddlewareConfig{
		Verifier:      cfg.signatureVerifier,
		RequireSigned: cfg.requireSignedRequests,
		MaxClockSkew:  cfg.maxClockSkew,
		Clock:         cfg.clock,
	}); mw != nil {
		middleware = append(middleware, mw)
	}
	if mw := newAuthenticationMiddleware(cfg.authenticator); mw != nil {
		middleware = append(middleware, mw)
	}
	if cfg.idempotency != nil {
		middleware = append(middleware, h.idempotencyMiddleware)
	}
	middleware = append(middleware, cfg.middleware...)
	h.registerRoutes(middleware...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *CheckoutHandler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("GET /.well-known/ucp", applyMiddleware(h.handleDiscovery, h.cfg.middleware...))
	h.mux.HandleFunc("POST /checkout_sessions", applyMiddleware(h.handleCreate, middleware...))
	h.mux.HandleFunc("GET /checkout_sessions/{id}", applyMiddleware(h.handleGet, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/items", applyMiddleware(h.handleAddItems, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/discount", applyMiddleware(h.handleApplyDiscount, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/fulfillment", applyMiddleware(h.handleSelectFulfillment, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/payment_method", applyMiddleware(h.handleSelectPaymentMethod, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/lock", applyMiddleware(h.handleLock, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/payment", applyMiddleware(h.handleSubmitPayment, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/complete", applyMiddleware(h.handleComplete, middleware...))
	h.mux.HandleFunc("POST /checkout_sessions/{id}/cancel", applyMiddleware(h.handleCancel, middleware...))
	h.mux.HandleFunc("GET /orders/{id}", applyMiddleware(h.handleGetOrder, middleware...))
}

func (h *CheckoutHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CheckoutSessionCreateRequest
	if err := decodeOptionalJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, errorFromValidation(err))
		return
	}
	params := checkout.CreateParams{Items: itemsToCheckout(req.Items)}
	if req.Buyer != nil {
		params.Customer = checkout.Customer{Email: req.Buyer.Email, Name: req.Buyer.Name}
	}
	session, err := h.service.Create(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.cfg.logger.Debug().
		Str("session_id", session.ID).
		Str("agent_profile", RequestContextFromContext(r.Context()).AgentProfile()).
		Msg("checkout session created")
	writeJSON(w, http.StatusCreated, sessionFromCheckout(session, h.service.Merchant()))
}

func (h *CheckoutHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), id)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleAddItems(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req AddItemsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := h.service.AddItems(r.Context(), id, itemsToCheckout(req.Items))
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleApplyDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req ApplyDiscountRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := h.service.ApplyDiscount(r.Context(), id, req.Code)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleSelectFulfillment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SelectFulfillmentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := h.service.SelectFulfillment(r.Context(), id, addressToCheckout(req.FulfillmentAddress), req.FulfillmentOptionID)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleSelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SelectPaymentMethodRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := h.service.SelectPaymentMethod(r.Context(), id, req.PaymentMethod)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleLock(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.LockTotals(r.Context(), id)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SubmitPaymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	payment := checkout.PaymentSubmission{TransferReference: req.TransactionID}
	if req.SignedTransaction != "" {
		raw, err := base64.StdEncoding.DecodeString(req.SignedTransaction)
		if err != nil {
			writeJSONError(w, NewInvalidRequestError("signed_transaction must be base64 encoded", WithOffendingParam("$.signed_transaction")))
			return
		}
		payment.SignedTransfer = raw
	}
	session, err := h.service.SubmitPayment(r.Context(), id, payment)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, order, err := h.service.Complete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	merchant := h.service.Merchant()
	writeJSON(w, http.StatusOK, SessionWithOrder{
		CheckoutSession: sessionFromCheckout(session, merchant),
		Order:           orderFromCheckout(order, session.Currency),
	})
}

func (h *CheckoutHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := decodeOptionalJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, errorFromValidation(err))
		return
	}
	session, err := h.service.Cancel(r.Context(), id, req.Reason)
	h.respond(w, session, err)
}

func (h *CheckoutHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewInvalidRequestError("order_id is required"))
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderFromCheckout(order, h.service.Merchant().Currency))
}

func (h *CheckoutHandler) respond(w http.ResponseWriter, session *checkout.Session, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionFromCheckout(session, h.service.Merchant()))
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewInvalidRequestError("checkout_session_id is required"))
		return "", false
	}
	return id, true
}

type validatable interface {
	Validate() error
}

// decodeRequest reads a required JSON body into req and validates it, writing
// the error response itself when either step fails.
func decodeRequest(w http.ResponseWriter, r *http.Request, req validatable) bool {
	if err := decodeJSON(r.Body, req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return false
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, errorFromValidation(err))
		return false
	}
	return true
}
