package ucp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sumup/ucp/checkout"
	"github.com/sumup/ucp/signature"
)

func signedStub() *stubService {
	return &stubService{
		create: func(ctx context.Context, params checkout.CreateParams) (*checkout.Session, error) {
			return testSession(), nil
		},
		get: func(ctx context.Context, id string) (*checkout.Session, error) {
			return testSession(), nil
		},
		lockTotals: func(ctx context.Context, id string) (*checkout.Session, error) {
			return testSession(), nil
		},
		cancel: func(ctx context.Context, id, reason string) (*checkout.Session, error) {
			return testSession(), nil
		},
	}
}

func TestSignatureMiddlewareAllowsValidRequest(t *testing.T) {
	t.Parallel()

	key := signature.HMAC{Key: []byte("secret")}
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(key), checkoutWithClock(func() time.Time {
		return ts.Add(30 * time.Second)
	}))

	body := []byte(`{"items":[{"quantity":1,"id":"widget"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout_sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if err := signature.SignRequest(req, key, ts); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSignatureMiddlewareAcceptsRotatedKeys(t *testing.T) {
	t.Parallel()

	ts := time.Now().UTC()
	ring := signature.ParseKeyRing("new-secret, old-secret")
	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(ring), checkoutWithClock(func() time.Time {
		return ts
	}))

	req := httptest.NewRequest(http.MethodGet, "/checkout_sessions/cs_123", nil)
	if err := signature.SignRequest(req, signature.HMAC{Key: []byte("old-secret")}, ts); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSignatureMiddlewareRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	ts := time.Now().UTC()
	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(signature.HMAC{Key: []byte("secret")}), checkoutWithClock(func() time.Time {
		return ts
	}))

	body := []byte(`{"items":[{"id":"widget","quantity":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout_sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderSignature, "bogus")
	req.Header.Set(signature.HeaderTimestamp, ts.Format(time.RFC3339Nano))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if want, got := "invalid_signature", getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
}

func TestSignatureMiddlewareRejectsReplayOnAnotherRoute(t *testing.T) {
	t.Parallel()

	key := signature.HMAC{Key: []byte("secret")}
	ts := time.Now().UTC()
	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(key), checkoutWithClock(func() time.Time {
		return ts
	}))

	lock := httptest.NewRequest(http.MethodPost, "/checkout_sessions/cs_123/lock", nil)
	if err := signature.SignRequest(lock, key, ts); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	cancel := httptest.NewRequest(http.MethodPost, "/checkout_sessions/cs_123/cancel", nil)
	cancel.Header.Set(signature.HeaderSignature, lock.Header.Get(signature.HeaderSignature))
	cancel.Header.Set(signature.HeaderTimestamp, lock.Header.Get(signature.HeaderTimestamp))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, lock)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected signed lock to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, cancel)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected replayed signature to fail, got %d", rec.Code)
	}
}

func TestSignatureMiddlewareRejectsSkew(t *testing.T) {
	t.Parallel()

	key := signature.HMAC{Key: []byte("secret")}
	ts := time.Now().UTC()
	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(key), WithMaxClockSkew(time.Minute), checkoutWithClock(func() time.Time {
		return ts.Add(2 * time.Minute)
	}))

	body := []byte(`{"items":[{"id":"widget","quantity":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout_sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if err := signature.SignRequest(req, key, ts); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if want, got := "stale_timestamp", getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
}

func TestSignatureMiddlewareRequiresBothHeaders(t *testing.T) {
	t.Parallel()

	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(signature.HMAC{Key: []byte("secret")}))

	req := httptest.NewRequest(http.MethodGet, "/checkout_sessions/cs_123", nil)
	req.Header.Set(signature.HeaderSignature, "abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestSignatureMiddlewareRequiresHeadersWhenEnforced(t *testing.T) {
	t.Parallel()

	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(signature.HMAC{Key: []byte("secret")}), WithRequireSignedRequests(), checkoutWithClock(time.Now))

	req := httptest.NewRequest(http.MethodGet, "/checkout_sessions/cs_123", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if want, got := "signature_required", getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
}

func TestSignatureMiddlewareAllowsUnsignedWhenOptional(t *testing.T) {
	t.Parallel()

	handler := NewCheckoutHandler(signedStub(), WithSignatureVerifier(signature.HMAC{Key: []byte("secret")}))

	req := httptest.NewRequest(http.MethodGet, "/checkout_sessions/cs_123", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func getErrorCode(body []byte) string {
	var resp Error
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return string(resp.Code)
}
