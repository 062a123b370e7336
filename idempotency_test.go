package ucp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sumup/ucp/checkout"
)

func idempotentRequest(method, path, key, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	return req
}

func TestIdempotencyReplaysCompletedRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := NewCheckoutHandler(&stubService{
		create: func(ctx context.Context, params checkout.CreateParams) (*checkout.Session, error) {
			calls.Add(1)
			return testSession(), nil
		},
	}, WithIdempotencyStore(NewMemoryIdempotencyStore(), 0))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(http.MethodPost, "/checkout_sessions", "idem-1", `{"items":[{"id":"widget","quantity":1}]}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", first.Code, first.Body.String())
	}

	// Same body with different key order and whitespace.
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest(http.MethodPost, "/checkout_sessions", "idem-1", `{ "items": [ {"quantity":1, "id":"widget"} ] }`))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected provider to run once, ran %d times", got)
	}
}

func TestIdempotencyRejectsReusedKeyWithDifferentRequest(t *testing.T) {
	t.Parallel()

	handler := NewCheckoutHandler(&stubService{
		create: func(ctx context.Context, params checkout.CreateParams) (*checkout.Session, error) {
			return testSession(), nil
		},
		cancel: func(ctx context.Context, id, reason string) (*checkout.Session, error) {
			return testSession(), nil
		},
	}, WithIdempotencyStore(NewMemoryIdempotencyStore(), time.Hour))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(http.MethodPost, "/checkout_sessions", "idem-2", `{"items":[{"id":"widget","quantity":1}]}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}

	tests := map[string]*http.Request{
		"different body": idempotentRequest(http.MethodPost, "/checkout_sessions", "idem-2", `{"items":[{"id":"widget","quantity":2}]}`),
		"different path": idempotentRequest(http.MethodPost, "/checkout_sessions/cs_123/cancel", "idem-2", `{"items":[{"id":"widget","quantity":1}]}`),
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422 got %d", rec.Code)
			}
			if want, got := string(IdempotencyConflict), getErrorCode(rec.Body.Bytes()); want != got {
				t.Fatalf("expected code %s got %s", want, got)
			}
		})
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	handler := NewCheckoutHandler(&stubService{
		lockTotals: func(ctx context.Context, id string) (*checkout.Session, error) {
			close(entered)
			<-release
			return testSession(), nil
		},
	}, WithIdempotencyStore(NewMemoryIdempotencyStore(), time.Hour))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, idempotentRequest(http.MethodPost, "/checkout_sessions/cs_123/lock", "idem-3", ""))
		done <- rec.Code
	}()
	<-entered

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(http.MethodPost, "/checkout_sessions/cs_123/lock", "idem-3", ""))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if want, got := string(DuplicateRequest), getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on in-flight duplicate")
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
}

func TestIdempotencyReleasesRetryableFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := NewCheckoutHandler(&stubService{
		complete: func(ctx context.Context, id string) (*checkout.Session, *checkout.Order, error) {
			if calls.Add(1) == 1 {
				return nil, nil, checkout.ErrPaymentPending
			}
			return nil, nil, checkout.ErrPaymentMismatch
		},
	}, WithIdempotencyStore(NewMemoryIdempotencyStore(), time.Hour))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(http.MethodPost, "/checkout_sessions/cs_123/complete", "idem-4", ""))
	if first.Code != http.StatusConflict {
		t.Fatalf("expected pending 409 got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest(http.MethodPost, "/checkout_sessions/cs_123/complete", "idem-4", ""))
	if second.Code != http.StatusPaymentRequired {
		t.Fatalf("expected the retry to reach the provider, got %d", second.Code)
	}

	third := httptest.NewRecorder()
	handler.ServeHTTP(third, idempotentRequest(http.MethodPost, "/checkout_sessions/cs_123/complete", "idem-4", ""))
	if third.Code != http.StatusPaymentRequired || third.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected final outcome to be replayed, got %d", third.Code)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls got %d", got)
	}
}

func TestIdempotencyIgnoresRequestsWithoutKey(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := NewCheckoutHandler(&stubService{
		lockTotals: func(ctx context.Context, id string) (*checkout.Session, error) {
			calls.Add(1)
			return testSession(), nil
		},
	}, WithIdempotencyStore(NewMemoryIdempotencyStore(), time.Hour))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout_sessions/cs_123/lock", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls got %d", got)
	}
}

func TestMemoryIdempotencyStoreExpiresRecords(t *testing.T) {
	t.Parallel()

	now := testTime
	store := NewMemoryIdempotencyStore()
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	if _, ok, err := store.Reserve(ctx, "k", "fp", time.Minute); err != nil || !ok {
		t.Fatalf("expected reservation, got %v %v", ok, err)
	}
	if err := store.Complete(ctx, "k", IdempotencyRecord{Fingerprint: "fp", Status: http.StatusOK, Body: []byte("{}")}, time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	existing, ok, err := store.Reserve(ctx, "k", "fp", time.Minute)
	if err != nil || ok || !existing.Done || existing.Status != http.StatusOK {
		t.Fatalf("expected stored record, got %+v %v %v", existing, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, err := store.Reserve(ctx, "k", "fp", time.Minute); err != nil || !ok {
		t.Fatalf("expected expired key to be reservable again, got %v %v", ok, err)
	}
}
