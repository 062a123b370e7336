package ucp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sumup/ucp/checkout"
)

func TestAuthenticationMiddleware(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		auth       Authenticator
		header     string
		wantStatus int
		wantCode   ErrorCode
	}{
		"missing header": {
			auth:       StaticKeys{"valid-key"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   MissingAuthorization,
		},
		"wrong scheme": {
			auth:       StaticKeys{"valid-key"},
			header:     "Token valid-key",
			wantStatus: http.StatusUnauthorized,
			wantCode:   InvalidAuthorization,
		},
		"empty key": {
			auth:       StaticKeys{"valid-key"},
			header:     "Bearer   ",
			wantStatus: http.StatusUnauthorized,
			wantCode:   InvalidAuthorization,
		},
		"unknown key": {
			auth:       StaticKeys{"valid-key"},
			header:     "Bearer bad-key",
			wantStatus: http.StatusUnauthorized,
			wantCode:   InvalidAuthorization,
		},
		"authenticator outage surfaces": {
			auth: AuthenticatorFunc(func(ctx context.Context, key string) error {
				return NewHTTPError(http.StatusServiceUnavailable, ServiceUnavailable, ErrorCode(ServiceUnavailable), "auth service unavailable")
			}),
			header:     "Bearer auth-down",
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrorCode(ServiceUnavailable),
		},
		"plain authenticator error": {
			auth: AuthenticatorFunc(func(ctx context.Context, key string) error {
				return errors.New("revoked")
			}),
			header:     "Bearer revoked-key",
			wantStatus: http.StatusUnauthorized,
			wantCode:   InvalidAuthorization,
		},
		"valid key": {
			auth:       StaticKeys{"other-key", "valid-key"},
			header:     "bearer valid-key",
			wantStatus: http.StatusOK,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			handler := NewCheckoutHandler(&stubService{
				get: func(ctx context.Context, id string) (*checkout.Session, error) {
					return testSession(), nil
				},
			}, WithAuthenticator(tt.auth))

			req := httptest.NewRequest(http.MethodGet, "/checkout_sessions/cs_123", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d body=%s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			var payload Error
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Code != tt.wantCode {
				t.Fatalf("expected error code %s got %s", tt.wantCode, payload.Code)
			}
		})
	}
}

func TestAuthenticationMiddlewareRunsBeforeProvider(t *testing.T) {
	t.Parallel()

	called := false
	handler := NewCheckoutHandler(&stubService{
		cancel: func(ctx context.Context, id, reason string) (*checkout.Session, error) {
			called = true
			return testSession(), nil
		},
	}, WithAuthenticator(StaticKeys{"valid-key"}))

	req := httptest.NewRequest(http.MethodPost, "/checkout_sessions/cs_123/cancel", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if called {
		t.Fatalf("provider must not run for unauthenticated requests")
	}
}
