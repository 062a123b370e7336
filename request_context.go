package ucp

import (
	"context"
	"net/http"
	"strings"

	"github.com/sumup/ucp/signature"
)

// RequestContext holds the protocol headers of the request being served.
type RequestContext struct {
	// Example: Bearer api_key_123
	Authorization string
	// Profile of the agent acting for the buyer.
	//
	// Example: profile="https://agent.example/.well-known/ucp"
	UCPAgent string
	// Example: en-US
	AcceptLanguage string
	UserAgent      string
	// Example: idempotency_key_123
	IdempotencyKey string
	// Unique key for each request for tracing purposes.
	RequestID string
	// Base64url encoded HMAC of the canonical request body.
	Signature string
	// Formatted as an RFC 3339 string.
	Timestamp string
	// Example: 2026-01-11
	APIVersion string
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	header := func(name string) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
	return &RequestContext{
		Authorization:  header("Authorization"),
		UCPAgent:       header("UCP-Agent"),
		AcceptLanguage: header("Accept-Language"),
		UserAgent:      header("User-Agent"),
		IdempotencyKey: header("Idempotency-Key"),
		RequestID:      header("Request-Id"),
		Signature:      header(signature.HeaderSignature),
		Timestamp:      header(signature.HeaderTimestamp),
		APIVersion:     header("API-Version"),
	}
}

// AgentProfile returns the profile URL carried by the UCP-Agent header, or
// "" when the header has no profile parameter.
func (c *RequestContext) AgentProfile() string {
	if c == nil {
		return ""
	}
	for _, param := range strings.Split(c.UCPAgent, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "profile") {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), `"`)
	}
	return ""
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the HTTP request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
