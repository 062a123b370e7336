package signature

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2026, time.January, 11, 8, 30, 0, 0, time.UTC)

func materialFor(t *testing.T, r *http.Request) Material {
	t.Helper()
	raw, err := ReadAndBufferBody(r)
	require.NoError(t, err)
	canonical, err := CanonicalizeJSONBody(raw)
	require.NoError(t, err)
	parsed, err := ParseTimestamp(r.Header.Get(HeaderTimestamp))
	require.NoError(t, err)
	return Material{
		Signature:     r.Header.Get(HeaderSignature),
		Timestamp:     parsed,
		CanonicalBody: canonical,
		Method:        r.Method,
		Path:          r.URL.Path,
	}
}

func TestSignRequestRoundTrip(t *testing.T) {
	key := HMAC{Key: []byte("secret")}
	r := httptest.NewRequest(http.MethodPost, "/checkout_sessions/cs_1/items", strings.NewReader(`{"items":[{"quantity":2,"id":"widget"}]}`))
	require.NoError(t, SignRequest(r, key, ts))

	assert.Equal(t, "2026-01-11T08:30:00Z", r.Header.Get(HeaderTimestamp))
	require.NoError(t, key.Verify(context.Background(), materialFor(t, r)))

	body, err := ReadAndBufferBody(r)
	require.NoError(t, err)
	assert.Contains(t, string(body), "widget", "body must stay readable after signing")
}

func TestHMACVerifyRejectsTampering(t *testing.T) {
	key := HMAC{Key: []byte("secret")}
	r := httptest.NewRequest(http.MethodPost, "/checkout_sessions/cs_1/lock", nil)
	require.NoError(t, SignRequest(r, key, ts))
	m := materialFor(t, r)

	tests := map[string]func(*Material){
		"other path":      func(m *Material) { m.Path = "/checkout_sessions/cs_1/cancel" },
		"other method":    func(m *Material) { m.Method = http.MethodGet },
		"other body":      func(m *Material) { m.CanonicalBody = []byte(`{"reason":"x"}`) },
		"other timestamp": func(m *Material) { m.Timestamp = ts.Add(time.Second) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			tampered := m
			mutate(&tampered)
			assert.ErrorIs(t, key.Verify(context.Background(), tampered), ErrMismatch)
		})
	}

	assert.Error(t, HMAC{}.Verify(context.Background(), m), "empty key must not verify")
}

func TestKeyRing(t *testing.T) {
	ring := ParseKeyRing(" current , ,previous")
	require.Len(t, ring, 2)

	r := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	require.NoError(t, SignRequest(r, HMAC{Key: []byte("previous")}, ts))
	assert.NoError(t, ring.Verify(context.Background(), materialFor(t, r)))

	r = httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	require.NoError(t, SignRequest(r, HMAC{Key: []byte("retired")}, ts))
	assert.ErrorIs(t, ring.Verify(context.Background(), materialFor(t, r)), ErrMismatch)

	assert.Error(t, KeyRing(nil).Verify(context.Background(), Material{}))
}

func TestCanonicalizeJSONBody(t *testing.T) {
	got, err := CanonicalizeJSONBody([]byte(` { "b": "x", "a": [true, null] } `))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"b":"x"}`, string(got))

	got, err = CanonicalizeJSONBody(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))

	_, err = CanonicalizeJSONBody([]byte(`{} {}`))
	assert.Error(t, err)
}
