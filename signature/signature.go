// Package signature signs and verifies checkout requests and webhooks.
//
// A signature is the base64url HMAC-SHA256 of
//
//	RFC3339Nano(timestamp) "\n" METHOD "\n" path "\n" canonicalJSON(body)
//
// Binding the method and path matters because most session routes take an
// empty body; without them a signed lock could be replayed as a cancel.
package signature

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// Header names carrying the signature and its timestamp.
const (
	HeaderSignature = "Signature"
	HeaderTimestamp = "Timestamp"
)

// ErrMismatch is returned when no key reproduces the presented signature.
var ErrMismatch = errors.New("signature: invalid signature")

// Material captures the inputs needed to validate a signed request.
type Material struct {
	Signature     string
	Timestamp     time.Time
	CanonicalBody []byte
	Method        string
	Path          string
	RawQuery      string
	Headers       http.Header
}

// Verifier validates the authenticity of incoming requests.
type Verifier interface {
	Verify(ctx context.Context, material Material) error
}

// VerifierFunc lifts bare functions into [Verifier].
type VerifierFunc func(ctx context.Context, material Material) error

// Verify delegates to the wrapped function.
func (f VerifierFunc) Verify(ctx context.Context, material Material) error {
	return f(ctx, material)
}

// HMAC signs and verifies with a shared secret.
type HMAC struct {
	Key []byte
}

// Sign returns the signature for a request with the given parts.
func (h HMAC) Sign(ts time.Time, method, path string, canonicalBody []byte) (string, error) {
	if len(h.Key) == 0 {
		return "", errors.New("signature: HMAC requires a non-empty key")
	}
	mac := hmac.New(sha256.New, h.Key)
	if _, err := mac.Write(BuildSigningPayload(ts, method, path, canonicalBody)); err != nil {
		return "", fmt.Errorf("signature: compute signature: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify implements [Verifier] by recomputing the expected signature.
func (h HMAC) Verify(_ context.Context, material Material) error {
	expected, err := h.Sign(material.Timestamp, material.Method, material.Path, material.CanonicalBody)
	if err != nil {
		return err
	}
	got, err := base64.RawURLEncoding.DecodeString(material.Signature)
	if err != nil {
		return fmt.Errorf("signature: decode signature: %w", err)
	}
	want, _ := base64.RawURLEncoding.DecodeString(expected)
	if !hmac.Equal(got, want) {
		return ErrMismatch
	}
	return nil
}

// KeyRing accepts a signature made with any of its keys, so secrets can be
// rotated without rejecting clients that still hold the old one.
type KeyRing []HMAC

// ParseKeyRing splits a comma separated list of secrets. Blank entries are
// ignored.
func ParseKeyRing(secrets string) KeyRing {
	var ring KeyRing
	for _, s := range strings.Split(secrets, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ring = append(ring, HMAC{Key: []byte(s)})
		}
	}
	return ring
}

// Verify implements [Verifier].
func (k KeyRing) Verify(ctx context.Context, material Material) error {
	if len(k) == 0 {
		return errors.New("signature: key ring is empty")
	}
	var err error
	for _, key := range k {
		if err = key.Verify(ctx, material); err == nil {
			return nil
		}
	}
	return err
}

// Signer produces signatures for outgoing requests.
type Signer interface {
	Sign(ts time.Time, method, path string, canonicalBody []byte) (string, error)
}

// SignRequest canonicalizes the body of r and sets the Signature and
// Timestamp headers. The body stays readable.
func SignRequest(r *http.Request, signer Signer, now time.Time) error {
	raw, err := ReadAndBufferBody(r)
	if err != nil {
		return fmt.Errorf("signature: read body: %w", err)
	}
	canonical, err := CanonicalizeJSONBody(raw)
	if err != nil {
		return fmt.Errorf("signature: canonicalize body: %w", err)
	}
	now = now.UTC()
	sig, err := signer.Sign(now, r.Method, r.URL.Path, canonical)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderSignature, sig)
	r.Header.Set(HeaderTimestamp, now.Format(time.RFC3339Nano))
	return nil
}

// ReadAndBufferBody reads the request body while keeping it accessible for later handlers.
func ReadAndBufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

// CanonicalizeJSONBody normalizes arbitrary JSON into canonical form for
// signing. An empty body canonicalizes to null.
func CanonicalizeJSONBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("signature: multiple JSON documents in body")
	}
	return canonicaljson.Marshal(payload)
}

// ParseTimestamp accepts Timestamp header values in RFC3339 or RFC3339Nano format.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("signature: empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

// AbsDuration returns the absolute value of the supplied duration.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// BuildSigningPayload constructs the string that is HMAC-signed.
func BuildSigningPayload(ts time.Time, method, path string, canonicalBody []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339Nano))
	buf.WriteByte('\n')
	buf.WriteString(strings.ToUpper(method))
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.Write(canonicalBody)
	return buf.Bytes()
}
