package ucp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sumup/ucp/signature"
)

type signatureMiddlewareConfig struct {
	Verifier      signature.Verifier
	RequireSigned bool
	MaxClockSkew  time.Duration
	Clock         func() time.Time
}

func newSignatureMiddleware(cfg signatureMiddlewareConfig) Middleware {
	if cfg.Verifier == nil {
		return nil
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			material, present, payload := cfg.material(r)
			switch {
			case payload != nil:
				writeJSONError(w, payload)
				return
			case !present:
				if cfg.RequireSigned {
					writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, SignatureRequired, "Signature and Timestamp headers are required"))
					return
				}
				next(w, r)
				return
			}
			if err := cfg.Verifier.Verify(r.Context(), material); err != nil {
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidSignature, "signature verification failed"))
				return
			}
			next(w, r)
		}
	}
}

// material collects what the verifier needs from r. present is false when the
// request carries neither signature header.
func (cfg signatureMiddlewareConfig) material(r *http.Request) (signature.Material, bool, *Error) {
	sig := strings.TrimSpace(r.Header.Get(signature.HeaderSignature))
	timestampHeader := strings.TrimSpace(r.Header.Get(signature.HeaderTimestamp))
	if sig == "" && timestampHeader == "" {
		return signature.Material{}, false, nil
	}
	if sig == "" || timestampHeader == "" {
		return signature.Material{}, true, NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature, "Signature and Timestamp headers must both be provided")
	}
	ts, err := signature.ParseTimestamp(timestampHeader)
	if err != nil {
		return signature.Material{}, true, NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature, "Timestamp must be RFC3339")
	}
	ts = ts.UTC()
	if cfg.MaxClockSkew > 0 {
		if skew := signature.AbsDuration(cfg.Clock().Sub(ts)); skew > cfg.MaxClockSkew {
			return signature.Material{}, true, NewHTTPError(http.StatusUnauthorized, InvalidRequest, StaleTimestamp, fmt.Sprintf("timestamp skew exceeds %s", cfg.MaxClockSkew))
		}
	}
	raw, err := signature.ReadAndBufferBody(r)
	if err != nil {
		return signature.Material{}, true, NewInvalidRequestError("unable to read request body")
	}
	canonicalBody, err := signature.CanonicalizeJSONBody(raw)
	if err != nil {
		return signature.Material{}, true, NewInvalidRequestError("request body must be valid JSON")
	}
	return signature.Material{
		Signature:     sig,
		Timestamp:     ts,
		CanonicalBody: canonicalBody,
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Headers:       r.Header.Clone(),
	}, true, nil
}
