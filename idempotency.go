package ucp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sumup/ucp/signature"
)

const maxIdempotencyKeyLength = 255

// IdempotencyRecord is what an [IdempotencyStore] keeps per Idempotency-Key.
type IdempotencyRecord struct {
	// Fingerprint identifies the request: method, path and canonical body.
	Fingerprint string `json:"fingerprint"`
	// Done is false while the first request is still being processed.
	Done   bool   `json:"done"`
	Status int    `json:"status,omitempty"`
	Body   []byte `json:"body,omitempty"`
}

// IdempotencyStore remembers responses by Idempotency-Key.
type IdempotencyStore interface {
	// Reserve claims key for a request with fingerprint. When the key is
	// already claimed it returns the existing record and false.
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (IdempotencyRecord, bool, error)
	// Complete stores the final response for a reserved key.
	Complete(ctx context.Context, key string, record IdempotencyRecord, ttl time.Duration) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

// MemoryIdempotencyStore is an in-process [IdempotencyStore].
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryIdempotencyEntry
	clock   func() time.Time
}

type memoryIdempotencyEntry struct {
	record    IdempotencyRecord
	expiresAt time.Time
}

// NewMemoryIdempotencyStore returns an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		records: make(map[string]memoryIdempotencyEntry),
		clock:   time.Now,
	}
}

// Reserve implements [IdempotencyStore].
func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key, fingerprint string, ttl time.Duration) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for k, entry := range s.records {
		if !now.Before(entry.expiresAt) {
			delete(s.records, k)
		}
	}
	if entry, ok := s.records[key]; ok {
		return entry.record, false, nil
	}
	record := IdempotencyRecord{Fingerprint: fingerprint}
	s.records[key] = memoryIdempotencyEntry{record: record, expiresAt: now.Add(ttl)}
	return record, true, nil
}

// Complete implements [IdempotencyStore].
func (s *MemoryIdempotencyStore) Complete(_ context.Context, key string, record IdempotencyRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Done = true
	s.records[key] = memoryIdempotencyEntry{record: record, expiresAt: s.clock().Add(ttl)}
	return nil
}

// Release implements [IdempotencyStore].
func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func requestFingerprint(method, path string, canonicalBody []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{'\n'})
	sum.Write([]byte(path))
	sum.Write([]byte{'\n'})
	sum.Write(canonicalBody)
	return hex.EncodeToString(sum.Sum(nil))
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

func (h *CheckoutHandler) idempotencyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || r.Method == http.MethodGet {
			next(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeJSONError(w, NewInvalidRequestError("Idempotency-Key cannot exceed 255 characters"))
			return
		}
		raw, err := signature.ReadAndBufferBody(r)
		if err != nil {
			writeJSONError(w, NewInvalidRequestError("unable to read request body"))
			return
		}
		canonicalBody, err := signature.CanonicalizeJSONBody(raw)
		if err != nil {
			writeJSONError(w, NewInvalidRequestError("request body must be valid JSON"))
			return
		}
		fingerprint := requestFingerprint(r.Method, r.URL.Path, canonicalBody)

		ttl := h.cfg.idempotencyTTL
		store := h.cfg.idempotency
		existing, reserved, err := store.Reserve(r.Context(), key, fingerprint, ttl)
		if err != nil {
			h.cfg.logger.Error().Err(err).Str("idempotency_key", key).Msg("reserving idempotency key")
			writeJSONError(w, NewServiceUnavailableError("idempotency store unavailable", WithRetryAfter(time.Second)))
			return
		}
		if !reserved {
			switch {
			case existing.Fingerprint != fingerprint:
				writeJSONError(w, NewHTTPError(http.StatusUnprocessableEntity, InvalidRequest, IdempotencyConflict, "Idempotency-Key was already used with different parameters"))
			case !existing.Done:
				writeJSONError(w, NewHTTPError(http.StatusConflict, RequestConflict, DuplicateRequest, "a request with this Idempotency-Key is still being processed", WithRetryAfter(time.Second)))
			default:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("API-Version", APIVersion)
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				_, _ = w.Write(existing.Body)
			}
			return
		}

		rec := &recordingWriter{ResponseWriter: w}
		next(rec, r)

		ctx := context.WithoutCancel(r.Context())
		if rec.status == 0 || rec.status >= http.StatusInternalServerError || rec.Header().Get("Retry-After") != "" {
			if err := store.Release(ctx, key); err != nil {
				h.cfg.logger.Error().Err(err).Str("idempotency_key", key).Msg("releasing idempotency key")
			}
			return
		}
		record := IdempotencyRecord{Fingerprint: fingerprint, Done: true, Status: rec.status, Body: rec.body.Bytes()}
		if err := store.Complete(ctx, key, record, ttl); err != nil {
			h.cfg.logger.Error().Err(err).Str("idempotency_key", key).Msg("storing idempotent response")
		}
	}
}
