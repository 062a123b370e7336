package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sumup/ucp"
)

// IdempotencyStore implements ucp.IdempotencyStore with one expiring key per
// Idempotency-Key, so replays survive restarts and work across replicas.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ucp.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore returns an IdempotencyStore using client. An empty
// prefix uses "ucp:".
func NewIdempotencyStore(client redis.UniversalClient, prefix string) *IdempotencyStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &IdempotencyStore{client: client, prefix: prefix}
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (ucp.IdempotencyRecord, bool, error) {
	record := ucp.IdempotencyRecord{Fingerprint: fingerprint}
	payload, err := json.Marshal(record)
	if err != nil {
		return ucp.IdempotencyRecord{}, false, fmt.Errorf("marshal idempotency record failed: %w", err)
	}
	// The existing key can expire between SETNX and GET; one more round settles it.
	for range 2 {
		ok, err := s.client.SetNX(ctx, s.key(key), payload, ttl).Result()
		if err != nil {
			return ucp.IdempotencyRecord{}, false, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			return record, true, nil
		}
		raw, err := s.client.Get(ctx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return ucp.IdempotencyRecord{}, false, fmt.Errorf("redis get failed: %w", err)
		}
		var existing ucp.IdempotencyRecord
		if err := json.Unmarshal(raw, &existing); err != nil {
			return ucp.IdempotencyRecord{}, false, fmt.Errorf("unmarshal idempotency record failed: %w", err)
		}
		return existing, false, nil
	}
	return ucp.IdempotencyRecord{}, false, fmt.Errorf("idempotency key %q kept expiring during reservation", key)
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, record ucp.IdempotencyRecord, ttl time.Duration) error {
	record.Done = true
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal idempotency record failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(key string) string {
	return s.prefix + "idempotency:" + key
}
