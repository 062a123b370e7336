// Package redis is a checkout.Store backed by Redis.
//
// Sessions are JSON documents under <prefix>session:<id>; orders are written
// under <prefix>order:<id> in the same MULTI block that completes their
// session. Updates use WATCH for optimistic concurrency and retry a bounded
// number of times before reporting checkout.ErrSessionBusy.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sumup/ucp/checkout"
)

const (
	defaultPrefix     = "ucp:"
	defaultMaxRetries = 8
	scanBatch         = 100
)

// Store implements checkout.Store on a Redis client.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key. The default is "ucp:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithMaxRetries bounds how often a conflicting update is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ checkout.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, session *checkout.Session) error {
	rec := session.Clone()
	rec.Version = 1
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.sessionKey(session.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", checkout.ErrSessionExists, session.ID)
	}
	session.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*checkout.Session, error) {
	return s.load(ctx, s.client, id)
}

func (s *Store) Update(ctx context.Context, id string, fn func(*checkout.Session) error) (*checkout.Session, error) {
	key := s.sessionKey(id)
	var result *checkout.Session

	txf := func(tx *redis.Tx) error {
		before, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next := before.Clone()
		if err := fn(next); err != nil {
			return err
		}
		created, err := checkout.CheckOrderWrite(before, next)
		if err != nil {
			return err
		}
		next.ID = before.ID
		next.Version = before.Version + 1

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session failed: %w", err)
		}
		var orderPayload []byte
		if created {
			if orderPayload, err = json.Marshal(next.Order); err != nil {
				return fmt.Errorf("marshal order failed: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if created {
				pipe.Set(ctx, s.orderKey(next.Order.ID), orderPayload, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, redis.TxFailedErr):
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", checkout.ErrSessionBusy, id, ctx.Err())
			}
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s: gave up after %d conflicting updates", checkout.ErrSessionBusy, id, s.maxRetries)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*checkout.Order, error) {
	data, err := s.client.Get(ctx, s.orderKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, checkout.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var order checkout.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshal order failed: %w", err)
	}
	return &order, nil
}

// Purge scans all sessions and deletes the purgeable ones. A session updated
// while it is examined is skipped until the next run.
func (s *Store) Purge(ctx context.Context, now, cutoff time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"session:*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			var session checkout.Session
			if err := json.Unmarshal(data, &session); err != nil {
				return fmt.Errorf("unmarshal session failed: %w", err)
			}
			if !session.Purgeable(now, cutoff) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err == nil {
				removed++
			}
			return err
		}, key)
		if err != nil && !errors.Is(err, redis.TxFailedErr) && !errors.Is(err, redis.Nil) {
			return removed, fmt.Errorf("purge %s failed: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan failed: %w", err)
	}
	return removed, nil
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (*checkout.Session, error) {
	data, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, checkout.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var session checkout.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &session, nil
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) orderKey(id string) string {
	return s.prefix + "order:" + id
}
