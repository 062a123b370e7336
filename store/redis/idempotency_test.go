package redis

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ucp"
)

func setupIdempotencyStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, ""), mr
}

func TestIdempotencyStoreReserveAndComplete(t *testing.T) {
	s, mr := setupIdempotencyStore(t)
	ctx := context.Background()

	rec, ok, err := s.Reserve(ctx, "idem-1", "fp-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fp-1", rec.Fingerprint)
	assert.True(t, mr.Exists("ucp:idempotency:idem-1"))

	existing, ok, err := s.Reserve(ctx, "idem-1", "fp-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "fp-1", existing.Fingerprint)
	assert.False(t, existing.Done)

	require.NoError(t, s.Complete(ctx, "idem-1", ucp.IdempotencyRecord{
		Fingerprint: "fp-1",
		Status:      http.StatusCreated,
		Body:        []byte(`{"id":"cs_1"}`),
	}, time.Hour))

	existing, ok, err = s.Reserve(ctx, "idem-1", "fp-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, existing.Done)
	assert.Equal(t, http.StatusCreated, existing.Status)
	assert.JSONEq(t, `{"id":"cs_1"}`, string(existing.Body))
}

func TestIdempotencyStoreReleaseAndExpiry(t *testing.T) {
	s, mr := setupIdempotencyStore(t)
	ctx := context.Background()

	_, ok, err := s.Reserve(ctx, "idem-2", "fp", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "idem-2"))
	_, ok, err = s.Reserve(ctx, "idem-2", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key should be reservable")

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Reserve(ctx, "idem-2", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired key should be reservable")
}

func TestIdempotencyStoreReportsRedisErrors(t *testing.T) {
	s, mr := setupIdempotencyStore(t)
	mr.SetError("LOADING")

	_, _, err := s.Reserve(context.Background(), "idem-3", "fp", time.Minute)
	assert.Error(t, err)
}
