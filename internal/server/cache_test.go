package server

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := t.Context()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "k", CachedResponse{Status: 201, Body: []byte(`{"id":"TXN-000001"}`)}))
	require.NoError(t, c.Put(ctx, "k", CachedResponse{Status: 201, Body: []byte(`{"id":"other"}`)}))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"TXN-000001"}`, string(got.Body), "first write wins")

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired")
}

// TestRedisCache runs against a real server named by HENSCO_TEST_REDIS_URL.
func TestRedisCache(t *testing.T) {
	url := os.Getenv("HENSCO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HENSCO_TEST_REDIS_URL not set")
	}
	ctx := t.Context()
	client, err := OpenRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	c := NewRedisCache(client, time.Minute)
	key := "test-" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, c.prefix+key) })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, CachedResponse{Status: 200, Body: []byte(`{"id":"a"}`)}))
	require.NoError(t, c.Put(ctx, key, CachedResponse{Status: 200, Body: []byte(`{"id":"b"}`)}))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, got.Status)
	assert.JSONEq(t, `{"id":"a"}`, string(got.Body))
}

func TestOpenRedis_BadURL(t *testing.T) {
	_, err := OpenRedis(t.Context(), "not a url")
	assert.ErrorContains(t, err, "invalid redis url")
}
