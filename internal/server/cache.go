package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long an idempotent response is replayed.
const DefaultCacheTTL = 24 * time.Hour

// CachedResponse is a response stored under an Idempotency-Key.
type CachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyCache stores the first successful response for each key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (CachedResponse, bool, error)
	// Put stores resp unless key is already present.
	Put(ctx context.Context, key string, resp CachedResponse) error
}

type memoryEntry struct {
	resp    CachedResponse
	expires time.Time
}

// MemoryCache is an in-process IdempotencyCache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (CachedResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return CachedResponse{}, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return CachedResponse{}, false, nil
	}
	return e.resp, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, resp CachedResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !c.now().After(e.expires) {
		return nil
	}
	c.entries[key] = memoryEntry{resp: resp, expires: c.now().Add(c.ttl)}
	return nil
}

// RedisCache shares idempotent responses between server replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "hensco:idem:"}
}

// OpenRedis connects to the server at url and checks it answers.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (CachedResponse, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedResponse{}, false, nil
	}
	if err != nil {
		return CachedResponse{}, false, fmt.Errorf("redis get: %w", err)
	}
	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return CachedResponse{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	return resp, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := c.client.SetNX(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
