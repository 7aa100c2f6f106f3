package fetch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry is a cached response. Superseded entries are overwritten, never merged.
type Entry struct {
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
	TotalCount int             `json:"totalCount"`
}

// Cache stores entries by key. Freshness is decided by the Fetcher from Entry.Timestamp.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

const DefaultMemorySize = 1024

// MemoryCache is a process-local Cache bounded by size. Entries past ttl are
// dropped by the LRU itself; freshness is still checked on read.
type MemoryCache struct {
	lru *expirable.LRU[string, Entry]
}

type MemoryCacheOption func(*memoryCacheConfig)

type memoryCacheConfig struct {
	size int
	ttl  time.Duration
}

// WithMemorySize caps the number of entries. Default is DefaultMemorySize.
func WithMemorySize(size int) MemoryCacheOption {
	return func(c *memoryCacheConfig) { c.size = size }
}

// WithMemoryTTL sets how long an entry may linger. Default is DefaultTTL.
func WithMemoryTTL(ttl time.Duration) MemoryCacheOption {
	return func(c *memoryCacheConfig) { c.ttl = ttl }
}

func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	cfg := memoryCacheConfig{size: DefaultMemorySize, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryCache{lru: expirable.NewLRU[string, Entry](cfg.size, nil, cfg.ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return &e, true
}

func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	c.lru.Add(key, *entry)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
	return nil
}

func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

const DefaultRedisPrefix = "merchant:fetch:"

// RedisCache shares cached responses between BFF replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisCacheOption func(*RedisCache)

// WithRedisPrefix sets the key namespace. Default is DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// WithRedisTTL sets the key expiry used for cleanup. Freshness is still checked on read.
func WithRedisTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.ttl = ttl }
}

func NewRedisCache(client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get treats redis errors and corrupt payloads as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
