// Package redis implements the Redis-backed stores of the engine: the
// autosave store for in-flight attempt progress and the read-through
// cache for skill tree projections. Everything here is best-effort; a
// Redis outage degrades latency, never correctness.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when the requested key is absent.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when the initial connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when a value cannot be encoded
	// or decoded.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheKeyEmpty is returned on an empty key or pattern.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrCacheNilValue is returned when caching a nil projection.
	ErrCacheNilValue = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

const (
	prefixAutosave  = "autosave:"
	prefixSkillTree = "skilltree:"
)

const (
	// TTLAutosave matches the stale-attempt threshold, so an autosave
	// entry outlives the attempt it belongs to.
	TTLAutosave = 48 * time.Hour

	// TTLSkillTreeCache bounds how stale a skill tree projection can get.
	TTLSkillTreeCache = 5 * time.Minute
)

// AutosaveKey is the key for one attempt's in-flight progress.
func AutosaveKey(tenantID, attemptID string) string {
	return prefixAutosave + tenantID + ":" + attemptID
}

// SkillTreeKey is the key for one cached skill tree projection. The role
// is part of the key: teacher and student projections differ.
func SkillTreeKey(tenantID, studentID, role string) string {
	return prefixSkillTree + tenantID + ":" + studentID + ":" + role
}

// SkillTreePattern matches every cached projection of one student.
func SkillTreePattern(tenantID, studentID string) string {
	return prefixSkillTree + tenantID + ":" + studentID + ":*"
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the Redis connection settings, populated from
// config.RedisConfig by the entrypoints.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig targets a local Redis with a small pool.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns the host:port address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Cache is a thin JSON codec over one shared Redis client. AutosaveStore
// and SkillTreeCache both ride on it.
type Cache struct {
	client *redis.Client
}

// NewCache connects and verifies the connection with a ping.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// Client exposes the underlying connection, e.g. for the Redis event bus.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close shuts the connection pool down.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis is reachable. Wired into the health checker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set stores a JSON-encoded value under the key. A zero ttl means no
// expiry.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the value under the key into dest. Returns ErrCacheMiss if
// the key is absent.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeleteByPattern removes every key matching the pattern, scanning in
// batches so one student's invalidation never blocks Redis.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return ErrCacheKeyEmpty
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
