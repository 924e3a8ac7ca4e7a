// Package suspicion detects repeated authentication failures from a single
// origin and surfaces them as suspicious_activity security events.
//
// Failure counts live in a Store so multiple gateway replicas behind one
// load balancer can share them; the in-memory store serves single-instance
// deployments and tests.
package suspicion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store counts authentication failures per origin within a rolling window.
type Store interface {
	// Incr increments the failure count for the key and returns the new
	// count. The count resets once the window elapses.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Close releases store resources.
	Close() error
}

// memoryEntry is one origin's failure count and window start.
type memoryEntry struct {
	count       int64
	windowStart time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an in-memory failure count store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Incr increments the failure count for the key.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		entry = &memoryEntry{windowStart: now}
		s.entries[key] = entry
	}

	entry.count++

	// Opportunistically drop other expired entries so the map does not
	// grow unbounded under scanning traffic.
	if len(s.entries) > 1024 {
		for k, e := range s.entries {
			if now.Sub(e.windowStart) >= window {
				delete(s.entries, k)
			}
		}
	}

	return entry.count, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	// Addr is the Redis server address.
	Addr string `yaml:"addr" json:"addr"`

	// Password is the Redis password.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the Redis database number.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// KeyPrefix namespaces the failure count keys. Defaults to
	// "camgate:authfail:".
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// GetEffectiveKeyPrefix returns the effective key prefix.
func (c *RedisConfig) GetEffectiveKeyPrefix() string {
	if c != nil && c.KeyPrefix != "" {
		return c.KeyPrefix
	}
	return "camgate:authfail:"
}

// RedisStore is a Redis-backed Store shared across gateway replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed failure count store.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		client: client,
		prefix: cfg.GetEffectiveKeyPrefix(),
	}, nil
}

// Incr increments the failure count for the key. The window TTL is set when
// the key is created, so the count expires as a unit.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := s.prefix + key

	count, err := s.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", full, err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, full, window).Err(); err != nil {
			return count, fmt.Errorf("redis expire %s: %w", full, err)
		}
	}

	return count, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure implementations satisfy the interface.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
