package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-sync/internal/consts"
)

// Deduper remembers request ids so a retried mutation is applied once.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, key string) (bool, error)
	// Remove forgets a key, used when the mutation it guarded was rejected.
	Remove(ctx context.Context, key string) error
}

// RedisDeduper stores processed request ids in Redis so every instance sharing
// the server sees the same history.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(key string) string {
	return fmt.Sprintf("%s:%s", consts.DedupeKeyPrefix, key)
}

func (r *RedisDeduper) Add(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
