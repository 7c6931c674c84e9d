package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"kanban-sync/domain"
	"kanban-sync/internal/consts"
)

type backend interface {
	Snapshot() domain.Board
	Seq() uint64
	Epoch() string
}

// Cache serves board reads from Redis while the cached copy is still at the
// store's current sequence, falling back to a fresh snapshot otherwise.
// Entries are keyed by the store's epoch so instances sharing a Redis never
// read each other's boards.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
	key   string
}

// NewCache creates a caching wrapper around base using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, key: SnapshotKey(base.Epoch())}
}

// SnapshotKey is the Redis key holding the cached board of the given epoch.
func SnapshotKey(epoch string) string {
	return consts.BoardSnapshotKey + ":" + epoch
}

// FetchBoard returns a snapshot no older than the store's sequence at call time.
func (c *Cache) FetchBoard(ctx context.Context) domain.Board {
	seq := c.base.Seq()
	if b, ok := c.load(ctx); ok && b.Seq == seq {
		return b
	}
	b := c.base.Snapshot()
	c.store(ctx, b)
	return b
}

func (c *Cache) load(ctx context.Context) (domain.Board, bool) {
	if c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the store without failing.
			_ = c.redis.Del(ctx, c.key).Err()
		}
		return domain.Board{}, false
	}
	var b domain.Board
	if err := sonic.Unmarshal(data, &b); err != nil {
		_ = c.redis.Del(ctx, c.key).Err()
		return domain.Board{}, false
	}
	return b, true
}

func (c *Cache) store(ctx context.Context, b domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(b)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, c.key, data, c.ttl).Err()
}
