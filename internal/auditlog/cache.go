package auditlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache is a best-effort lookup from request_id to record id so hot
// idempotent retries can skip the insert attempt. It is an optimization
// only: misses and errors fall through to the storage path, and the
// storage-level uniqueness constraint stays the sole arbiter of who wins.

type ReplayCache interface {
	Get(ctx context.Context, requestID string) (string, bool)
	Set(ctx context.Context, requestID, recordID string)
}

const replayKeyPrefix = "auditlog:request:"

// RedisReplayCache implements ReplayCache on a shared Redis instance.
type RedisReplayCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReplayCache(rdb *redis.Client, ttl time.Duration) *RedisReplayCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisReplayCache{rdb: rdb, ttl: ttl}
}

func (c *RedisReplayCache) Get(ctx context.Context, requestID string) (string, bool) {
	id, err := c.rdb.Get(ctx, replayKeyPrefix+requestID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("replay cache get failed", "err", err)
		}
		return "", false
	}
	return id, true
}

func (c *RedisReplayCache) Set(ctx context.Context, requestID, recordID string) {
	if err := c.rdb.Set(ctx, replayKeyPrefix+requestID, recordID, c.ttl).Err(); err != nil {
		slog.Debug("replay cache set failed", "err", err)
	}
}
