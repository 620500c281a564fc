package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// History is the hot cache for recent one-to-one conversations. Each pair of
// users shares one list keyed by their pair key, newest entry first, capped
// and expired so cold conversations cost nothing.
type History struct {
	rdb *redis.Client
}

func NewHistory(rdb *redis.Client) *History {
	return &History{rdb: rdb}
}

// Push prepends one serialized message and re-arms the cap and TTL in a
// single pipeline.
func (h *History) Push(ctx context.Context, pairKey int64, raw []byte, capLen int, ttl time.Duration) error {
	key := historyKey(pairKey)
	_, err := h.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		pipe.LTrim(ctx, key, 0, int64(capLen)-1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// Recent returns up to limit cached messages, newest first. An empty slice
// means a cache miss as far as callers care; they fall through to SQL.
func (h *History) Recent(ctx context.Context, pairKey int64, limit int) ([][]byte, error) {
	rows, err := h.rdb.LRange(ctx, historyKey(pairKey), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = []byte(r)
	}
	return out, nil
}
