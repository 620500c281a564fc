package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Offline holds the per-user queues consumed on reconnect: full message
// envelopes and lightweight notification records. Queues are appended at the
// tail and read from the head, so replay preserves arrival order; the cap
// trims from the head, dropping the oldest entries first.
type Offline struct {
	rdb *redis.Client
}

func NewOffline(rdb *redis.Client) *Offline {
	return &Offline{rdb: rdb}
}

func (o *Offline) EnqueueMessage(ctx context.Context, userID int64, raw []byte, capLen int, ttl time.Duration) error {
	return o.enqueue(ctx, offlineMsgKey(userID), raw, capLen, ttl)
}

// DrainMessages pops up to max queued messages, oldest first. Popped entries
// are gone; callers that only want a look use PeekMessages.
func (o *Offline) DrainMessages(ctx context.Context, userID int64, max int) ([][]byte, error) {
	rows, err := o.rdb.LPopCount(ctx, offlineMsgKey(userID), max).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toBytes(rows), nil
}

func (o *Offline) PeekMessages(ctx context.Context, userID int64, max int) ([][]byte, error) {
	rows, err := o.rdb.LRange(ctx, offlineMsgKey(userID), 0, int64(max)-1).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(rows), nil
}

func (o *Offline) MessageCount(ctx context.Context, userID int64) (int64, error) {
	return o.rdb.LLen(ctx, offlineMsgKey(userID)).Result()
}

func (o *Offline) EnqueueNotification(ctx context.Context, userID int64, raw []byte, capLen int, ttl time.Duration) error {
	return o.enqueue(ctx, offlineNotifKey(userID), raw, capLen, ttl)
}

func (o *Offline) PeekNotifications(ctx context.Context, userID int64, max int) ([][]byte, error) {
	rows, err := o.rdb.LRange(ctx, offlineNotifKey(userID), 0, int64(max)-1).Result()
	if err != nil {
		return nil, err
	}
	return toBytes(rows), nil
}

// TrimNotifications discards the first n entries after a successful replay.
func (o *Offline) TrimNotifications(ctx context.Context, userID int64, n int) error {
	return o.rdb.LTrim(ctx, offlineNotifKey(userID), int64(n), -1).Err()
}

// Dedup claims an (event, user) delivery slot. The first caller gets true;
// anyone re-processing the same event within the window gets false. This is
// what keeps redelivered bus events from double-queueing offline copies.
func (o *Offline) Dedup(ctx context.Context, eventID string, userID int64, window time.Duration) (bool, error) {
	return o.rdb.SetNX(ctx, dedupKey(eventID, userID), "1", window).Result()
}

func (o *Offline) enqueue(ctx context.Context, key string, raw []byte, capLen int, ttl time.Duration) error {
	_, err := o.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		pipe.LTrim(ctx, key, int64(-capLen), -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func toBytes(rows []string) [][]byte {
	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = []byte(r)
	}
	return out
}
