package kv

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence keeps the cluster-wide online markers. A marker is a plain key
// with a TTL: every node refreshes the markers of its own connected users,
// so a crashed node's users simply age out instead of sticking online.
type Presence struct {
	rdb *redis.Client
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

// SetOnline writes or refreshes the online marker. The same call serves the
// initial announce and the periodic refresh.
func (p *Presence) SetOnline(ctx context.Context, userID int64, ttl time.Duration) error {
	return p.rdb.Set(ctx, onlineKey(userID), "1", ttl).Err()
}

// SetOffline drops the marker and any custom status immediately. Used when
// the last session detaches cleanly; unclean exits rely on the TTL.
func (p *Presence) SetOffline(ctx context.Context, userID int64) error {
	return p.rdb.Del(ctx, onlineKey(userID), statusKey(userID)).Err()
}

func (p *Presence) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := p.rdb.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OnlineAmong resolves markers for a batch of users in one round trip.
// Absent users map to false.
func (p *Presence) OnlineAmong(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = onlineKey(id)
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range userIDs {
		out[id] = vals[i] != nil
	}
	return out, nil
}

func (p *Presence) SetLastSeen(ctx context.Context, userID int64, at time.Time) error {
	return p.rdb.Set(ctx, lastSeenKey(userID), strconv.FormatInt(at.Unix(), 10), 0).Err()
}

// LastSeen returns the recorded timestamp and whether one exists.
func (p *Presence) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	raw, err := p.rdb.Get(ctx, lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(sec, 0), true, nil
}

// SetStatus stores a user-chosen rich status (away, busy, a custom line).
// It carries the marker TTL so a vanished node cannot strand stale statuses.
func (p *Presence) SetStatus(ctx context.Context, userID int64, status string, ttl time.Duration) error {
	return p.rdb.Set(ctx, statusKey(userID), status, ttl).Err()
}

// ExtendStatus re-arms the status TTL without touching the value. A no-op
// when no status is set.
func (p *Presence) ExtendStatus(ctx context.Context, userID int64, ttl time.Duration) error {
	return p.rdb.Expire(ctx, statusKey(userID), ttl).Err()
}

// Status returns the rich status, or "" when the user never set one.
func (p *Presence) Status(ctx context.Context, userID int64) (string, error) {
	raw, err := p.rdb.Get(ctx, statusKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return raw, err
}
