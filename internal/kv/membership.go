package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Membership caches the routing sets the fanout path hits on every event:
// friend lists, group member lists and the reverse user-to-groups index. It
// also tracks live session IDs per user so a node can tell whether a user
// still has sessions somewhere else in the cluster.
//
// Caches are populated by the read path (Cache* after a SQL load) and kept
// honest by the write path, which only touches keys that already exist;
// empty sets are never cached, a miss just falls through to SQL again.
type Membership struct {
	rdb *redis.Client
}

func NewMembership(rdb *redis.Client) *Membership {
	return &Membership{rdb: rdb}
}

// Friends returns the cached friend set. The second result reports whether
// the key exists at all; an absent key is a miss, not an empty friend list.
func (m *Membership) Friends(ctx context.Context, userID int64) ([]int64, bool, error) {
	return m.readSet(ctx, friendsKey(userID))
}

func (m *Membership) CacheFriends(ctx context.Context, userID int64, friendIDs []int64, ttl time.Duration) error {
	return m.writeSet(ctx, friendsKey(userID), friendIDs, ttl)
}

// AddFriend extends both users' cached sets. Keys that are not cached are
// left alone so a partial set can never masquerade as the full list.
func (m *Membership) AddFriend(ctx context.Context, userID, friendID int64) error {
	if err := m.addIfCached(ctx, friendsKey(userID), friendID); err != nil {
		return err
	}
	return m.addIfCached(ctx, friendsKey(friendID), userID)
}

func (m *Membership) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	if err := m.rdb.SRem(ctx, friendsKey(userID), formatID(friendID)).Err(); err != nil {
		return err
	}
	return m.rdb.SRem(ctx, friendsKey(friendID), formatID(userID)).Err()
}

func (m *Membership) GroupMembers(ctx context.Context, groupID int64) ([]int64, bool, error) {
	return m.readSet(ctx, groupMembersKey(groupID))
}

func (m *Membership) CacheGroupMembers(ctx context.Context, groupID int64, memberIDs []int64, ttl time.Duration) error {
	return m.writeSet(ctx, groupMembersKey(groupID), memberIDs, ttl)
}

func (m *Membership) UserGroups(ctx context.Context, userID int64) ([]int64, bool, error) {
	return m.readSet(ctx, userGroupsKey(userID))
}

func (m *Membership) CacheUserGroups(ctx context.Context, userID int64, groupIDs []int64, ttl time.Duration) error {
	return m.writeSet(ctx, userGroupsKey(userID), groupIDs, ttl)
}

func (m *Membership) AddSession(ctx context.Context, userID int64, connID string) error {
	return m.rdb.SAdd(ctx, sessionsKey(userID), connID).Err()
}

func (m *Membership) RemoveSession(ctx context.Context, userID int64, connID string) error {
	return m.rdb.SRem(ctx, sessionsKey(userID), connID).Err()
}

// SessionCount reports live sessions across every node. Redis drops empty
// sets on the last SRem, so a fully disconnected user counts zero.
func (m *Membership) SessionCount(ctx context.Context, userID int64) (int64, error) {
	return m.rdb.SCard(ctx, sessionsKey(userID)).Result()
}

func (m *Membership) readSet(ctx context.Context, key string) ([]int64, bool, error) {
	n, err := m.rdb.Exists(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	raw, err := m.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	return parseIDs(raw), true, nil
}

func (m *Membership) writeSet(ctx context.Context, key string, ids []int64, ttl time.Duration) error {
	if len(ids) == 0 {
		// A set needs at least one member; let the miss path recompute.
		return m.rdb.Del(ctx, key).Err()
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = formatID(id)
	}
	_, err := m.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (m *Membership) addIfCached(ctx context.Context, key string, id int64) error {
	n, err := m.rdb.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	return m.rdb.SAdd(ctx, key, formatID(id)).Err()
}
