package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
)

// membershipCacheTTL bounds staleness of the routing caches. Write paths
// patch the caches in place, so the TTL only matters for out-of-band edits.
const membershipCacheTTL = time.Hour

// Directory answers the membership questions the hot paths ask on every
// message and presence change: who are this user's friends, who is in this
// group, which groups does this user belong to. Reads go through Redis and
// fall back to SQL on a miss, repopulating as they go.
type Directory struct {
	relations repository.Relations
	groups    repository.Groups
	cache     *kv.Membership
	log       *slog.Logger
}

func NewDirectory(relations repository.Relations, groups repository.Groups, cache *kv.Membership, log *slog.Logger) *Directory {
	return &Directory{
		relations: relations,
		groups:    groups,
		cache:     cache,
		log:       log.With("component", "directory"),
	}
}

func (d *Directory) Friends(ctx context.Context, userID int64) ([]int64, error) {
	if ids, ok, err := d.cache.Friends(ctx, userID); err == nil && ok {
		return ids, nil
	} else if err != nil {
		d.log.Warn("friend cache read failed", "user_id", userID, "err", err)
	}
	ids, err := d.relations.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := d.cache.CacheFriends(ctx, userID, ids, membershipCacheTTL); err != nil {
		d.log.Warn("friend cache write failed", "user_id", userID, "err", err)
	}
	return ids, nil
}

func (d *Directory) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	ids, err := d.Friends(ctx, a)
	if err != nil {
		return false, err
	}
	return containsID(ids, b), nil
}

func (d *Directory) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	if ids, ok, err := d.cache.GroupMembers(ctx, groupID); err == nil && ok {
		return ids, nil
	} else if err != nil {
		d.log.Warn("group cache read failed", "group_id", groupID, "err", err)
	}
	ids, err := d.groups.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := d.cache.CacheGroupMembers(ctx, groupID, ids, membershipCacheTTL); err != nil {
		d.log.Warn("group cache write failed", "group_id", groupID, "err", err)
	}
	return ids, nil
}

func (d *Directory) UserGroups(ctx context.Context, userID int64) ([]int64, error) {
	if ids, ok, err := d.cache.UserGroups(ctx, userID); err == nil && ok {
		return ids, nil
	} else if err != nil {
		d.log.Warn("user-group cache read failed", "user_id", userID, "err", err)
	}
	ids, err := d.groups.GroupsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := d.cache.CacheUserGroups(ctx, userID, ids, membershipCacheTTL); err != nil {
		d.log.Warn("user-group cache write failed", "user_id", userID, "err", err)
	}
	return ids, nil
}

func (d *Directory) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	ids, err := d.GroupMembers(ctx, groupID)
	if err != nil {
		return false, err
	}
	return containsID(ids, userID), nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
