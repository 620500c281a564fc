package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestPresenceMarkerLifecycle(t *testing.T) {
	t.Parallel()
	mr, client := testRedis(t)
	p := NewPresence(client)
	ctx := context.Background()

	online, err := p.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, p.SetOnline(ctx, 1, time.Minute))
	online, err = p.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)

	mr.FastForward(2 * time.Minute)
	online, err = p.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online, "marker should age out without refreshes")

	require.NoError(t, p.SetOnline(ctx, 1, time.Minute))
	require.NoError(t, p.SetStatus(ctx, 1, "away", time.Minute))
	status, err := p.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "away", status)

	require.NoError(t, p.SetOffline(ctx, 1))
	online, err = p.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
	status, err = p.Status(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, status, "going offline clears the rich status")
}

func TestPresenceOnlineAmong(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	p := NewPresence(client)
	ctx := context.Background()

	require.NoError(t, p.SetOnline(ctx, 1, time.Minute))
	require.NoError(t, p.SetOnline(ctx, 3, time.Minute))

	got, err := p.OnlineAmong(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 2: false, 3: true}, got)

	got, err = p.OnlineAmong(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPresenceLastSeen(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	p := NewPresence(client)
	ctx := context.Background()

	_, ok, err := p.LastSeen(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, p.SetLastSeen(ctx, 9, at))
	got, ok, err := p.LastSeen(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at.Unix(), got.Unix())
}

func TestHistoryCapAndOrder(t *testing.T) {
	t.Parallel()
	mr, client := testRedis(t)
	h := NewHistory(client)
	ctx := context.Background()
	const pairKey = int64(1<<30 | 2)

	for _, raw := range []string{"m1", "m2", "m3", "m4", "m5"} {
		require.NoError(t, h.Push(ctx, pairKey, []byte(raw), 3, time.Hour))
	}

	rows, err := h.Recent(ctx, pairKey, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3, "cap keeps only the newest entries")
	assert.Equal(t, "m5", string(rows[0]))
	assert.Equal(t, "m4", string(rows[1]))
	assert.Equal(t, "m3", string(rows[2]))

	rows, err = h.Recent(ctx, pairKey, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m5", string(rows[0]))

	mr.FastForward(2 * time.Hour)
	rows, err = h.Recent(ctx, pairKey, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "cold conversations expire")
}

func TestOfflineQueueOrder(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	o := NewOffline(client)
	ctx := context.Background()

	for _, raw := range []string{"m1", "m2", "m3"} {
		require.NoError(t, o.EnqueueMessage(ctx, 7, []byte(raw), 10, time.Hour))
	}

	peeked, err := o.PeekMessages(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, peeked, 2)
	assert.Equal(t, "m1", string(peeked[0]), "replay is oldest first")
	assert.Equal(t, "m2", string(peeked[1]))

	n, err := o.MessageCount(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n, "peek does not consume")

	drained, err := o.DrainMessages(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	assert.Equal(t, "m1", string(drained[0]))

	drained, err = o.DrainMessages(ctx, 7, 5)
	require.NoError(t, err)
	require.Len(t, drained, 1)
	assert.Equal(t, "m3", string(drained[0]))

	drained, err = o.DrainMessages(ctx, 7, 5)
	require.NoError(t, err)
	assert.Empty(t, drained, "empty queue drains to nothing, not an error")
}

func TestOfflineQueueCapDropsOldest(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	o := NewOffline(client)
	ctx := context.Background()

	for _, raw := range []string{"m1", "m2", "m3"} {
		require.NoError(t, o.EnqueueMessage(ctx, 7, []byte(raw), 2, time.Hour))
	}

	rows, err := o.PeekMessages(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m2", string(rows[0]))
	assert.Equal(t, "m3", string(rows[1]))
}

func TestOfflineNotificationsTrim(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	o := NewOffline(client)
	ctx := context.Background()

	for _, raw := range []string{"n1", "n2", "n3"} {
		require.NoError(t, o.EnqueueNotification(ctx, 4, []byte(raw), 10, time.Hour))
	}

	rows, err := o.PeekNotifications(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "n1", string(rows[0]))

	require.NoError(t, o.TrimNotifications(ctx, 4, 2))
	rows, err = o.PeekNotifications(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "n3", string(rows[0]))
}

func TestOfflineDedupWindow(t *testing.T) {
	t.Parallel()
	mr, client := testRedis(t)
	o := NewOffline(client)
	ctx := context.Background()

	first, err := o.Dedup(ctx, "ev-1", 7, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := o.Dedup(ctx, "ev-1", 7, time.Minute)
	require.NoError(t, err)
	assert.False(t, again, "same event and user within the window")

	other, err := o.Dedup(ctx, "ev-1", 8, time.Minute)
	require.NoError(t, err)
	assert.True(t, other, "dedup is per recipient")

	mr.FastForward(2 * time.Minute)
	later, err := o.Dedup(ctx, "ev-1", 7, time.Minute)
	require.NoError(t, err)
	assert.True(t, later)
}

func TestMembershipFriendsCache(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	m := NewMembership(client)
	ctx := context.Background()

	_, ok, err := m.Friends(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "absent key is a miss")

	require.NoError(t, m.CacheFriends(ctx, 1, []int64{2, 3}, time.Hour))
	ids, ok, err := m.Friends(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{2, 3}, ids)

	// Write-through only extends sets that are already cached.
	require.NoError(t, m.AddFriend(ctx, 1, 4))
	ids, ok, err = m.Friends(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{2, 3, 4}, ids)
	_, ok, err = m.Friends(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok, "the uncached side stays a miss")

	require.NoError(t, m.RemoveFriend(ctx, 1, 4))
	ids, _, err = m.Friends(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, ids)

	require.NoError(t, m.CacheFriends(ctx, 1, nil, time.Hour))
	_, ok, err = m.Friends(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "empty lists are not cached")
}

func TestMembershipGroupCaches(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	m := NewMembership(client)
	ctx := context.Background()

	_, ok, err := m.GroupMembers(ctx, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.CacheGroupMembers(ctx, 100, []int64{1, 2, 3}, time.Hour))
	ids, ok, err := m.GroupMembers(ctx, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	require.NoError(t, m.CacheUserGroups(ctx, 1, []int64{100, 200}, time.Hour))
	groups, ok, err := m.UserGroups(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{100, 200}, groups)
}

func TestMembershipSessions(t *testing.T) {
	t.Parallel()
	_, client := testRedis(t)
	m := NewMembership(client)
	ctx := context.Background()

	require.NoError(t, m.AddSession(ctx, 1, "conn-a"))
	require.NoError(t, m.AddSession(ctx, 1, "conn-b"))
	n, err := m.SessionCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, m.RemoveSession(ctx, 1, "conn-a"))
	n, err = m.SessionCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, m.RemoveSession(ctx, 1, "conn-b"))
	n, err = m.SessionCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVerificationFlow(t *testing.T) {
	t.Parallel()
	mr, client := testRedis(t)
	v := NewVerification(client)
	ctx := context.Background()
	const email = "dev@example.com"

	ok, err := v.ReserveSend(ctx, email, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.ReserveSend(ctx, email, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second send inside the window is refused")

	require.NoError(t, v.SetCode(ctx, email, "482913", 10*time.Minute))
	code, err := v.Code(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "482913", code)

	require.NoError(t, v.Delete(ctx, email))
	code, err = v.Code(ctx, email)
	require.NoError(t, err)
	assert.Empty(t, code)

	mr.FastForward(2 * time.Minute)
	ok, err = v.ReserveSend(ctx, email, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "reservation frees up after the window")
}
