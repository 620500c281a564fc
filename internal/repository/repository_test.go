package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	// In-memory sqlite gives every connection its own empty database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrate(db))
	return db
}

func seedUser(t *testing.T, store Users, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Status:       model.UserStatusActive,
	}
	require.NoError(t, store.Create(context.Background(), u))
	return u
}

func TestUsersCreateAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewUsers(testDB(t))

	u := seedUser(t, store, "alice")
	require.NotZero(t, u.ID)

	byID, err := store.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := store.ByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := store.ByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = store.ByID(ctx, 9999)
	assert.Equal(t, imerr.UserNotFound, imerr.CodeOf(err))

	dup := &model.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"}
	err = store.Create(ctx, dup)
	assert.Equal(t, imerr.UserAlreadyExists, imerr.CodeOf(err))
}

func TestUsersUpdateAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewUsers(testDB(t))

	u := seedUser(t, store, "bob")
	require.NoError(t, store.UpdateProfile(ctx, u.ID, map[string]any{"nickname": "Bobby"}))
	require.NoError(t, store.UpdateStatus(ctx, u.ID, model.UserStatusSuspended))
	require.NoError(t, store.UpdateLastLogin(ctx, u.ID, time.Now()))

	got, err := store.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bobby", got.Nickname)
	assert.Equal(t, model.UserStatusSuspended, got.Status)
	assert.NotNil(t, got.LastLoginAt)

	err = store.UpdateProfile(ctx, 9999, map[string]any{"nickname": "x"})
	assert.Equal(t, imerr.UserNotFound, imerr.CodeOf(err))

	seedUser(t, store, "carol")
	suspended := model.UserStatusSuspended
	listed, err := store.List(ctx, &suspended, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "bob", listed[0].Username)

	all, err := store.List(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.CreateLoginLog(ctx, u.ID, "127.0.0.1", "test-agent"))
	require.NoError(t, store.CreateApprovalLog(ctx, 1, u.ID, "approve"))
}

func newMessage(from, to int64, body string, at int64) *model.Message {
	return &model.Message{
		From:    from,
		To:      model.UserRecipient(to),
		Kind:    model.KindText,
		Payload: []byte(body),
		SentAt:  at,
	}
}

func TestMessagesHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMessages(testDB(t))

	m1 := newMessage(1, 2, "first", 100)
	m2 := newMessage(2, 1, "second", 200)
	m3 := newMessage(1, 2, "third", 300)
	for _, m := range []*model.Message{m1, m2, m3} {
		require.NoError(t, store.Create(ctx, m))
		require.NotZero(t, m.ID)
	}

	// Same pair but a group target and an unrelated pair: both excluded.
	group := &model.Message{From: 1, To: model.GroupRecipient(2), Kind: model.KindText, Payload: []byte("g"), SentAt: 400}
	require.NoError(t, store.Create(ctx, group))
	require.NoError(t, store.Create(ctx, newMessage(1, 3, "other", 500)))

	hist, err := store.History(ctx, 1, 2, 10)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "third", string(hist[0].Payload))
	assert.Equal(t, "second", string(hist[1].Payload))
	assert.Equal(t, "first", string(hist[2].Payload))

	limited, err := store.History(ctx, 2, 1, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", string(limited[0].Payload))
}

func TestMessagesMarkRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMessages(testDB(t))

	m := newMessage(1, 2, "hello", 100)
	require.NoError(t, store.Create(ctx, m))

	// Only the addressee may mark it, and only once.
	ok, err := store.MarkRead(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.MarkRead(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkRead(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.ByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
}

func TestRelationsAcceptFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRelations(testDB(t))

	req := &model.FriendRequest{From: 1, To: 2, Message: "hi"}
	require.NoError(t, store.CreateRequest(ctx, req))
	require.NotZero(t, req.ID)

	pending, err := store.HasPending(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, pending)

	inbox, err := store.PendingFor(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, int64(1), inbox[0].From)

	resolved, err := store.Accept(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, resolved.State)

	for _, pair := range [][2]int64{{1, 2}, {2, 1}} {
		friends, err := store.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, friends, "friendship must be symmetric")
	}

	ids, err := store.FriendIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	// A second resolution, either way, reports the decision that won.
	_, err = store.Accept(ctx, req.ID)
	assert.Equal(t, imerr.FriendRequestAccepted, imerr.CodeOf(err))
	_, err = store.Reject(ctx, req.ID)
	assert.Equal(t, imerr.FriendRequestAccepted, imerr.CodeOf(err))
}

func TestRelationsRejectFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRelations(testDB(t))

	req := &model.FriendRequest{From: 3, To: 4}
	require.NoError(t, store.CreateRequest(ctx, req))

	resolved, err := store.Reject(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, resolved.State)

	friends, err := store.AreFriends(ctx, 3, 4)
	require.NoError(t, err)
	assert.False(t, friends)

	_, err = store.Accept(ctx, req.ID)
	assert.Equal(t, imerr.FriendRequestRejected, imerr.CodeOf(err))

	_, err = store.Accept(ctx, 9999)
	assert.Equal(t, imerr.FriendRequestNotFound, imerr.CodeOf(err))
}

func TestRelationsFriendsOfAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)
	usersStore := NewUsers(db)
	store := NewRelations(db)

	alice := seedUser(t, usersStore, "alice")
	bob := seedUser(t, usersStore, "bob")

	req := &model.FriendRequest{From: alice.ID, To: bob.ID}
	require.NoError(t, store.CreateRequest(ctx, req))
	_, err := store.Accept(ctx, req.ID)
	require.NoError(t, err)

	entries, err := store.FriendsOf(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, bob.ID, entries[0].FriendID)
	assert.Equal(t, "bob", entries[0].Username)

	require.NoError(t, store.DeleteFriendship(ctx, alice.ID, bob.ID))
	for _, pair := range [][2]int64{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := store.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, friends)
	}

	err = store.DeleteFriendship(ctx, alice.ID, bob.ID)
	assert.Equal(t, imerr.FriendNotFound, imerr.CodeOf(err))
}

func TestGroupsMembership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewGroups(testDB(t))

	require.NoError(t, store.AddMember(ctx, 10, 1))
	require.NoError(t, store.AddMember(ctx, 10, 2))
	require.NoError(t, store.AddMember(ctx, 10, 2)) // idempotent
	require.NoError(t, store.AddMember(ctx, 11, 2))

	members, err := store.MembersOf(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, members)

	groupIDs, err := store.GroupsOf(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10, 11}, groupIDs)

	in, err := store.IsMember(ctx, 10, 1)
	require.NoError(t, err)
	assert.True(t, in)

	in, err = store.IsMember(ctx, 11, 1)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestTransfersResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTransfers(testDB(t))

	req := &model.FileTransferRequest{From: 1, To: 2, FileName: "doc.pdf", FileSize: 2048}
	require.NoError(t, store.CreateRequest(ctx, req))
	require.NotZero(t, req.ID)

	ok, err := store.Resolve(ctx, req.ID, model.RequestAccepted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Resolve(ctx, req.ID, model.RequestRejected)
	require.NoError(t, err)
	assert.False(t, ok, "terminal state must not change")

	got, err := store.ByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, got.State)

	f := &model.File{OwnerID: 2, Name: "doc.pdf", Size: 2048, MimeType: "application/pdf"}
	require.NoError(t, store.CreateFile(ctx, f))
	assert.NotZero(t, f.ID)
}

func TestNotificationsUnread(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewNotifications(testDB(t))

	var ids []int64
	for _, content := range []string{"one", "two", "three"} {
		n := &model.Notification{UserID: 5, Kind: model.NotificationFriendReq, Content: content}
		require.NoError(t, store.Create(ctx, n))
		ids = append(ids, n.ID)
	}
	other := &model.Notification{UserID: 6, Kind: model.NotificationGeneral, Content: "not yours"}
	require.NoError(t, store.Create(ctx, other))

	require.NoError(t, store.MarkRead(ctx, 5, []int64{ids[0]}))
	// Scoped to the owner: user 5 cannot mark user 6's row.
	require.NoError(t, store.MarkRead(ctx, 5, []int64{other.ID}))

	unread, err := store.UnreadFor(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "three", unread[0].Content)
	assert.Equal(t, "two", unread[1].Content)

	limited, err := store.UnreadFor(ctx, 5, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "three", limited[0].Content)

	otherUnread, err := store.UnreadFor(ctx, 6, 10)
	require.NoError(t, err)
	assert.Len(t, otherUnread, 1)

	a := &model.SystemAnnouncement{Title: "maint", Content: "tonight", SenderID: 1}
	require.NoError(t, store.CreateAnnouncement(ctx, a))
	assert.NotZero(t, a.ID)
}
