package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/service/dto"
)

func TestFriendRequestLifecycle(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")
	carol := w.seedUser(t, "carol")

	relCh := w.subscribeBus(t, event.TopicRelationship)

	req, err := w.relation.AddFriend(ctx, alice.ID, bob.ID, "met at gophercon")
	require.NoError(t, err)
	require.NotZero(t, req.ID)
	assert.Equal(t, model.RequestPending, req.State)

	sentEvt := nextBusEvent(t, relCh, func(e *dto.RelationEvent) bool { return e.EventType == dto.EventFriendRequestSent })
	assert.Equal(t, alice.ID, sentEvt.FromUserID)
	assert.Equal(t, bob.ID, sentEvt.ToUserID)
	assert.Equal(t, "met at gophercon", sentEvt.Message)

	pending, err := w.relation.Pending(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alice.ID, pending[0].From)

	// Only the recipient may resolve.
	_, err = w.relation.HandleRequest(ctx, carol.ID, req.ID, true)
	assert.Equal(t, imerr.PermissionDenied, imerr.CodeOf(err))

	res, err := w.relation.HandleRequest(ctx, bob.ID, req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, res.State)

	accEvt := nextBusEvent(t, relCh, func(e *dto.RelationEvent) bool { return e.EventType == dto.EventFriendRequestAccepted })
	assert.Equal(t, req.ID, accEvt.RequestID)

	for _, pair := range [][2]int64{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		ok, err := w.relations.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// The state machine is terminal in both directions.
	_, err = w.relation.HandleRequest(ctx, bob.ID, req.ID, true)
	assert.Equal(t, imerr.FriendRequestAccepted, imerr.CodeOf(err))
	_, err = w.relation.AddFriend(ctx, alice.ID, bob.ID, "")
	assert.Equal(t, imerr.FriendAlreadyExists, imerr.CodeOf(err))
}

func TestAddFriendValidation(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")
	frozen := w.seedUser(t, "frozen")
	require.NoError(t, w.users.UpdateStatus(ctx, frozen.ID, model.UserStatusSuspended))

	_, err := w.relation.AddFriend(ctx, alice.ID, 0, "")
	assert.Equal(t, imerr.InvalidParams, imerr.CodeOf(err))

	_, err = w.relation.AddFriend(ctx, alice.ID, alice.ID, "")
	assert.Equal(t, imerr.FriendRequestSelf, imerr.CodeOf(err))

	_, err = w.relation.AddFriend(ctx, alice.ID, 424242, "")
	assert.Equal(t, imerr.UserNotFound, imerr.CodeOf(err))

	_, err = w.relation.AddFriend(ctx, alice.ID, frozen.ID, "")
	assert.Equal(t, imerr.UserStatusAbnormal, imerr.CodeOf(err))

	_, err = w.relation.AddFriend(ctx, alice.ID, bob.ID, "")
	require.NoError(t, err)
	_, err = w.relation.AddFriend(ctx, alice.ID, bob.ID, "again")
	assert.Equal(t, imerr.FriendRequestDuplicate, imerr.CodeOf(err))

	_, err = w.relation.HandleRequest(ctx, alice.ID, 424242, true)
	assert.Equal(t, imerr.FriendRequestNotFound, imerr.CodeOf(err))
}

func TestFriendRequestRejectAllowsRetry(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")

	req, err := w.relation.AddFriend(ctx, alice.ID, bob.ID, "")
	require.NoError(t, err)

	relCh := w.subscribeBus(t, event.TopicRelationship)
	res, err := w.relation.HandleRequest(ctx, bob.ID, req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, res.State)
	nextBusEvent(t, relCh, func(e *dto.RelationEvent) bool { return e.EventType == dto.EventFriendRequestRejected })

	ok, err := w.relations.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = w.relation.HandleRequest(ctx, bob.ID, req.ID, false)
	assert.Equal(t, imerr.FriendRequestRejected, imerr.CodeOf(err))

	// A rejection is not a ban; a fresh request may follow.
	again, err := w.relation.AddFriend(ctx, alice.ID, bob.ID, "second try")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestListFriendsOverlaysPresence(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")
	carol := w.seedUser(t, "carol")
	w.befriend(t, alice.ID, bob.ID)
	w.befriend(t, alice.ID, carol.ID)

	w.connect(t, bob.ID)

	friends, err := w.relation.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 2)

	byID := make(map[int64]model.FriendInfo, len(friends))
	for _, f := range friends {
		byID[f.ID] = f
	}
	assert.True(t, byID[bob.ID].Online)
	assert.False(t, byID[carol.ID].Online)
	assert.Equal(t, "bob", byID[bob.ID].Username)
}

func TestDeleteFriendCutsBothDirections(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")
	w.befriend(t, alice.ID, bob.ID)

	// Prime the routing cache so the delete has something to patch.
	_, err := w.delivery.Submit(ctx, textMessage(alice.ID, bob.ID, "before"))
	require.NoError(t, err)

	relCh := w.subscribeBus(t, event.TopicRelationship)
	require.NoError(t, w.relation.DeleteFriend(ctx, alice.ID, bob.ID))

	evt := nextBusEvent(t, relCh, func(e *dto.RelationEvent) bool { return e.EventType == dto.EventFriendDeleted })
	assert.Equal(t, alice.ID, evt.UserID)
	assert.Equal(t, bob.ID, evt.FriendID)

	friends, err := w.relation.ListFriends(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)

	err = w.relation.DeleteFriend(ctx, alice.ID, bob.ID)
	assert.Equal(t, imerr.FriendNotFound, imerr.CodeOf(err))

	// The messaging path sees the cut immediately.
	_, err = w.delivery.Submit(ctx, textMessage(alice.ID, bob.ID, "after"))
	assert.Equal(t, imerr.FriendNotFound, imerr.CodeOf(err))
}

func TestTransferHandshake(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")
	carol := w.seedUser(t, "carol")
	w.befriend(t, alice.ID, bob.ID)

	fileCh := w.subscribeBus(t, event.TopicFiles)

	_, err := w.transfer.Request(ctx, alice.ID, bob.ID, "", 100)
	assert.Equal(t, imerr.InvalidParams, imerr.CodeOf(err))
	_, err = w.transfer.Request(ctx, alice.ID, bob.ID, "x.bin", 0)
	assert.Equal(t, imerr.InvalidParams, imerr.CodeOf(err))
	_, err = w.transfer.Request(ctx, alice.ID, alice.ID, "x.bin", 100)
	assert.Equal(t, imerr.InvalidParams, imerr.CodeOf(err))
	_, err = w.transfer.Request(ctx, alice.ID, carol.ID, "x.bin", 100)
	assert.Equal(t, imerr.FriendNotFound, imerr.CodeOf(err))

	req, err := w.transfer.Request(ctx, alice.ID, bob.ID, "slides.pdf", 2048)
	require.NoError(t, err)
	require.NotZero(t, req.ID)

	offer := nextBusEvent(t, fileCh, func(e *dto.FileEvent) bool { return e.EventType == dto.EventFileTransferRequest })
	assert.Equal(t, bob.ID, offer.ToUserID)
	assert.Equal(t, "slides.pdf", offer.FileName)
	assert.Equal(t, int64(2048), offer.FileSize)

	// Only the target may answer.
	_, err = w.transfer.Respond(ctx, carol.ID, req.ID, true)
	assert.Equal(t, imerr.PermissionDenied, imerr.CodeOf(err))

	res, err := w.transfer.Respond(ctx, bob.ID, req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, res.State)

	answer := nextBusEvent(t, fileCh, func(e *dto.FileEvent) bool { return e.EventType == dto.EventFileTransferAccepted })
	assert.Equal(t, alice.ID, answer.ToUserID, "the response goes back to the originator")

	_, err = w.transfer.Respond(ctx, bob.ID, req.ID, false)
	assert.Equal(t, imerr.FileRequestHandled, imerr.CodeOf(err))
}

func TestTransferReject(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	alice := w.seedUser(t, "alice")
	bob := w.seedUser(t, "bob")
	w.befriend(t, alice.ID, bob.ID)

	req, err := w.transfer.Request(ctx, alice.ID, bob.ID, "huge.iso", 1<<30)
	require.NoError(t, err)

	fileCh := w.subscribeBus(t, event.TopicFiles)
	res, err := w.transfer.Respond(ctx, bob.ID, req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, res.State)

	evt := nextBusEvent(t, fileCh, func(e *dto.FileEvent) bool { return e.EventType == dto.EventFileTransferRejected })
	assert.Equal(t, alice.ID, evt.ToUserID)

	_, err = w.transfer.Respond(ctx, bob.ID, 424242, true)
	assert.Equal(t, imerr.FileRequestNotFound, imerr.CodeOf(err))
}
