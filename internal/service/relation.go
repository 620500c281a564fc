package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service/dto"
)

// RelationService runs the friend-request state machine and the friend
// list. SQL rows are the source of truth; the membership cache is patched
// in the same call so routing decisions see changes immediately; the
// notification side rides the bus so every node reacts uniformly.
type RelationService struct {
	relations repository.Relations
	users     repository.Users
	cache     *kv.Membership
	markers   *kv.Presence
	bus       pubsub.EventDispatcher
	origin    Origin
	log       *slog.Logger
}

func NewRelationService(
	relations repository.Relations,
	users repository.Users,
	cache *kv.Membership,
	markers *kv.Presence,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *RelationService {
	return &RelationService{
		relations: relations,
		users:     users,
		cache:     cache,
		markers:   markers,
		bus:       bus,
		origin:    origin,
		log:       log.With("component", "relation"),
	}
}

// AddFriend opens a friend request from fromID to toID.
func (s *RelationService) AddFriend(ctx context.Context, fromID, toID int64, message string) (*model.FriendRequest, error) {
	if toID <= 0 {
		return nil, imerr.New(imerr.InvalidParams, "missing target user")
	}
	if fromID == toID {
		return nil, imerr.New(imerr.FriendRequestSelf, "cannot befriend yourself")
	}

	target, err := s.users.ByID(ctx, toID)
	if err != nil {
		return nil, err
	}
	if target.Status != model.UserStatusActive {
		return nil, imerr.New(imerr.UserStatusAbnormal, "user cannot receive requests")
	}

	already, err := s.relations.AreFriends(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, imerr.New(imerr.FriendAlreadyExists, "already friends")
	}
	pending, err := s.relations.HasPending(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, imerr.New(imerr.FriendRequestDuplicate, "request already pending")
	}

	req := &model.FriendRequest{From: fromID, To: toID, Message: message}
	if err := s.relations.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.publish(ctx, dto.NewRelationEvent(dto.EventFriendRequestSent, req, s.origin.String()), toID)
	return req, nil
}

// HandleRequest resolves a pending request. Only the recipient may act, and
// a terminal request reports which way it already went.
func (s *RelationService) HandleRequest(ctx context.Context, userID, requestID int64, accept bool) (*model.FriendRequest, error) {
	req, err := s.relations.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.To != userID {
		return nil, imerr.New(imerr.PermissionDenied, "not the recipient of this request")
	}
	switch req.State {
	case model.RequestAccepted:
		return nil, imerr.New(imerr.FriendRequestAccepted, "request already accepted")
	case model.RequestRejected:
		return nil, imerr.New(imerr.FriendRequestRejected, "request already rejected")
	}

	if accept {
		res, err := s.relations.Accept(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.AddFriend(ctx, res.From, res.To); err != nil {
			s.log.Warn("friend cache patch failed", "request_id", requestID, "err", err)
		}
		s.publish(ctx, dto.NewRelationEvent(dto.EventFriendRequestAccepted, res, s.origin.String()), res.From)
		return res, nil
	}

	res, err := s.relations.Reject(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, dto.NewRelationEvent(dto.EventFriendRequestRejected, res, s.origin.String()), res.From)
	return res, nil
}

// Pending lists requests waiting on userID, oldest first.
func (s *RelationService) Pending(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	return s.relations.PendingFor(ctx, userID)
}

// ListFriends returns the friend list with live presence overlaid.
func (s *RelationService) ListFriends(ctx context.Context, userID int64) ([]model.FriendInfo, error) {
	entries, err := s.relations.FriendsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.FriendID
	}
	online, err := s.markers.OnlineAmong(ctx, ids)
	if err != nil {
		s.log.Warn("presence overlay failed", "user_id", userID, "err", err)
		online = nil
	}

	out := make([]model.FriendInfo, len(entries))
	for i, e := range entries {
		out[i] = model.FriendInfo{
			Profile: model.Profile{
				ID:       e.FriendID,
				Username: e.Username,
				Nickname: e.Nickname,
				Avatar:   e.Avatar,
				Online:   online[e.FriendID],
			},
			Remark: e.Remark,
		}
	}
	return out, nil
}

// DeleteFriend removes the friendship in both directions.
func (s *RelationService) DeleteFriend(ctx context.Context, userID, friendID int64) error {
	if err := s.relations.DeleteFriendship(ctx, userID, friendID); err != nil {
		return err
	}
	if err := s.cache.RemoveFriend(ctx, userID, friendID); err != nil {
		s.log.Warn("friend cache removal failed", "user_id", userID, "friend_id", friendID, "err", err)
	}
	s.publish(ctx, dto.NewFriendDeleted(userID, friendID, s.origin.String()), friendID)
	return nil
}

func (s *RelationService) publish(ctx context.Context, evt *dto.RelationEvent, key int64) {
	ev := event.NewBusEvent(event.TopicRelationship, strconv.FormatInt(key, 10), evt)
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Error("relationship publish failed", "event_type", evt.EventType, "err", err)
	}
}
