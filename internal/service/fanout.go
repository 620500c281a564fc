package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/service/dto"
)

// FanoutService is the consumer side of the event bus: it turns bus events
// into local session pushes, notifications and offline queue entries.
// Message topics skip events this node produced, because the producer
// already delivered inline; system and offline topics process everything,
// origin included.
type FanoutService struct {
	hub       registry.Hubber
	directory *Directory
	notifier  *Notifier
	offline   *kv.Offline
	markers   *kv.Presence
	bus       pubsub.EventDispatcher
	origin    Origin
	log       *slog.Logger

	queueCap int
	msgTTL   time.Duration
	dedupWin time.Duration
}

func NewFanoutService(
	cfg *config.Config,
	hub registry.Hubber,
	directory *Directory,
	notifier *Notifier,
	offline *kv.Offline,
	markers *kv.Presence,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *FanoutService {
	return &FanoutService{
		hub:       hub,
		directory: directory,
		notifier:  notifier,
		offline:   offline,
		markers:   markers,
		bus:       bus,
		origin:    origin,
		log:       log.With("component", "fanout"),
		queueCap:  cfg.Offline.MaxQueueLen,
		msgTTL:    cfg.Offline.MessageTTL,
		dedupWin:  cfg.Offline.DedupWindow,
	}
}

func (f *FanoutService) mine(origin string) bool {
	return Origin(origin) == f.origin
}

// OnPersonalMessage delivers a 1:1 message to locally connected recipients.
// When nobody anywhere took delivery and the producer queued nothing, the
// event is re-routed to the offline topic for a durable enqueue.
func (f *FanoutService) OnPersonalMessage(ctx context.Context, evt *dto.MessageSent) error {
	if f.mine(evt.Origin) {
		return nil
	}

	to := evt.ToID
	msg := evt.ToDomain()
	if f.hub.IsConnected(to) {
		if f.hub.Broadcast(event.NewMessageEvent(to, msg)) {
			return nil
		}
		f.log.Warn("local delivery refused", "user_id", to, "message_id", evt.MessageID)
	}
	if evt.Queued {
		return nil
	}

	online, err := f.markers.IsOnline(ctx, to)
	if err != nil {
		return fmt.Errorf("presence check for user %d: %w", to, err)
	}
	if online {
		// Some other node holds the sessions; their consumer delivers.
		return nil
	}

	// The recipient slipped offline between the producer's check and now.
	// Every consumer that notices re-routes; the enqueue side deduplicates.
	copyEvt := evt.OfflineCopy(to)
	key := strconv.FormatInt(to, 10)
	if err := f.bus.Publish(ctx, event.NewBusEvent(event.TopicOfflineMessages, key, copyEvt)); err != nil {
		return fmt.Errorf("reroute message %d to offline queue: %w", evt.MessageID, err)
	}
	return nil
}

// OnGroupMessage delivers a group message to every locally connected member
// except the sender. Members with no sessions anywhere were queued by the
// producer; mid-flight disconnects fall back to pulling history.
func (f *FanoutService) OnGroupMessage(ctx context.Context, evt *dto.MessageSent) error {
	if f.mine(evt.Origin) {
		return nil
	}

	members, err := f.directory.GroupMembers(ctx, evt.ToID)
	if err != nil {
		return fmt.Errorf("resolve members of group %d: %w", evt.ToID, err)
	}

	msg := evt.ToDomain()
	for _, member := range members {
		if member == evt.FromUserID || !f.hub.IsConnected(member) {
			continue
		}
		if !f.hub.Broadcast(event.NewMessageEvent(member, msg)) {
			f.log.Warn("group delivery refused", "user_id", member, "message_id", evt.MessageID)
		}
	}
	return nil
}

// OnOfflineMessage parks a durable copy for the recipient. No origin skip:
// the producer publishes here precisely when it wants someone to queue. A
// recipient who reconnected in the meantime gets the copy pushed live
// instead.
func (f *FanoutService) OnOfflineMessage(ctx context.Context, evt *dto.MessageSent) error {
	recipient := evt.Recipient()
	msg := evt.ToDomain()

	if f.hub.IsConnected(recipient) {
		if f.hub.Broadcast(event.NewMessageEvent(recipient, msg)) {
			return nil
		}
	}

	fresh, err := f.offline.Dedup(ctx, evt.EventID, recipient, f.dedupWin)
	if err != nil {
		return fmt.Errorf("offline dedup for user %d: %w", recipient, err)
	}
	if !fresh {
		return nil
	}

	env := model.MessageEnvelope(msg, recipient)
	env.EventID = evt.EventID
	raw, err := env.Encode()
	if err != nil {
		f.log.Error("envelope encode failed", "message_id", evt.MessageID, "err", err)
		return nil
	}
	if err := f.offline.EnqueueMessage(ctx, recipient, raw, f.queueCap, f.msgTTL); err != nil {
		return fmt.Errorf("offline enqueue for user %d: %w", recipient, err)
	}
	return nil
}

// OnRelationEvent notifies the parties of friend-request traffic.
func (f *FanoutService) OnRelationEvent(ctx context.Context, evt *dto.RelationEvent) error {
	switch evt.EventType {
	case dto.EventFriendRequestSent:
		return f.notify(ctx, evt.EventID, evt.ToUserID, model.NotificationFriendReq,
			"You have a new friend request",
			map[string]any{"request_id": evt.RequestID, "from_user_id": evt.FromUserID, "message": evt.Message})

	case dto.EventFriendRequestAccepted:
		return f.notify(ctx, evt.EventID, evt.FromUserID, model.NotificationRelationship,
			"Your friend request was accepted",
			map[string]any{"request_id": evt.RequestID, "friend_id": evt.ToUserID})

	case dto.EventFriendRequestRejected:
		return f.notify(ctx, evt.EventID, evt.FromUserID, model.NotificationRelationship,
			"Your friend request was declined",
			map[string]any{"request_id": evt.RequestID})

	case dto.EventFriendDeleted:
		// Both sides refresh their lists; the deleted side is told why.
		if err := f.notify(ctx, evt.EventID, evt.FriendID, model.NotificationRelationship,
			"A contact removed you from their friends",
			map[string]any{"user_id": evt.UserID}); err != nil {
			return err
		}
		return f.notify(ctx, evt.EventID, evt.UserID, model.NotificationRelationship,
			"Friend removed",
			map[string]any{"friend_id": evt.FriendID})

	default:
		f.log.Warn("unknown relationship event", "event_type", evt.EventType)
		return nil
	}
}

// OnFileEvent notifies the counterpart of a transfer handshake step.
func (f *FanoutService) OnFileEvent(ctx context.Context, evt *dto.FileEvent) error {
	extra := map[string]any{
		"request_id":   evt.RequestID,
		"from_user_id": evt.FromUserID,
		"file_name":    evt.FileName,
		"file_size":    evt.FileSize,
	}
	switch evt.EventType {
	case dto.EventFileTransferRequest:
		return f.notify(ctx, evt.EventID, evt.ToUserID, model.NotificationFile,
			fmt.Sprintf("Incoming file: %s", evt.FileName), extra)
	case dto.EventFileTransferAccepted:
		return f.notify(ctx, evt.EventID, evt.ToUserID, model.NotificationFile,
			fmt.Sprintf("File accepted: %s", evt.FileName), extra)
	case dto.EventFileTransferRejected:
		return f.notify(ctx, evt.EventID, evt.ToUserID, model.NotificationFile,
			fmt.Sprintf("File declined: %s", evt.FileName), extra)
	default:
		f.log.Warn("unknown file event", "event_type", evt.EventType)
		return nil
	}
}

// OnSystemEvent is the system-events dispatcher. These are processed by
// every node including the origin, so local delivery happens exactly once,
// here.
func (f *FanoutService) OnSystemEvent(ctx context.Context, evt *dto.SystemEvent) error {
	switch evt.EventType {
	case dto.EventPresenceChange:
		return f.fanoutPresence(ctx, evt)

	case dto.EventSystemBroadcast:
		f.hub.BroadcastAll(event.NewBroadcastEvent(evt.UserID, evt.Content))
		return nil

	case dto.EventMessageRead:
		if f.hub.IsConnected(evt.TargetID) {
			f.hub.Broadcast(event.NewAckEvent(evt.TargetID, evt.MessageID, event.AckRead))
		}
		return nil

	case dto.EventUserRegistered, dto.EventUserLogin:
		f.log.Info("user audit event",
			"event_type", evt.EventType,
			"user_id", evt.UserID,
			"username", evt.Username,
		)
		return nil

	default:
		f.log.Warn("unknown system event", "event_type", evt.EventType)
		return nil
	}
}

// fanoutPresence pushes a presence delta to the subject's locally connected
// friends, and a group-scoped copy to members sharing a group with them.
// Presence is ephemeral: nothing is stored or retried.
func (f *FanoutService) fanoutPresence(ctx context.Context, evt *dto.SystemEvent) error {
	subject := evt.UserID
	status := model.Status(evt.Status)

	friends, err := f.directory.Friends(ctx, subject)
	if err != nil {
		return fmt.Errorf("resolve friends of user %d: %w", subject, err)
	}
	for _, friend := range friends {
		if !f.hub.IsConnected(friend) {
			continue
		}
		f.hub.Broadcast(event.NewStatusEvent(friend, subject, status))
	}

	groups, err := f.directory.UserGroups(ctx, subject)
	if err != nil {
		return fmt.Errorf("resolve groups of user %d: %w", subject, err)
	}
	for _, groupID := range groups {
		members, err := f.directory.GroupMembers(ctx, groupID)
		if err != nil {
			f.log.Warn("group presence fanout skipped", "group_id", groupID, "err", err)
			continue
		}
		for _, member := range members {
			if member == subject || !f.hub.IsConnected(member) {
				continue
			}
			f.hub.Broadcast(event.NewGroupStatusEvent(member, groupID, subject, status))
		}
	}
	return nil
}

func (f *FanoutService) notify(ctx context.Context, eventID string, userID int64, kind, content string, extra map[string]any) error {
	raw, err := json.Marshal(extra)
	if err != nil {
		raw = nil
	}
	return f.notifier.Notify(ctx, eventID, &model.Notification{
		UserID:  userID,
		Kind:    kind,
		Content: content,
		Extra:   raw,
	})
}
