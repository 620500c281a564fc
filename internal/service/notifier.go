package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service/dto"
)

const (
	replayBatch       = 10
	replaySendTimeout = time.Second
)

// Notifier turns domain happenings into user-facing notifications. Every
// node pushes live to its own sessions; exactly one node (the dedup winner)
// writes the durable row and, when nobody is online, the offline envelope.
// The durable rows back the notification-center API; the envelope queue
// exists only for cheap replay on reconnect.
type Notifier struct {
	repo    repository.Notifications
	offline *kv.Offline
	markers *kv.Presence
	hub     registry.Hubber
	bus     pubsub.EventDispatcher
	origin  Origin
	log     *slog.Logger

	queueCap int
	notifTTL time.Duration
	dedupWin time.Duration
}

func NewNotifier(
	cfg *config.Config,
	repo repository.Notifications,
	offline *kv.Offline,
	markers *kv.Presence,
	hub registry.Hubber,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *Notifier {
	return &Notifier{
		repo:     repo,
		offline:  offline,
		markers:  markers,
		hub:      hub,
		bus:      bus,
		origin:   origin,
		log:      log.With("component", "notifier"),
		queueCap: cfg.Offline.MaxQueueLen,
		notifTTL: cfg.Offline.NotificationTTL,
		dedupWin: cfg.Offline.DedupWindow,
	}
}

// Notify delivers one notification. Live push happens unconditionally for
// local sessions; the durable side runs once per event id cluster-wide. An
// empty event id skips deduplication (direct, non-bus callers).
func (n *Notifier) Notify(ctx context.Context, eventID string, notif *model.Notification) error {
	live := n.hub.Broadcast(event.NewNotificationEvent(notif.UserID, notif))

	if eventID != "" {
		fresh, err := n.offline.Dedup(ctx, eventID, notif.UserID, n.dedupWin)
		if err != nil {
			// Redis trouble: prefer a possible duplicate over a lost row.
			n.log.Warn("notification dedup failed", "event_id", eventID, "err", err)
		} else if !fresh {
			return nil
		}
	}

	if err := n.repo.Create(ctx, notif); err != nil {
		return err
	}
	if live {
		return nil
	}
	online, err := n.markers.IsOnline(ctx, notif.UserID)
	if err != nil {
		n.log.Warn("presence check failed", "user_id", notif.UserID, "err", err)
	}
	if online {
		// Another node holds the sessions and pushed its own copy.
		return nil
	}

	env := &model.Envelope{
		Kind:      model.EnvelopeNotification,
		EventID:   eventID,
		To:        notif.UserID,
		Content:   notif.Content,
		NotifKind: notif.Kind,
		SentAt:    time.Now().UnixMilli(),
		Extra:     notif.Extra,
	}
	raw, err := env.Encode()
	if err != nil {
		return imerr.Wrap(imerr.Internal, "encode notification", err)
	}
	if err := n.offline.EnqueueNotification(ctx, notif.UserID, raw, n.queueCap, n.notifTTL); err != nil {
		return imerr.Wrap(imerr.CacheFailed, "queue notification", err)
	}
	return nil
}

// Replay drains queued notification envelopes into a fresh session. Only
// what was actually handed to the session is trimmed; a full mailbox leaves
// the rest queued for the next attempt. The durable rows are untouched, so
// the notification center still shows everything.
func (n *Notifier) Replay(ctx context.Context, conn registry.Connector) {
	userID := conn.GetUserID()
	for {
		rows, err := n.offline.PeekNotifications(ctx, userID, replayBatch)
		if err != nil {
			n.log.Warn("notification replay read failed", "user_id", userID, "err", err)
			return
		}
		if len(rows) == 0 {
			return
		}

		delivered := 0
		for _, raw := range rows {
			env, err := model.DecodeEnvelope(raw)
			if err != nil {
				// Undecodable entries would wedge the queue forever.
				n.log.Warn("dropping bad notification envelope", "user_id", userID, "err", err)
				delivered++
				continue
			}
			notif := &model.Notification{
				UserID:    userID,
				Kind:      env.NotifKind,
				Content:   env.Content,
				Extra:     env.Extra,
				CreatedAt: time.UnixMilli(env.SentAt),
			}
			if !conn.Send(event.NewNotificationEvent(userID, notif), replaySendTimeout) {
				break
			}
			delivered++
		}

		if delivered > 0 {
			if err := n.offline.TrimNotifications(ctx, userID, delivered); err != nil {
				n.log.Warn("notification trim failed", "user_id", userID, "err", err)
				return
			}
		}
		if delivered < len(rows) {
			return
		}
	}
}

// Unread lists durable unread notifications for the notification center.
func (n *Notifier) Unread(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return n.repo.UnreadFor(ctx, userID, limit)
}

// MarkRead flags the given notifications as read, scoped to the owner.
func (n *Notifier) MarkRead(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return n.repo.MarkRead(ctx, userID, ids)
}

// Broadcast stores a server-wide announcement and publishes it; every node,
// this one included, fans it out to its connected users on consumption.
func (n *Notifier) Broadcast(ctx context.Context, senderID int64, title, content string) error {
	if content == "" {
		return imerr.New(imerr.InvalidParams, "announcement content is required")
	}
	ann := &model.SystemAnnouncement{Title: title, Content: content, SenderID: senderID}
	if err := n.repo.CreateAnnouncement(ctx, ann); err != nil {
		return err
	}
	evt := dto.NewSystemBroadcast(senderID, content, n.origin.String())
	key := strconv.FormatInt(senderID, 10)
	if err := n.bus.Publish(ctx, event.NewBusEvent(event.TopicSystem, key, evt)); err != nil {
		return imerr.Wrap(imerr.EventBusPublish, "publish announcement", err)
	}
	return nil
}
