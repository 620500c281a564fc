package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"github.com/syntalk/im-server/internal/domain/util"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service/dto"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (WebSocket/REST/long-poll)
type Deliverer interface {
	// Subscribe binds a fresh session for userID and returns its connector.
	Subscribe(ctx context.Context, userID int64, md registry.ConnectMetadata) (registry.Connector, error)
	// Unsubscribe detaches one session; the detach hook handles bookkeeping.
	Unsubscribe(userID int64, connID uuid.UUID)
	// Submit runs the send pipeline: validate, persist, cache, route, publish.
	// The returned message carries the store-assigned id and timestamp.
	Submit(ctx context.Context, msg *model.Message) (*model.Message, error)
	// History returns the most recent 1:1 messages between userID and peerID,
	// newest first, serving from the hot cache when it can.
	History(ctx context.Context, userID, peerID int64, limit int) ([]model.Message, error)
	// OfflineMessages reads the caller's offline queue; clear consumes the
	// returned entries.
	OfflineMessages(ctx context.Context, userID int64, max int, clear bool) ([]model.Envelope, error)
	// MarkRead flips the read flag and sends the sender a read receipt.
	MarkRead(ctx context.Context, readerID, messageID int64) error
}

// [IMPLEMENTATION] PRIVATE TO ENFORCE INTERFACE USAGE
type DeliveryService struct {
	hub       registry.Hubber
	messages  repository.Messages
	directory *Directory
	history   *kv.History
	offline   *kv.Offline
	members   *kv.Membership
	presence  *PresenceService
	notifier  *Notifier
	bus       pubsub.EventDispatcher
	origin    Origin
	log       *slog.Logger

	sendBuffer   int
	maxPayload   int
	cacheLen     int
	cacheTTL     time.Duration
	historyLimit int
	historyMax   int
	queueCap     int
	msgTTL       time.Duration
	dedupWin     time.Duration
}

func NewDeliveryService(
	cfg *config.Config,
	hub registry.Hubber,
	messages repository.Messages,
	directory *Directory,
	history *kv.History,
	offline *kv.Offline,
	members *kv.Membership,
	presence *PresenceService,
	notifier *Notifier,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		hub:          hub,
		messages:     messages,
		directory:    directory,
		history:      history,
		offline:      offline,
		members:      members,
		presence:     presence,
		notifier:     notifier,
		bus:          bus,
		origin:       origin,
		log:          log.With("component", "delivery"),
		sendBuffer:   cfg.Session.SendBuffer,
		maxPayload:   cfg.Delivery.MaxPayloadBytes,
		cacheLen:     cfg.Delivery.HistoryCacheLen,
		cacheTTL:     cfg.Delivery.HistoryCacheTTL,
		historyLimit: cfg.Delivery.HistoryLimit,
		historyMax:   cfg.Delivery.HistoryMax,
		queueCap:     cfg.Offline.MaxQueueLen,
		msgTTL:       cfg.Offline.MessageTTL,
		dedupWin:     cfg.Offline.DedupWindow,
	}
}

// [SUBSCRIBE] HANDLES CONNECTION LIFECYCLE INITIATION
func (s *DeliveryService) Subscribe(ctx context.Context, userID int64, md registry.ConnectMetadata) (registry.Connector, error) {
	if userID <= 0 {
		return nil, imerr.New(imerr.InvalidParams, "invalid user id")
	}

	conn := registry.NewConnector(ctx, userID, s.sendBuffer, md)
	first := s.hub.Register(conn)

	if err := s.members.AddSession(ctx, userID, conn.GetID().String()); err != nil {
		s.log.Warn("session registration failed", "user_id", userID, "err", err)
	}
	if first {
		s.presence.Online(ctx, userID)
	}

	// Queued notifications ride in behind the handshake, off the hot path.
	go s.notifier.Replay(ctx, conn)

	s.log.Info("session subscribed",
		"user_id", userID,
		"conn_id", conn.GetID(),
		"platform", md.Platform,
		"first", first,
	)
	return conn, nil
}

// [UNSUBSCRIBE] TRIGGERS CLEANUP AND OBJECT RECYCLING
func (s *DeliveryService) Unsubscribe(userID int64, connID uuid.UUID) {
	// Hub.Unregister closes the connector and fires the detach hook, which
	// funnels back into handleDetach below.
	s.hub.Unregister(userID, connID)
}

// DetachHook exposes the session-removal observer for registry wiring.
func (s *DeliveryService) DetachHook() registry.DetachFunc {
	return s.handleDetach
}

// handleDetach runs for every removal path: explicit unsubscribes, sweeper
// evictions and transport errors alike.
func (s *DeliveryService) handleDetach(userID int64, connID uuid.UUID, last bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.members.RemoveSession(ctx, userID, connID.String()); err != nil {
		s.log.Warn("session deregistration failed", "user_id", userID, "err", err)
	}
	if last {
		s.presence.Offline(ctx, userID)
	}
}

// Submit is the write path for both 1:1 and group messages.
func (s *DeliveryService) Submit(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := s.validate(msg); err != nil {
		return nil, err
	}

	if msg.To.IsGroup() {
		return s.submitGroup(ctx, msg)
	}
	return s.submitPersonal(ctx, msg)
}

func (s *DeliveryService) submitPersonal(ctx context.Context, msg *model.Message) (*model.Message, error) {
	to := msg.To.ID
	friends, err := s.directory.AreFriends(ctx, msg.From, to)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, imerr.New(imerr.FriendNotFound, "recipient is not a friend")
	}

	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}
	s.cacheHistory(ctx, msg)

	evt := dto.NewMessageSent(msg, s.origin.String())
	if s.hub.Broadcast(event.NewMessageEvent(to, msg)) {
		s.hub.Broadcast(event.NewAckEvent(msg.From, msg.ID, event.AckDelivered))
	} else {
		evt.Queued = s.routeMiss(ctx, evt.EventID, to, msg)
	}
	s.publish(ctx, event.TopicMessagesPersonal, strconv.FormatInt(to, 10), evt)

	return msg, nil
}

func (s *DeliveryService) submitGroup(ctx context.Context, msg *model.Message) (*model.Message, error) {
	groupID := msg.To.ID
	members, err := s.directory.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !containsID(members, msg.From) {
		return nil, imerr.New(imerr.GroupPermission, "not a member of this group")
	}

	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}

	evt := dto.NewMessageSent(msg, s.origin.String())
	delivered := false
	for _, member := range members {
		if member == msg.From {
			continue
		}
		if s.hub.Broadcast(event.NewMessageEvent(member, msg)) {
			delivered = true
			continue
		}
		s.routeMiss(ctx, evt.EventID, member, msg)
	}
	if delivered {
		// One ack per send, not per member who got a copy.
		s.hub.Broadcast(event.NewAckEvent(msg.From, msg.ID, event.AckDelivered))
	}
	s.publish(ctx, event.TopicMessagesGroup, strconv.FormatInt(groupID, 10), evt)

	return msg, nil
}

func (s *DeliveryService) validate(msg *model.Message) error {
	if msg.From <= 0 || msg.To.ID <= 0 {
		return imerr.New(imerr.MessageNoRecipient, "missing sender or recipient")
	}
	if !msg.To.IsGroup() && msg.From == msg.To.ID {
		return imerr.New(imerr.MessageInvalid, "cannot message yourself")
	}
	if !msg.Kind.Valid() {
		return imerr.New(imerr.MessageKindInvalid, "unknown message type")
	}
	if len(msg.Payload) == 0 {
		return imerr.New(imerr.MessageInvalid, "empty message")
	}
	if len(msg.Payload) > s.maxPayload {
		return imerr.Newf(imerr.MessageTooLong, "message exceeds %d bytes", s.maxPayload)
	}
	return nil
}

func (s *DeliveryService) persist(ctx context.Context, msg *model.Message) error {
	msg.ID = 0
	msg.Read = false
	msg.SentAt = time.Now().UnixMilli()
	return s.messages.Create(ctx, msg)
}

func (s *DeliveryService) cacheHistory(ctx context.Context, msg *model.Message) {
	env := model.MessageEnvelope(msg, msg.To.ID)
	raw, err := env.Encode()
	if err != nil {
		return
	}
	pk := util.PairKey(msg.From, msg.To.ID)
	if err := s.history.Push(ctx, pk, raw, s.cacheLen, s.cacheTTL); err != nil {
		s.log.Warn("history cache push failed", "pair_key", pk, "err", err)
	}
}

// routeMiss handles a recipient the local broadcast could not reach. A
// recipient with local sessions had a full mailbox, so a durable copy is
// parked; one visible elsewhere is left to that node's consumer; anyone
// else goes straight to the offline queue. Reports whether a copy was
// queued.
func (s *DeliveryService) routeMiss(ctx context.Context, eventID string, recipientID int64, msg *model.Message) bool {
	if s.hub.Sessions(recipientID) > 0 {
		return s.enqueueOffline(ctx, eventID, recipientID, msg)
	}
	online, err := s.presence.IsOnline(ctx, recipientID)
	if err == nil && online {
		return false
	}
	return s.enqueueOffline(ctx, eventID, recipientID, msg)
}

// enqueueOffline parks one durable copy per (event, recipient). Duplicate
// attempts within the dedup window count as already queued.
func (s *DeliveryService) enqueueOffline(ctx context.Context, eventID string, recipientID int64, msg *model.Message) bool {
	fresh, err := s.offline.Dedup(ctx, eventID, recipientID, s.dedupWin)
	if err != nil {
		// Redis hiccup: a duplicate beats a lost message.
		s.log.Warn("offline dedup failed", "event_id", eventID, "err", err)
	} else if !fresh {
		return true
	}

	env := model.MessageEnvelope(msg, recipientID)
	env.EventID = eventID
	raw, err := env.Encode()
	if err != nil {
		s.log.Error("envelope encode failed", "message_id", msg.ID, "err", err)
		return false
	}
	if err := s.offline.EnqueueMessage(ctx, recipientID, raw, s.queueCap, s.msgTTL); err != nil {
		s.log.Error("offline enqueue failed", "user_id", recipientID, "err", err)
		return false
	}
	return true
}

func (s *DeliveryService) publish(ctx context.Context, topic, key string, payload any) {
	if err := s.bus.Publish(ctx, event.NewBusEvent(topic, key, payload)); err != nil {
		// The message is persisted and locally delivered; losing the fanout
		// copy is survivable, losing the send is not.
		s.log.Error("event publish failed", "topic", topic, "err", err)
	}
}

// History serves the recent window of a 1:1 conversation. Cache entries
// reflect read state as of send time; receipts travel as events, so the
// flag here may lag SQL.
func (s *DeliveryService) History(ctx context.Context, userID, peerID int64, limit int) ([]model.Message, error) {
	if userID <= 0 || peerID <= 0 {
		return nil, imerr.New(imerr.InvalidParams, "missing conversation peer")
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > s.historyMax {
		limit = s.historyMax
	}

	pk := util.PairKey(userID, peerID)
	rows, err := s.history.Recent(ctx, pk, limit)
	if err != nil {
		s.log.Warn("history cache read failed", "pair_key", pk, "err", err)
	} else if len(rows) >= limit {
		if msgs, ok := decodeHistory(rows); ok {
			return msgs, nil
		}
	}
	// Short or unreadable cache: SQL has the full window.
	return s.messages.History(ctx, userID, peerID, limit)
}

func decodeHistory(rows [][]byte) ([]model.Message, bool) {
	msgs := make([]model.Message, 0, len(rows))
	for _, raw := range rows {
		env, err := model.DecodeEnvelope(raw)
		if err != nil {
			return nil, false
		}
		msgs = append(msgs, model.Message{
			ID:      env.MessageID,
			From:    env.From,
			To:      model.UserRecipient(env.To),
			Kind:    env.MsgKind,
			Payload: []byte(env.Content),
			SentAt:  env.SentAt,
			Extra:   env.Extra,
		})
	}
	return msgs, true
}

func (s *DeliveryService) OfflineMessages(ctx context.Context, userID int64, max int, clear bool) ([]model.Envelope, error) {
	if max <= 0 {
		max = 100
	}
	if max > 1000 {
		max = 1000
	}

	var rows [][]byte
	var err error
	if clear {
		rows, err = s.offline.DrainMessages(ctx, userID, max)
	} else {
		rows, err = s.offline.PeekMessages(ctx, userID, max)
	}
	if err != nil {
		return nil, imerr.Wrap(imerr.CacheFailed, "read offline queue", err)
	}

	out := make([]model.Envelope, 0, len(rows))
	for _, raw := range rows {
		env, err := model.DecodeEnvelope(raw)
		if err != nil {
			s.log.Warn("dropping bad offline envelope", "user_id", userID, "err", err)
			continue
		}
		out = append(out, *env)
	}
	return out, nil
}

// MarkRead is idempotent: a repeat, or a mark by someone the message was
// never addressed to, changes nothing and reports success.
func (s *DeliveryService) MarkRead(ctx context.Context, readerID, messageID int64) error {
	updated, err := s.messages.MarkRead(ctx, messageID, readerID)
	if err != nil {
		return err
	}
	if !updated {
		return nil
	}

	msg, err := s.messages.ByID(ctx, messageID)
	if err != nil {
		// The flag is set; the receipt is best effort.
		return nil
	}
	evt := dto.NewReadReceipt(readerID, msg.From, messageID, s.origin.String())
	s.publish(ctx, event.TopicSystem, strconv.FormatInt(msg.From, 10), evt)
	return nil
}
