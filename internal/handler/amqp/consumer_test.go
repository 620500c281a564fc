package amqp

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/infra/pubsub/factory"
	pubsubadapter "github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service"
	"github.com/syntalk/im-server/internal/service/dto"
)

// memBroker backs the subscriber provider with one in-process channel bus.
// Built subscribers share the bus and swallow Close: the router closes its
// subscribers on shutdown, but the bus has to outlive a consumer restart
// the way the broker connection does in production.
type memBroker struct {
	ch *gochannel.GoChannel
}

func (b memBroker) GetFactory() factory.Factory { return b }

func (b memBroker) BuildPublisher(*factory.PublisherConfig) (message.Publisher, error) {
	return b.ch, nil
}

func (b memBroker) BuildSubscriber(*factory.SubscriberConfig) (message.Subscriber, error) {
	return keepOpen{b.ch}, nil
}

type keepOpen struct {
	message.Subscriber
}

func (keepOpen) Close() error { return nil }

// rig wires a consumer against in-memory backends only: sqlite for the
// directory lookups, miniredis for presence and offline queues, a real hub
// for session delivery and a channel bus standing in for the broker.
type rig struct {
	cfg      *config.Config
	hub      *registry.Hub
	bus      pubsubadapter.EventDispatcher
	groups   repository.Groups
	origin   service.Origin
	consumer *Consumer
}

func newRig(t *testing.T) *rig {
	t.Helper()

	cfg := &config.Config{
		Broker: config.BrokerConfig{
			Exchange:     "im.events",
			QueuePrefix:  "im-server-test",
			ConsumerName: "im-server-test.fanout",
		},
		Offline: config.OfflineConfig{
			MaxQueueLen:     100,
			MessageTTL:      time.Hour,
			NotificationTTL: time.Hour,
			DedupWindow:     time.Hour,
		},
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := registry.NewHub()
	t.Cleanup(hub.Shutdown)

	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := pubsubadapter.NewEventDispatcher(ch)

	groups := repository.NewGroups(db)
	relations := repository.NewRelations(db)
	notifications := repository.NewNotifications(db)
	markers := kv.NewPresence(rdb)
	members := kv.NewMembership(rdb)
	offq := kv.NewOffline(rdb)

	origin := service.NewOrigin()
	directory := service.NewDirectory(relations, groups, members, log)
	notifier := service.NewNotifier(cfg, notifications, offq, markers, hub, bus, origin, log)
	fanout := service.NewFanoutService(cfg, hub, directory, notifier, offq, markers, bus, origin, log)

	handler := NewFanoutHandler(fanout, bus, log)
	subs := pubsubadapter.NewSubscriberProvider(memBroker{ch: ch})
	consumer := NewConsumer(cfg, handler, subs, watermill.NopLogger{}, log)
	t.Cleanup(func() { _ = consumer.Stop() })

	return &rig{
		cfg:      cfg,
		hub:      hub,
		bus:      bus,
		groups:   groups,
		origin:   origin,
		consumer: consumer,
	}
}

func (r *rig) attach(t *testing.T, userID int64) registry.Connector {
	t.Helper()
	conn := registry.NewConnector(context.Background(), userID, 16, registry.ConnectMetadata{Platform: "test"})
	require.True(t, r.hub.Register(conn))
	t.Cleanup(conn.Close)
	return conn
}

func (r *rig) publish(t *testing.T, topic string, evt *dto.MessageSent) {
	t.Helper()
	key := strconv.FormatInt(evt.Recipient(), 10)
	require.NoError(t, r.bus.Publish(context.Background(), event.NewBusEvent(topic, key, evt)))
}

// remoteMessage fabricates a bus payload as another node's producer would.
// The origin must differ from the rig's, otherwise the fanout service treats
// the event as its own echo and skips it.
func remoteMessage(id, from, to int64, kind model.RecipientKind) *dto.MessageSent {
	eventType := dto.EventMessageSent
	if kind == model.RecipientGroup {
		eventType = dto.EventGroupMessageSent
	}
	return &dto.MessageSent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Origin:      "node-elsewhere",
		MessageID:   id,
		FromUserID:  from,
		ToID:        to,
		ToKind:      int16(kind),
		MessageType: int16(model.KindText),
		Content:     "fanout payload",
		SendTime:    time.Now().UnixMilli(),
	}
}

func recvEvent(t *testing.T, conn registry.Connector) event.Eventer {
	t.Helper()
	select {
	case ev, ok := <-conn.Recv():
		require.True(t, ok, "recv channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered to session")
		return nil
	}
}

func expectNoEvent(t *testing.T, conn registry.Connector) {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		t.Fatalf("unexpected event delivered: kind=%v", ev.GetKind())
	case <-time.After(80 * time.Millisecond):
	}
}

func TestConsumerDeliversRemotePersonalMessage(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.consumer.Start())
	require.True(t, r.consumer.Running())
	require.Equal(t, "im-server-test.fanout", r.consumer.Name())

	conn := r.attach(t, 2)
	r.publish(t, event.TopicMessagesPersonal, remoteMessage(7001, 1, 2, model.RecipientUser))

	ev := recvEvent(t, conn)
	require.Equal(t, event.MessageCreated, ev.GetKind())
	require.Equal(t, int64(2), ev.GetUserID())

	msg, ok := ev.GetPayload().(*model.Message)
	require.True(t, ok)
	require.Equal(t, int64(7001), msg.ID)
	require.Equal(t, int64(1), msg.From)
	require.Equal(t, "fanout payload", string(msg.Payload))
}

func TestConsumerSkipsEventsFromOwnNode(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.consumer.Start())
	conn := r.attach(t, 2)

	// The producing node already delivered inline; its own consumer must
	// not hand the session a duplicate.
	evt := remoteMessage(7002, 1, 2, model.RecipientUser)
	evt.Origin = string(r.origin)
	r.publish(t, event.TopicMessagesPersonal, evt)

	expectNoEvent(t, conn)
}

func TestConsumerFansOutGroupMessageToLocalMembers(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.groups.AddMember(ctx, 300, 1))
	require.NoError(t, r.groups.AddMember(ctx, 300, 2))
	require.NoError(t, r.groups.AddMember(ctx, 300, 3))

	require.NoError(t, r.consumer.Start())
	sender := r.attach(t, 1)
	second := r.attach(t, 2)
	third := r.attach(t, 3)

	r.publish(t, event.TopicMessagesGroup, remoteMessage(7100, 1, 300, model.RecipientGroup))

	for _, conn := range []registry.Connector{second, third} {
		ev := recvEvent(t, conn)
		require.Equal(t, event.GroupMessageCreated, ev.GetKind())

		msg, ok := ev.GetPayload().(*model.Message)
		require.True(t, ok)
		require.Equal(t, int64(300), msg.To.ID)
		require.Equal(t, int64(7100), msg.ID)
	}
	expectNoEvent(t, sender)
}

func TestConsumerRestartRebuildsPipeline(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	conn := r.attach(t, 2)

	require.NoError(t, r.consumer.Start())
	r.publish(t, event.TopicMessagesPersonal, remoteMessage(7200, 1, 2, model.RecipientUser))
	require.Equal(t, event.MessageCreated, recvEvent(t, conn).GetKind())

	require.NoError(t, r.consumer.Stop())
	require.False(t, r.consumer.Running())

	// A stopped router cannot be reused; Start has to build a fresh one
	// that consumes just like the first.
	require.NoError(t, r.consumer.Start())
	require.True(t, r.consumer.Running())

	r.publish(t, event.TopicMessagesPersonal, remoteMessage(7201, 1, 2, model.RecipientUser))
	ev := recvEvent(t, conn)
	msg, ok := ev.GetPayload().(*model.Message)
	require.True(t, ok)
	require.Equal(t, int64(7201), msg.ID)
}

func TestConsumerStartTwiceDeliversOnce(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.consumer.Start())
	require.NoError(t, r.consumer.Start())
	require.True(t, r.consumer.Running())

	conn := r.attach(t, 2)
	r.publish(t, event.TopicMessagesPersonal, remoteMessage(7300, 1, 2, model.RecipientUser))

	require.Equal(t, event.MessageCreated, recvEvent(t, conn).GetKind())
	expectNoEvent(t, conn)
}

func TestConsumerRestartHelper(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	require.NoError(t, r.consumer.Start())
	require.NoError(t, r.consumer.Restart())
	require.True(t, r.consumer.Running())

	conn := r.attach(t, 2)
	r.publish(t, event.TopicMessagesPersonal, remoteMessage(7400, 1, 2, model.RecipientUser))
	require.Equal(t, event.MessageCreated, recvEvent(t, conn).GetKind())
}
