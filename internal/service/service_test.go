package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
)

// world wires the full service layer against in-memory backends: sqlite for
// SQL, miniredis for the kv store, a real hub and an in-process channel bus.
type world struct {
	cfg *config.Config
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client
	hub *registry.Hub
	ch  *gochannel.GoChannel
	bus pubsub.EventDispatcher

	users         repository.Users
	relations     repository.Relations
	groups        repository.Groups
	messages      repository.Messages
	notifications repository.Notifications
	transfers     repository.Transfers

	markers *kv.Presence
	members *kv.Membership
	offq    *kv.Offline
	hist    *kv.History
	verif   *kv.Verification

	origin    Origin
	auth      Auther
	directory *Directory
	presence  *PresenceService
	notifier  *Notifier
	delivery  *DeliveryService
	fanout    *FanoutService
	relation  *RelationService
	transfer  *TransferService
	user      *UserService
}

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Name: "im-server-test"},
		Auth: config.AuthConfig{
			Secret:   "test-secret-0123456789",
			Issuer:   "im-server-test",
			TokenTTL: time.Hour,
		},
		Session: config.SessionConfig{
			SendBuffer:  16,
			MailboxSize: 64,
		},
		Delivery: config.DeliveryConfig{
			MaxPayloadBytes: 256,
			HistoryCacheLen: 50,
			HistoryCacheTTL: time.Hour,
			HistoryLimit:    20,
			HistoryMax:      100,
		},
		Presence: config.PresenceConfig{
			MarkerTTL:       time.Hour,
			RefreshInterval: time.Hour,
			Debounce:        40 * time.Millisecond,
		},
		Offline: config.OfflineConfig{
			MaxQueueLen:     100,
			MessageTTL:      time.Hour,
			NotificationTTL: time.Hour,
			DedupWindow:     time.Hour,
		},
	}
}

func newWorld(t *testing.T) *world {
	return newWorldCfg(t, nil)
}

func newWorldCfg(t *testing.T, tweak func(*config.Config)) *world {
	t.Helper()

	cfg := testConfig()
	if tweak != nil {
		tweak(cfg)
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

	w := &world{
		cfg: cfg,
		db:  db,
		mr:  mr,
		rdb: rdb,
		hub: hub,
		ch:  ch,
		bus: pubsub.NewEventDispatcher(ch),

		users:         repository.NewUsers(db),
		relations:     repository.NewRelations(db),
		groups:        repository.NewGroups(db),
		messages:      repository.NewMessages(db),
		notifications: repository.NewNotifications(db),
		transfers:     repository.NewTransfers(db),

		markers: kv.NewPresence(rdb),
		members: kv.NewMembership(rdb),
		offq:    kv.NewOffline(rdb),
		hist:    kv.NewHistory(rdb),
		verif:   kv.NewVerification(rdb),

		origin: NewOrigin(),
	}

	w.auth = NewAuthService(cfg)
	w.directory = NewDirectory(w.relations, w.groups, w.members, log)
	w.presence = NewPresenceService(cfg, w.markers, w.members, hub, w.bus, w.origin, log)
	t.Cleanup(w.presence.Stop)
	w.notifier = NewNotifier(cfg, w.notifications, w.offq, w.markers, hub, w.bus, w.origin, log)
	w.delivery = NewDeliveryService(cfg, hub, w.messages, w.directory, w.hist, w.offq, w.members, w.presence, w.notifier, w.bus, w.origin, log)
	w.fanout = NewFanoutService(cfg, hub, w.directory, w.notifier, w.offq, w.markers, w.bus, w.origin, log)
	w.relation = NewRelationService(w.relations, w.users, w.members, w.markers, w.bus, w.origin, log)
	w.transfer = NewTransferService(w.transfers, w.users, w.relations, w.bus, w.origin, log)
	w.user = NewUserService(cfg, w.users, w.verif, w.auth, w.bus, w.origin, log)

	hub.SetDetachHook(w.delivery.DetachHook())
	return w
}

func (w *world) seedUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Status:       model.UserStatusActive,
	}
	require.NoError(t, w.users.Create(context.Background(), u))
	return u
}

func (w *world) befriend(t *testing.T, a, b int64) {
	t.Helper()
	ctx := context.Background()
	req := &model.FriendRequest{From: a, To: b}
	require.NoError(t, w.relations.CreateRequest(ctx, req))
	_, err := w.relations.Accept(ctx, req.ID)
	require.NoError(t, err)
}

func (w *world) connect(t *testing.T, userID int64) registry.Connector {
	t.Helper()
	conn, err := w.delivery.Subscribe(context.Background(), userID, registry.ConnectMetadata{Platform: "test"})
	require.NoError(t, err)
	return conn
}

// subscribeBus attaches to a bus topic. Call before the action under test;
// the channel transport drops messages published without a subscriber.
func (w *world) subscribeBus(t *testing.T, topic string) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := w.ch.Subscribe(ctx, topic)
	require.NoError(t, err)
	return ch
}

// nextBusEvent scans a subscription, acking as it goes, until a decoded
// payload satisfies match.
func nextBusEvent[T any](t *testing.T, ch <-chan *message.Message, match func(*T) bool) *T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			var decoded T
			require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
			msg.Ack()
			if match(&decoded) {
				return &decoded
			}
		case <-deadline:
			t.Fatal("expected bus event did not arrive")
			return nil
		}
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
