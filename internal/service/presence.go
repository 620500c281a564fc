package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/service/dto"
)

// PresenceService owns the cluster-wide view of who is online. Local session
// lifecycle drives it: the first session announces online, the last one
// schedules an offline announcement behind a debounce window so a quick
// reconnect produces no traffic at all. Markers in Redis make the state
// visible to other nodes and age out on their own if a node dies mid-flight.
type PresenceService struct {
	markers *kv.Presence
	members *kv.Membership
	hub     registry.Hubber
	bus     pubsub.EventDispatcher
	origin  Origin
	log     *slog.Logger

	markerTTL    time.Duration
	refreshEvery time.Duration
	debounce     time.Duration

	mu      sync.Mutex
	pending map[int64]*time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPresenceService(
	cfg *config.Config,
	markers *kv.Presence,
	members *kv.Membership,
	hub registry.Hubber,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *PresenceService {
	return &PresenceService{
		markers:      markers,
		members:      members,
		hub:          hub,
		bus:          bus,
		origin:       origin,
		log:          log.With("component", "presence"),
		markerTTL:    cfg.Presence.MarkerTTL,
		refreshEvery: cfg.Presence.RefreshInterval,
		debounce:     cfg.Presence.Debounce,
		pending:      make(map[int64]*time.Timer),
		stopCh:       make(chan struct{}),
	}
}

// Online records the user's first session on this node. Announcing is
// suppressed when an offline announcement is still pending (a flap) or when
// another node already holds sessions for the user.
func (p *PresenceService) Online(ctx context.Context, userID int64) {
	if err := p.markers.SetOnline(ctx, userID, p.markerTTL); err != nil {
		p.log.Warn("online marker write failed", "user_id", userID, "err", err)
	}

	p.mu.Lock()
	if t, ok := p.pending[userID]; ok {
		t.Stop()
		delete(p.pending, userID)
		p.mu.Unlock()
		// The offline side of the flap was never announced; stay silent.
		return
	}
	p.mu.Unlock()

	if n, err := p.members.SessionCount(ctx, userID); err == nil && n > 1 {
		return
	}
	p.announce(ctx, userID, model.StatusOnline)
}

// Offline records the loss of the user's last session on this node. The
// marker drops immediately; the announcement waits out the debounce window
// and is cancelled by a reconnect.
func (p *PresenceService) Offline(ctx context.Context, userID int64) {
	if err := p.markers.SetLastSeen(ctx, userID, time.Now()); err != nil {
		p.log.Warn("last-seen write failed", "user_id", userID, "err", err)
	}

	if n, err := p.members.SessionCount(ctx, userID); err == nil && n > 0 {
		// Still connected through another node.
		return
	}
	if err := p.markers.SetOffline(ctx, userID); err != nil {
		p.log.Warn("offline marker write failed", "user_id", userID, "err", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[userID]; ok {
		return
	}
	p.pending[userID] = time.AfterFunc(p.debounce, func() { p.confirmOffline(userID) })
}

func (p *PresenceService) confirmOffline(userID int64) {
	p.mu.Lock()
	delete(p.pending, userID)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Reconnects register their session before touching presence, so either
	// check catching a session means the flap resolved itself.
	if p.hub.Sessions(userID) > 0 {
		return
	}
	if n, err := p.members.SessionCount(ctx, userID); err == nil && n > 0 {
		return
	}
	p.announce(ctx, userID, model.StatusOffline)
}

// UpdateStatus publishes a client-declared rich status (away, busy, or back
// to online). These are explicit user actions, so they skip the debounce.
func (p *PresenceService) UpdateStatus(ctx context.Context, userID int64, status model.Status) error {
	if !status.Valid() || status == model.StatusOffline {
		return imerr.Newf(imerr.InvalidParams, "unsupported status %q", status)
	}
	if err := p.markers.SetStatus(ctx, userID, string(status), p.markerTTL); err != nil {
		return imerr.Wrap(imerr.CacheFailed, "store status", err)
	}
	p.announce(ctx, userID, status)
	return nil
}

func (p *PresenceService) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return p.markers.IsOnline(ctx, userID)
}

func (p *PresenceService) OnlineAmong(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	return p.markers.OnlineAmong(ctx, userIDs)
}

func (p *PresenceService) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	return p.markers.LastSeen(ctx, userID)
}

func (p *PresenceService) announce(ctx context.Context, userID int64, status model.Status) {
	evt := dto.NewPresenceChange(userID, status, p.origin.String())
	key := strconv.FormatInt(userID, 10)
	if err := p.bus.Publish(ctx, event.NewBusEvent(event.TopicSystem, key, evt)); err != nil {
		p.log.Error("presence publish failed", "user_id", userID, "status", status, "err", err)
	}
}

// Start launches the marker refresher for this node's connected users.
func (p *PresenceService) Start() {
	p.wg.Add(1)
	go p.refreshLoop()
}

func (p *PresenceService) refreshLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.refreshOnce()
		case <-p.stopCh:
			return
		}
	}
}

func (p *PresenceService) refreshOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.refreshEvery)
	defer cancel()
	for _, userID := range p.hub.OnlineUsers() {
		if err := p.markers.SetOnline(ctx, userID, p.markerTTL); err != nil {
			p.log.Warn("marker refresh failed", "user_id", userID, "err", err)
			return
		}
		_ = p.markers.ExtendStatus(ctx, userID, p.markerTTL)
	}
}

// Stop halts the refresher and cancels pending offline announcements; after
// shutdown the markers age out on their own.
func (p *PresenceService) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.pending {
		t.Stop()
		delete(p.pending, id)
	}
}
