package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
)

// Interface guard
var _ Hubber = (*Hub)(nil)

// Hubber defines the gateway for user session management and event routing.
type Hubber interface {
	// Broadcast routes an event to every session of its target user.
	// Returns false when the user has no live cell or the mailbox is full.
	Broadcast(ev event.Eventer) bool
	// BroadcastAll pushes one event to every connected user and returns the
	// number of cells that accepted it.
	BroadcastAll(ev event.Eventer) int
	// Register attaches a session, creating the user cell on demand.
	// Returns true when this is the user's first live session.
	Register(conn Connector) bool
	// Unregister detaches and closes one session. Returns false if the
	// session was already gone.
	Unregister(userID int64, connID uuid.UUID) bool
	IsConnected(userID int64) bool
	Sessions(userID int64) int
	OnlineUsers() []int64
	Stats() model.HubStats
	Shutdown()
}

// DetachFunc observes session removal. last is true when the user has no
// sessions left anywhere on this node.
type DetachFunc func(userID int64, connID uuid.UUID, last bool)

type hubConfig struct {
	sweepInterval time.Duration
	zombieAfter   time.Duration
	expireAfter   time.Duration
	cellIdleAfter time.Duration
	mailboxSize   int
	sendTimeout   time.Duration
}

// Hub implements a [SCALABLE_REGISTRY] using Virtual Cell pattern.
type Hub struct {
	// cells stores Map[int64]Celler. Optimized for [READ_HEAVY] workloads.
	cells sync.Map

	config hubConfig
	log    *slog.Logger

	// detachFn is fixed before Start; no lock needed afterwards.
	detachFn DetachFunc

	stopCh   chan struct{}
	stopOnce sync.Once

	droppedEvents uint64 // [ATOMIC_FIELD]
	sweptSessions uint64 // [ATOMIC_FIELD]
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			sweepInterval: time.Minute,
			zombieAfter:   2 * time.Minute,
			expireAfter:   5 * time.Minute,
			cellIdleAfter: 10 * time.Minute,
			mailboxSize:   256,
			sendTimeout:   500 * time.Millisecond,
		},
		log:    slog.Default(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetDetachHook wires the observer called after every session removal,
// including sweeper evictions. Must be set before Start.
func (h *Hub) SetDetachHook(fn DetachFunc) {
	h.detachFn = fn
}

// Start launches the [JANITOR] goroutine.
func (h *Hub) Start() {
	go h.sweepLoop()
}

func (h *Hub) IsConnected(userID int64) bool {
	if val, ok := h.cells.Load(userID); ok {
		return val.(Celler).Len() > 0
	}
	return false
}

func (h *Hub) Sessions(userID int64) int {
	if val, ok := h.cells.Load(userID); ok {
		return val.(Celler).Len()
	}
	return 0
}

// OnlineUsers lists users with at least one live session on this node.
func (h *Hub) OnlineUsers() []int64 {
	var out []int64
	h.cells.Range(func(key, val any) bool {
		if val.(Celler).Len() > 0 {
			out = append(out, key.(int64))
		}
		return true
	})
	return out
}

// Broadcast routes event to the specific [USER_CELL]. Returns false on miss or overflow.
func (h *Hub) Broadcast(ev event.Eventer) bool {
	if val, ok := h.cells.Load(ev.GetUserID()); ok {
		if cell, ok := val.(Celler); ok {
			if cell.Push(ev) {
				return true
			}
			atomic.AddUint64(&h.droppedEvents, 1)
		}
	}
	return false
}

// BroadcastAll fans one event out to every live cell. Warm but empty cells
// are skipped so system announcements do not keep them alive forever.
func (h *Hub) BroadcastAll(ev event.Eventer) int {
	delivered := 0
	h.cells.Range(func(_, val any) bool {
		cell := val.(Celler)
		if cell.Len() == 0 {
			return true
		}
		if cell.Push(ev) {
			delivered++
		} else {
			atomic.AddUint64(&h.droppedEvents, 1)
		}
		return true
	})
	return delivered
}

// Register ensures [IDEMPOTENT] cell creation and attaches a new transport.
// The loop handles the narrow race where the janitor retires a cell between
// our Load and Attach; losing candidates from LoadOrStore never start a
// goroutine, so they are garbage collected silently.
func (h *Hub) Register(conn Connector) bool {
	uID := conn.GetUserID()
	for {
		// [LAZY_INIT] Create cell only when first connection arrives.
		val, loaded := h.cells.LoadOrStore(uID, newCell(uID, h.config.mailboxSize, h.config.sendTimeout))
		cell := val.(Celler)
		if !loaded {
			cell.start()
		}

		first, ok := cell.Attach(conn)
		if ok {
			return first
		}
		// Attached to a tombstone: drop the dead entry and retry.
		h.cells.CompareAndDelete(uID, val)
	}
}

// Unregister performs [GRACEFUL_RECLAMATION] of a single session. The cell
// itself stays warm until the janitor retires it, which keeps flappy
// reconnects cheap.
func (h *Hub) Unregister(userID int64, connID uuid.UUID) bool {
	val, ok := h.cells.Load(userID)
	if !ok {
		return false
	}
	conn, removed, empty := val.(Celler).Detach(connID)
	if !removed {
		return false
	}
	conn.Close()

	if h.detachFn != nil {
		h.detachFn(userID, connID, empty)
	}
	return true
}

func (h *Hub) Stats() model.HubStats {
	var s model.HubStats
	h.cells.Range(func(_, val any) bool {
		if n := val.(Celler).Len(); n > 0 {
			s.TotalUsers++
			s.TotalConnections += n
		}
		return true
	})
	s.DroppedEvents = atomic.LoadUint64(&h.droppedEvents)
	s.SweptSessions = atomic.LoadUint64(&h.sweptSessions)
	return s
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(h.config.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweepOnce()
		}
	}
}

// sweepOnce applies the [HEARTBEAT] policy to every session:
//
//	idle > expireAfter  -> evict unconditionally
//	idle > zombieAfter  -> probe with a ping; evict if the mailbox is wedged
//
// and finally retires cells that have sat empty past cellIdleAfter.
func (h *Hub) sweepOnce() {
	now := time.Now()
	h.cells.Range(func(key, val any) bool {
		userID := key.(int64)
		cell := val.(Celler)

		for _, conn := range cell.Snapshot() {
			idle := now.Sub(conn.LastActive())
			switch {
			case idle > h.config.expireAfter:
				h.log.Info("evicting expired session",
					slog.Int64("user_id", userID),
					slog.String("conn_id", conn.GetID().String()),
					slog.Duration("idle", idle))
				h.evict(userID, conn.GetID())

			case idle > h.config.zombieAfter:
				// A live transport drains its buffer; a zombie lets the
				// probe time out against a saturated mailbox.
				if !conn.Send(event.NewPingEvent(userID), h.config.sendTimeout) {
					h.log.Info("evicting unresponsive session",
						slog.Int64("user_id", userID),
						slog.String("conn_id", conn.GetID().String()),
						slog.Duration("idle", idle))
					h.evict(userID, conn.GetID())
				}
			}
		}

		if cell.StopIfIdle(h.config.cellIdleAfter) {
			h.cells.CompareAndDelete(userID, val)
		}
		return true
	})
}

func (h *Hub) evict(userID int64, connID uuid.UUID) {
	if h.Unregister(userID, connID) {
		atomic.AddUint64(&h.sweptSessions, 1)
	}
}

// Shutdown stops the janitor and retires every cell. Sessions are closed
// without firing detach hooks: presence markers carry a TTL, so peers see
// the node's users age out rather than a burst of offline writes racing
// the rest of teardown.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})

	h.cells.Range(func(key, val any) bool {
		cell := val.(Celler)
		cell.Stop()
		for _, conn := range cell.Snapshot() {
			conn.Close()
		}
		h.cells.Delete(key)
		return true
	})
}
