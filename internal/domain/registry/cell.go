/*
Package registry provides a high-performance event distribution system based on the Actor Model.

Key Architectural Concepts:
  - Virtual Cells: Every active user is represented by an isolated 'Cell' (Actor) that
    encapsulates all concurrent WebSocket streams (sessions) for that specific identity.
  - Decoupling & Backpressure: Through the use of internal per-user mailboxes, the
    package ensures that slow network consumers do not block global system throughput.
  - Computational Efficiency: Events are marshaled into the wire format exactly once
    per user group, leveraging internal caching to minimize CPU and GC overhead.
  - Concurrency Management: Utilizes lock-free lookups via sync.Map and fine-grained
    sharded locking within individual cells to eliminate global mutex contention.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syntalk/im-server/internal/domain/event"
)

// Interface guard
var _ Celler = (*cell)(nil)

// Celler defines the internal API for user-specific delivery units.
type Celler interface {
	Push(ev event.Eventer) bool
	Attach(conn Connector) (first, ok bool)
	Detach(connID uuid.UUID) (conn Connector, removed, empty bool)
	Snapshot() []Connector
	Len() int
	StopIfIdle(quiet time.Duration) bool
	Stop()

	start()
}

// cell implements [ISOLATED_DELIVERY] logic for a single user.
type cell struct {
	// [IDENTITY]
	// The unique identifier of the user managed by this actor instance.
	userID int64

	// [MAILBOX]
	// Buffered channel that decouples the global dispatcher from individual delivery.
	// It acts as a shock absorber, preventing slow consumer latency from
	// propagating back to the Hub or AMQP consumers (Backpressure).
	mailbox chan event.Eventer

	// [SESSIONS]
	// Registry of all active transport channels (WebSocket streams) for the user.
	// Allows multiplexing a single event to multiple devices (mobile, web, desktop).
	sessions map[uuid.UUID]Connector

	// [CONCURRENCY_CONTROL]
	// Fine-grained lock for managing the sessions map.
	// RWMutex is chosen because read-heavy delivery operations outnumber
	// write-heavy registration events.
	mu sync.RWMutex

	// [TOMBSTONE]
	// Set under mu when the cell is retired. Attach refuses retired cells so
	// the Hub can detect the loss and allocate a fresh cell instead of
	// parking a live session on a dead actor.
	closed bool

	// [LIFECYCLE_CONTROL]
	// Signaling channel used to terminate the background goroutine.
	// Ensures no goroutine leaks occur after the user goes offline.
	doneCh   chan struct{}
	stopOnce sync.Once

	// lastActivityAt records the last time an event was processed for this cell.
	lastActivityAt time.Time

	// sendTimeout bounds per-session delivery inside the actor loop.
	sendTimeout time.Duration
}

func newCell(userID int64, bufferSize int, sendTimeout time.Duration) *cell {
	return &cell{
		userID:         userID,
		mailbox:        make(chan event.Eventer, bufferSize), // [DYNAMIC_BUFFER]
		sessions:       make(map[uuid.UUID]Connector),
		doneCh:         make(chan struct{}),
		lastActivityAt: time.Now(),
		sendTimeout:    sendTimeout,
	}
}

// start launches the actor loop. The Hub calls it only for the cell instance
// that won the LoadOrStore race; losing candidates are garbage collected
// without ever owning a goroutine.
func (c *cell) start() {
	go c.loop()
}

// StopIfIdle retires the cell when it has no sessions and has been quiet
// longer than the threshold. The check and the tombstone are one critical
// section, so a concurrent Attach either lands before (cell stays) or
// observes closed and fails (Hub re-allocates).
func (c *cell) StopIfIdle(quiet time.Duration) bool {
	c.mu.Lock()
	if c.closed || len(c.sessions) != 0 || time.Since(c.lastActivityAt) <= quiet {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	c.halt()
	return true
}

func (c *cell) Push(ev event.Eventer) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.lastActivityAt = time.Now() // Keep alive on incoming events
	c.mu.Unlock()

	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Attach adds a transport session. first reports a 0 -> 1 session transition,
// which the caller uses to announce presence exactly once per online period.
func (c *cell) Attach(conn Connector) (first, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, false
	}
	c.lastActivityAt = time.Now()
	first = len(c.sessions) == 0
	c.sessions[conn.GetID()] = conn
	return first, true
}

// Detach removes one session and reports whether it was the last. The
// returned Connector lets the Hub own the Close call.
func (c *cell) Detach(connID uuid.UUID) (conn Connector, removed, empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, removed = c.sessions[connID]
	if !removed {
		return nil, false, false
	}
	delete(c.sessions, connID)
	c.lastActivityAt = time.Now()
	return conn, true, len(c.sessions) == 0
}

// Snapshot copies the current session set so the sweeper can probe without
// holding the cell lock across network-facing calls.
func (c *cell) Snapshot() []Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Connector, 0, len(c.sessions))
	for _, conn := range c.sessions {
		out = append(out, conn)
	}
	return out
}

func (c *cell) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
		}
	}
}

func (c *cell) deliver(ev event.Eventer) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.sessions) == 0 {
		return
	}

	for _, conn := range c.sessions {
		conn.Send(ev, c.sendTimeout)
	}
}

// Stop retires the cell unconditionally. Used on Hub shutdown.
func (c *cell) Stop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.halt()
}

func (c *cell) halt() {
	c.stopOnce.Do(func() {
		close(c.doneCh)
	})
}
