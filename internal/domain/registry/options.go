package registry

import (
	"log/slog"
	"time"
)

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithSweepInterval configures how often the [JANITOR] process runs
// to probe sessions and reclaim memory from inactive users.
func WithSweepInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sweepInterval = d
	}
}

// WithZombieAfter sets the [QUIET_PERIOD] after which a session gets a
// liveness probe on the next sweep.
func WithZombieAfter(d time.Duration) Option {
	return func(h *Hub) {
		h.config.zombieAfter = d
	}
}

// WithExpireAfter sets the hard idle ceiling. Sessions quiet for longer
// are evicted without probing.
func WithExpireAfter(d time.Duration) Option {
	return func(h *Hub) {
		h.config.expireAfter = d
	}
}

// WithCellIdleAfter defines how long a cell without active sessions stays
// warm before the janitor retires it.
func WithCellIdleAfter(d time.Duration) Option {
	return func(h *Hub) {
		h.config.cellIdleAfter = d
	}
}

// WithMailboxSize sets the [BACKPRESSURE] threshold.
// It defines the buffer capacity for each individual user's actor mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithSendTimeout bounds per-session delivery inside the actor loop and
// the janitor's liveness probe.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sendTimeout = d
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) {
		h.log = log
	}
}
