package registry

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/syntalk/im-server/config"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(cfg *config.Config, log *slog.Logger) *Hub {
			return NewHub(
				WithSweepInterval(cfg.Session.SweepInterval),
				WithZombieAfter(cfg.Session.ZombieAfter),
				WithExpireAfter(cfg.Session.ExpireAfter),
				WithCellIdleAfter(cfg.Session.CellIdleAfter),
				WithMailboxSize(cfg.Session.MailboxSize),
				WithLogger(log.With(slog.String("component", "hub"))),
			)
		},
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Hub) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				h.Start() // [JANITOR] Begin periodic sweeps
				return nil
			},
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Stop all Actor goroutines
				return nil
			},
		})
	}),
)
