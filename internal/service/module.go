package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/syntalk/im-server/internal/domain/registry"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewOrigin,
		fx.Annotate(
			NewAuthService,
			fx.As(new(Auther)),
		),
		NewDirectory,
		NewPresenceService,
		NewNotifier,
		NewUserService,
		NewRelationService,
		NewTransferService,
		NewFanoutService,
		NewAdminService,
		NewDeliveryService,
		fx.Annotate(
			func(s *DeliveryService) Deliverer { return s },
			fx.As(new(Deliverer)),
		),
		NewProfileResolver,
		fx.Annotate(
			func(r *ProfileResolver) Resolver { return r },
			fx.As(new(Resolver)),
		),
	),

	// [DECORATION_LAYER] Intercept Resolver to add cross-cutting concerns
	fx.Decorate(func(orig Resolver, logger *slog.Logger) Resolver {
		return &ResolverMiddleware{
			Next:   orig,
			Logger: logger,
		}
	}),

	// Invokes run while the app is constructed, before lifecycle hooks
	// fire, so the hook is in place before the hub's sweeper starts.
	fx.Invoke(func(hub *registry.Hub, svc *DeliveryService) {
		hub.SetDetachHook(svc.DetachHook())
	}),

	fx.Invoke(func(lc fx.Lifecycle, presence *PresenceService) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				presence.Start() // [MARKER_REFRESHER] keep presence keys alive
				return nil
			},
			OnStop: func(context.Context) error {
				presence.Stop()
				return nil
			},
		})
	}),
)
