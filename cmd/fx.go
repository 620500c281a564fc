package cmd

import (
	"log/slog"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/infra/db"
	"github.com/syntalk/im-server/infra/otel"
	"github.com/syntalk/im-server/infra/pubsub"
	"github.com/syntalk/im-server/infra/redis"
	httpserver "github.com/syntalk/im-server/infra/server/http"
	pubsubadapter "github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/registry"
	amqphandler "github.com/syntalk/im-server/internal/handler/amqp"
	"github.com/syntalk/im-server/internal/handler/api"
	"github.com/syntalk/im-server/internal/handler/ws"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service"
)

func NewApp(cfg *config.Config, flags *pflag.FlagSet) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			config.NewStore,
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideVersion,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),

		otel.Module,
		db.Module,
		redis.Module,
		pubsub.Module,
		httpserver.Module,

		kv.Module,
		repository.Module,
		registry.Module,
		pubsubadapter.Module,
		service.Module,

		amqphandler.Module,
		ws.Module,
		api.Module,

		// Reloads pick up level changes without a restart; everything else
		// keeps the snapshot it was built with.
		fx.Invoke(func(store *config.Store, level *slog.LevelVar, log *slog.Logger) {
			store.OnSwap(func(next *config.Config) {
				level.Set(parseLevel(next.Log.Level))
			})
			store.Watch(cfg.ConfigFile(), flags, log)
		}),
	)
}
