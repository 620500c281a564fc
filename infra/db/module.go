package db

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/syntalk/im-server/config"
)

var Module = fx.Module("database",
	fx.Provide(Open),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, database *gorm.DB, log *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := Ping(ctx, database); err != nil {
					return err
				}
				if cfg.Database.MigrateOnStart {
					return Migrate(database, log)
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return Close(database)
			},
		})
	}),
)
