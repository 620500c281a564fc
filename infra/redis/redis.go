// Package redis provides the shared client for presence markers, hot caches
// and offline queues.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/syntalk/im-server/config"
)

func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

var Module = fx.Module("redis",
	fx.Provide(NewClient),
	fx.Invoke(func(lc fx.Lifecycle, client *redis.Client) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: ping %s: %w", client.Options().Addr, err)
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}),
)
