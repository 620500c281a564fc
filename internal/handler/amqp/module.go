package amqp

import (
	"context"

	"go.uber.org/fx"

	"github.com/syntalk/im-server/internal/service"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		NewFanoutHandler,
		NewConsumer,
		fx.Annotate(
			func(c *Consumer) service.Restartable { return c },
			fx.As(new(service.Restartable)),
		),
	),

	fx.Invoke(func(lc fx.Lifecycle, c *Consumer) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return c.Start() },
			OnStop:  func(context.Context) error { return c.Stop() },
		})
	}),
)
