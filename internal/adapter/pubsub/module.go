package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/syntalk/im-server/config"
	"go.uber.org/fx"
)

// NewPublisher builds the node-wide publisher bound to the configured
// exchange and ties its teardown to the application lifecycle.
func NewPublisher(lc fx.Lifecycle, cfg *config.Config, provider *PublisherProvider) (message.Publisher, error) {
	pub, err := provider.Build(cfg.Broker.Exchange)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return pub.Close() },
	})
	return pub, nil
}

var Module = fx.Module("bus",
	fx.Provide(
		NewPublisherProvider,
		NewSubscriberProvider,
		NewPublisher,
		NewEventDispatcher,
	),
)
