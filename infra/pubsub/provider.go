// Package pubsub exposes the broker connection as a Provider that hands out
// a construction Factory. The adapter layer depends on this interface only,
// which keeps broker choice an infra concern.
package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/infra/pubsub/factory"
)

type Provider interface {
	GetFactory() factory.Factory
}

type amqpProvider struct {
	f factory.Factory
}

func NewAMQPProvider(cfg *config.Config, logger watermill.LoggerAdapter) Provider {
	return &amqpProvider{f: factory.NewAMQP(cfg.Broker.URL, logger)}
}

func (p *amqpProvider) GetFactory() factory.Factory { return p.f }

var Module = fx.Module("pubsub",
	fx.Provide(NewAMQPProvider),
)
