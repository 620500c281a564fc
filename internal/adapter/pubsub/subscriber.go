package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/syntalk/im-server/infra/pubsub"
	"github.com/syntalk/im-server/infra/pubsub/factory"
)

type SubscriberProvider struct {
	factory factory.Factory
}

func NewSubscriberProvider(p infrapubsub.Provider) *SubscriberProvider {
	return &SubscriberProvider{factory: p.GetFactory()}
}

// Build declares a private consumer queue on the shared topic exchange. The
// binding key is supplied later, per subscription, by the router. Queues
// auto-delete: when a node goes away its queues go with it instead of
// accumulating unconsumed fanout traffic.
func (sp *SubscriberProvider) Build(queue, exchange string) (message.Subscriber, error) {
	return sp.factory.BuildSubscriber(&factory.SubscriberConfig{
		Exchange: factory.ExchangeConfig{
			Name:    exchange,
			Type:    "topic",
			Durable: true,
		},
		Queue: factory.QueueConfig{
			Name:       queue,
			AutoDelete: true,
		},
	})
}
