// Package factory abstracts broker-specific construction of watermill
// publishers and subscribers behind exchange/queue descriptions, so the
// adapter layer never touches AMQP details directly.
package factory

import (
	"github.com/ThreeDotsLabs/watermill/message"
)

type ExchangeConfig struct {
	Name    string
	Type    string
	Durable bool
}

// QueueConfig describes a consumer queue. AutoDelete is used for the
// per-node fanout queues so a dead node's queues do not accumulate on the
// broker.
type QueueConfig struct {
	Name       string
	AutoDelete bool
}

type PublisherConfig struct {
	Exchange ExchangeConfig
}

type SubscriberConfig struct {
	Exchange ExchangeConfig
	Queue    QueueConfig
}

type Factory interface {
	BuildPublisher(cfg *PublisherConfig) (message.Publisher, error)
	BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error)
}
