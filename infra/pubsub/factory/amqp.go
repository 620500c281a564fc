package factory

import (
	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Interface guard
var _ Factory = (*AMQP)(nil)

// AMQP builds watermill publishers and subscribers over RabbitMQ. All
// traffic shares one topic exchange; watermill topics become AMQP routing
// keys, so each subscriber queue receives exactly the topics it binds.
type AMQP struct {
	url    string
	logger watermill.LoggerAdapter
}

func NewAMQP(url string, logger watermill.LoggerAdapter) *AMQP {
	return &AMQP{url: url, logger: logger}
}

// config starts from watermill's durable pub/sub preset and rebinds it to
// the single-exchange topology: constant exchange name, topic type, routing
// key = watermill topic on both the publish and the bind side.
func (f *AMQP) config(exchange ExchangeConfig, queue QueueConfig) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(f.url, amqp.GenerateQueueNameConstant(queue.Name))

	cfg.Exchange.GenerateName = func(string) string { return exchange.Name }
	cfg.Exchange.Type = exchange.Type
	cfg.Exchange.Durable = exchange.Durable
	cfg.Queue.AutoDelete = queue.AutoDelete
	cfg.QueueBind.GenerateRoutingKey = func(topic string) string { return topic }
	cfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	return cfg
}

func (f *AMQP) BuildPublisher(pc *PublisherConfig) (message.Publisher, error) {
	return amqp.NewPublisher(f.config(pc.Exchange, QueueConfig{}), f.logger)
}

func (f *AMQP) BuildSubscriber(sc *SubscriberConfig) (message.Subscriber, error) {
	return amqp.NewSubscriber(f.config(sc.Exchange, sc.Queue), f.logger)
}
