package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"

	"github.com/syntalk/im-server/config"
	pubsubadapter "github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/service"
)

// FanoutHandler owns the consume side of the event bus. It binds one
// listener per topic and hands the decoded events to the fanout service,
// which decides locality, notification and offline persistence.
type FanoutHandler struct {
	fanout     *service.FanoutService
	dispatcher pubsubadapter.EventDispatcher
	logger     *slog.Logger
}

func NewFanoutHandler(fanout *service.FanoutService, dispatcher pubsubadapter.EventDispatcher, logger *slog.Logger) *FanoutHandler {
	return &FanoutHandler{fanout: fanout, dispatcher: dispatcher, logger: logger}
}

// [REGISTRATION_PIPELINE]
func (h *FanoutHandler) RegisterHandlers(router *message.Router, subProvider *pubsubadapter.SubscriberProvider, cfg *config.Config) error {
	poisonTopic := cfg.Broker.ConsumerName + ".poison"
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), poisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_PERSONAL_MSG", event.TopicMessagesPersonal, Bind(h, h.fanout.OnPersonalMessage)},
		{"ON_GROUP_MSG", event.TopicMessagesGroup, Bind(h, h.fanout.OnGroupMessage)},
		{"ON_OFFLINE_MSG", event.TopicOfflineMessages, Bind(h, h.fanout.OnOfflineMessage)},
		{"ON_RELATION_EVT", event.TopicRelationship, Bind(h, h.fanout.OnRelationEvent)},
		{"ON_FILE_EVT", event.TopicFiles, Bind(h, h.fanout.OnFileEvent)},
		{"ON_SYSTEM_EVT", event.TopicSystem, Bind(h, h.fanout.OnSystemEvent)},
	}

	for _, c := range configs {
		instanceID := uuid.NewString()[:8]
		// [UNIQUE_HANDLER_QUEUE]
		// Every handler on every node consumes through its own auto-delete
		// queue, so bus events reach all nodes instead of being load-balanced
		// away from the node holding the recipient's session.
		// Format: im-server.b23a8f12.ON_PERSONAL_MSG
		handlerQueue := fmt.Sprintf("%s.%s.%s", cfg.Broker.QueuePrefix, instanceID, c.name)

		sub, err := subProvider.Build(handlerQueue, cfg.Broker.Exchange)
		if err != nil {
			return err
		}

		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "consumer", cfg.Broker.ConsumerName, "handlers", len(configs))
	return nil
}
