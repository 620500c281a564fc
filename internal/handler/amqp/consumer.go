package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/syntalk/im-server/config"
	pubsubadapter "github.com/syntalk/im-server/internal/adapter/pubsub"
)

const startDeadline = 10 * time.Second

// Consumer runs the fanout pipeline. A watermill router cannot be reused
// once closed, so every Start builds a fresh router and re-registers the
// handlers; the admin surface relies on this to bounce a wedged consumer
// without restarting the process.
type Consumer struct {
	cfg     *config.Config
	handler *FanoutHandler
	subs    *pubsubadapter.SubscriberProvider
	wmlog   watermill.LoggerAdapter
	log     *slog.Logger

	mu      sync.Mutex
	router  *message.Router
	cancel  context.CancelFunc
	running bool
}

func NewConsumer(
	cfg *config.Config,
	handler *FanoutHandler,
	subs *pubsubadapter.SubscriberProvider,
	wmlog watermill.LoggerAdapter,
	log *slog.Logger,
) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		subs:    subs,
		wmlog:   wmlog,
		log:     log.With("component", "consumer"),
	}
}

func (c *Consumer) Name() string { return c.cfg.Broker.ConsumerName }

func (c *Consumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start builds the router, registers all topic handlers and waits until the
// router reports running. Idempotent: a running consumer is left alone.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	router, err := message.NewRouter(message.RouterConfig{}, c.wmlog)
	if err != nil {
		return fmt.Errorf("build fanout router: %w", err)
	}
	if err := c.handler.RegisterHandlers(router, c.subs, c.cfg); err != nil {
		_ = router.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := router.Run(ctx); err != nil {
			c.log.Error("fanout router exited", "err", err)
		}
		c.mu.Lock()
		// A stale goroutine from a previous incarnation must not clear
		// the flag of the router that replaced it.
		if c.router == router {
			c.running = false
		}
		c.mu.Unlock()
	}()

	select {
	case <-router.Running():
	case <-time.After(startDeadline):
		cancel()
		_ = router.Close()
		return errors.New("fanout router did not start in time")
	}

	c.router = router
	c.cancel = cancel
	c.running = true
	c.log.Info("fanout consumer started", "consumer", c.Name())
	return nil
}

func (c *Consumer) Stop() error {
	c.mu.Lock()
	router, cancel := c.router, c.cancel
	c.router, c.cancel, c.running = nil, nil, false
	c.mu.Unlock()

	if router == nil {
		return nil
	}
	cancel()
	if err := router.Close(); err != nil {
		return fmt.Errorf("close fanout router: %w", err)
	}
	c.log.Info("fanout consumer stopped", "consumer", c.Name())
	return nil
}

// Restart tears the pipeline down and brings a fresh one up. Queues are
// auto-delete, so a bounce also sheds any backlog addressed to sessions
// this node no longer holds.
func (c *Consumer) Restart() error {
	if err := c.Stop(); err != nil {
		c.log.Warn("stop before restart", "err", err)
	}
	return c.Start()
}
