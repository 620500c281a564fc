package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	"gorm.io/gorm"
)

// Version is the build identifier, stamped at link time and supplied via fx.
type Version string

// Restartable is implemented by the fanout consumer so the admin surface can
// bounce it without restarting the process.
type Restartable interface {
	Start() error
	Stop() error
	Restart() error
	Running() bool
	Name() string
}

// AdminService assembles the operator view: component liveness, registry
// counters and consumer control.
type AdminService struct {
	db       *gorm.DB
	rdb      *redis.Client
	hub      registry.Hubber
	consumer Restartable
	log      *slog.Logger

	service string
	version string
	started time.Time
}

func NewAdminService(
	cfg *config.Config,
	db *gorm.DB,
	rdb *redis.Client,
	hub registry.Hubber,
	consumer Restartable,
	version Version,
	log *slog.Logger,
) *AdminService {
	return &AdminService{
		db:       db,
		rdb:      rdb,
		hub:      hub,
		consumer: consumer,
		log:      log.With("component", "admin"),
		service:  cfg.Service.Name,
		version:  string(version),
		started:  time.Now(),
	}
}

// Status probes the database and cache and snapshots the registry. Probes are
// bounded so a hung store reports down instead of hanging the endpoint.
func (s *AdminService) Status(ctx context.Context) *model.SystemStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	dbState := model.ComponentUp
	if sqlDB, err := s.db.DB(); err != nil {
		dbState = model.ComponentDown
	} else if err := sqlDB.PingContext(probeCtx); err != nil {
		dbState = model.ComponentDown
	}

	cacheState := model.ComponentUp
	if err := s.rdb.Ping(probeCtx).Err(); err != nil {
		cacheState = model.ComponentDown
	}

	consumerState := model.ComponentStopped
	if s.consumer.Running() {
		consumerState = model.ComponentUp
	}

	return &model.SystemStatus{
		Service:       s.service,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Hub:           s.hub.Stats(),
		Database:      dbState,
		Cache:         cacheState,
		Consumer:      consumerState,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// RestartConsumer bounces the fanout pipeline.
func (s *AdminService) RestartConsumer() error {
	s.log.Info("consumer restart requested", "consumer", s.consumer.Name())
	return s.consumer.Restart()
}
