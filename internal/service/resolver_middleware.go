package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/syntalk/im-server/internal/domain/model"
)

// ResolverMiddleware decorates a Resolver with execution timing and outcome
// logging without touching lookup logic.
type ResolverMiddleware struct {
	Next   Resolver
	Logger *slog.Logger
}

func NewResolverMiddleware(next Resolver, logger *slog.Logger) Resolver {
	return &ResolverMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *ResolverMiddleware) Resolve(ctx context.Context, userID int64) (model.Profile, error) {
	start := time.Now()

	res, err := m.Next.Resolve(ctx, userID)
	if err != nil {
		m.Logger.Warn("PROFILE_RESOLVE_FAILED",
			"user_id", userID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return res, err
}

func (m *ResolverMiddleware) ResolvePair(ctx context.Context, a, b int64) (model.Profile, model.Profile, error) {
	start := time.Now()

	resA, resB, err := m.Next.ResolvePair(ctx, a, b)

	duration := time.Since(start)
	if err != nil {
		m.Logger.Error("PROFILE_RESOLVE_BATCH_FAILED",
			"err", err,
			"a_id", a,
			"b_id", b,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.Logger.Debug("PROFILE_RESOLVE_BATCH_COMPLETED",
			"duration_ms", duration.Milliseconds(),
		)
	}

	return resA, resB, err
}
