package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/kv"
	"github.com/syntalk/im-server/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Resolver turns user ids into display profiles for API responses.
type Resolver interface {
	// Resolve looks up one profile. A zero id yields a zero profile.
	Resolve(ctx context.Context, userID int64) (model.Profile, error)
	// ResolvePair performs concurrent lookups for both sides of a conversation.
	ResolvePair(ctx context.Context, a, b int64) (model.Profile, model.Profile, error)
}

// ProfileResolver serves profiles from an in-process LRU backed by the user
// store, with a circuit breaker so a struggling database degrades reads into
// placeholder profiles instead of failing whole responses.
type ProfileResolver struct {
	users   repository.Users
	markers *kv.Presence
	cache   *lru.Cache[int64, model.Profile]
	breaker *gobreaker.CircuitBreaker
}

func NewProfileResolver(users repository.Users, markers *kv.Presence) *ProfileResolver {
	// Pre-allocated LRU to keep hot identities off the database.
	cache, _ := lru.New[int64, model.Profile](10000)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "profile-store",
		MaxRequests: 3,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A missing row is an answer, not a store failure.
			return err == nil || imerr.CodeOf(err) == imerr.UserNotFound
		},
	})

	return &ProfileResolver{
		users:   users,
		markers: markers,
		cache:   cache,
		breaker: breaker,
	}
}

// Resolve orchestrates the cache-aside lookup. Presence is overlaid on every
// return so cached entries still carry a live online flag.
func (r *ProfileResolver) Resolve(ctx context.Context, userID int64) (model.Profile, error) {
	if userID <= 0 {
		return model.Profile{}, nil
	}

	if cached, ok := r.cache.Get(userID); ok {
		return r.overlay(ctx, cached), nil
	}

	res, err := r.breaker.Execute(func() (any, error) {
		return r.users.ByID(ctx, userID)
	})
	if err != nil {
		if imerr.CodeOf(err) == imerr.UserNotFound {
			return model.Profile{}, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Graceful fallback: a placeholder keeps the response moving.
			return model.Profile{ID: userID, Username: fmt.Sprintf("user-%d", userID)}, nil
		}
		return model.Profile{}, err
	}

	profile := res.(*model.User).Profile()
	r.cache.Add(userID, profile)
	return r.overlay(ctx, profile), nil
}

// ResolvePair runs both lookups concurrently; they complete or fail together.
func (r *ProfileResolver) ResolvePair(ctx context.Context, a, b int64) (model.Profile, model.Profile, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var resA, resB model.Profile
	g.Go(func() error {
		var err error
		resA, err = r.Resolve(gCtx, a)
		return err
	})
	g.Go(func() error {
		var err error
		resB, err = r.Resolve(gCtx, b)
		return err
	})

	if err := g.Wait(); err != nil {
		return model.Profile{}, model.Profile{}, fmt.Errorf("parallel profile resolution failed: %w", err)
	}
	return resA, resB, nil
}

// Forget drops a cached profile after an edit so the next read is fresh.
func (r *ProfileResolver) Forget(userID int64) {
	r.cache.Remove(userID)
}

func (r *ProfileResolver) overlay(ctx context.Context, p model.Profile) model.Profile {
	online, err := r.markers.IsOnline(ctx, p.ID)
	if err != nil {
		return p
	}
	p.Online = online
	return p
}

var _ Resolver = (*ProfileResolver)(nil)
