// Package api serves the request/response surface under /api/v1. Every
// handler speaks plain JSON; failures always render the shared error
// envelope with the HTTP status derived from the error code.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/syntalk/im-server/internal/handler/lp"
	"github.com/syntalk/im-server/internal/service"
)

type API struct {
	users     *service.UserService
	relations *service.RelationService
	transfers *service.TransferService
	notifier  *service.Notifier
	presence  *service.PresenceService
	admin     *service.AdminService
	deliverer service.Deliverer
	auther    service.Auther
	poller    *lp.LPHandler
	log       *slog.Logger
}

func NewAPI(
	users *service.UserService,
	relations *service.RelationService,
	transfers *service.TransferService,
	notifier *service.Notifier,
	presence *service.PresenceService,
	admin *service.AdminService,
	deliverer service.Deliverer,
	auther service.Auther,
	poller *lp.LPHandler,
	logger *slog.Logger,
) *API {
	return &API{
		users:     users,
		relations: relations,
		transfers: transfers,
		notifier:  notifier,
		presence:  presence,
		admin:     admin,
		deliverer: deliverer,
		auther:    auther,
		poller:    poller,
		log:       logger.With(slog.String("component", "api")),
	}
}

// Routes assembles the /api/v1 subtree. The long-poll endpoint lives inside
// the authenticated group so it shares the bearer middleware with the rest
// of the surface.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	// [PUBLIC] no token required
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)
		r.Post("/verification-code", a.sendVerificationCode)
	})

	// [AUTHENTICATED]
	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/users/me", a.currentUser)
		r.Patch("/users/me", a.updateProfile)
		r.Get("/users/{userID}", a.getUser)

		r.Post("/messages", a.sendMessage)
		r.Get("/messages/history", a.messageHistory)
		r.Get("/messages/offline", a.offlineMessages)
		r.Post("/messages/{messageID}/read", a.markMessageRead)

		r.Post("/friends", a.addFriend)
		r.Get("/friends", a.listFriends)
		r.Delete("/friends/{friendID}", a.deleteFriend)
		r.Get("/friends/requests", a.pendingRequests)
		r.Post("/friends/requests/{requestID}", a.handleFriendRequest)

		r.Post("/transfers", a.requestTransfer)
		r.Post("/transfers/{requestID}/respond", a.respondTransfer)

		r.Get("/notifications", a.notifications)
		r.Post("/notifications/read", a.markNotificationsRead)

		r.Get("/events/poll", a.poller.Poll)

		// [ADMIN]
		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireAdmin)
			r.Get("/status", a.systemStatus)
			r.Get("/users", a.listUsers)
			r.Post("/users/{userID}/approve", a.approveUser)
			r.Post("/consumer/restart", a.restartConsumer)
		})
	})

	return r
}
