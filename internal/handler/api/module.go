package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/syntalk/im-server/internal/handler/lp"
)

// Module owns the whole /api/v1 subtree; the long-poll handler is provided
// here because its only route lives inside that subtree.
var Module = fx.Module("api-handler",
	fx.Provide(
		lp.NewLPHandler,
		NewAPI,
	),

	fx.Invoke(func(mux *chi.Mux, a *API) {
		mux.Mount("/api/v1", a.Routes())
	}),
)
