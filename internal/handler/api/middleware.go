package api

import (
	"net/http"

	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/service"
)

// requireAuth verifies the bearer token and stores the caller's identity on
// the request context for everything downstream, the long-poll handler
// included.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.auther.Bearer(r.Header.Get("Authorization"))
		if err != nil {
			respondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithIdentity(r.Context(), id)))
	})
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := identity(r); !id.Admin {
			respondError(w, imerr.New(imerr.PermissionDenied, "admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity returns the authenticated caller. Routes behind requireAuth always
// carry one.
func identity(r *http.Request) service.Identity {
	id, _ := service.IdentityFromContext(r.Context())
	return id
}
