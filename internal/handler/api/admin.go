package api

import (
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

func (a *API) systemStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, a.admin.Status(r.Context()))
}

type userListResponse struct {
	Users []accountView `json:"users"`
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	var status *model.UserStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := model.UserStatusFromString(raw)
		if !ok {
			respondError(w, imerr.Newf(imerr.InvalidParams, "unknown status %q", raw))
			return
		}
		status = &s
	}
	users, err := a.users.List(r.Context(), status, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	out := userListResponse{Users: make([]accountView, 0, len(users))}
	for i := range users {
		out.Users = append(out.Users, accountFrom(&users[i]))
	}
	respond(w, http.StatusOK, out)
}

type approveRequest struct {
	Approve bool `json:"approve"`
}

func (a *API) approveUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req approveRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := a.users.Approve(r.Context(), identity(r).UserID, id, req.Approve); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (a *API) restartConsumer(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.RestartConsumer(); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
