package api

import (
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/service"
)

// accountView is the owner-facing projection of an account. Other users only
// ever see model.Profile.
type accountView struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Nickname    string `json:"nickname,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	LastLoginAt int64  `json:"last_login_at,omitempty"`
}

func accountFrom(u *model.User) accountView {
	v := accountView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Nickname:  u.Nickname,
		Avatar:    u.Avatar,
		Role:      u.Role.String(),
		Status:    u.Status.String(),
		CreatedAt: u.CreatedAt.Unix(),
	}
	if u.LastLoginAt != nil {
		v.LastLoginAt = u.LastLoginAt.Unix()
	}
	return v
}

func (a *API) currentUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.users.Get(r.Context(), identity(r).UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, accountFrom(u))
}

type updateProfileRequest struct {
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	uid := identity(r).UserID
	patch := service.UserPatch{Nickname: req.Nickname, Avatar: req.Avatar}
	if err := a.users.Update(r.Context(), uid, patch); err != nil {
		respondError(w, err)
		return
	}
	u, err := a.users.Get(r.Context(), uid)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, accountFrom(u))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		respondError(w, err)
		return
	}
	u, err := a.users.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	profile := u.Profile()
	online, err := a.presence.IsOnline(r.Context(), u.ID)
	if err == nil {
		profile.Online = online
	}
	respond(w, http.StatusOK, profile)
}
