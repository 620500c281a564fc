package api

import (
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/service"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
	Code     string `json:"code"`
}

type registerResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	u, err := a.users.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Nickname: req.Nickname,
		Code:     req.Code,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, registerResponse{
		UserID:   u.ID,
		Username: u.Username,
		Status:   u.Status.String(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  model.Profile `json:"user"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	u, token, err := a.users.Login(r.Context(), req.Username, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		respondError(w, err)
		return
	}
	profile := u.Profile()
	profile.Online = true
	respond(w, http.StatusOK, loginResponse{Token: token, User: profile})
}

type verificationCodeRequest struct {
	Email string `json:"email"`
}

func (a *API) sendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req verificationCodeRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := a.users.SendVerificationCode(r.Context(), req.Email); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
