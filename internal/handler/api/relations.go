package api

import (
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
)

type friendRequestView struct {
	ID        int64  `json:"id"`
	From      int64  `json:"from_user_id"`
	To        int64  `json:"to_user_id"`
	Message   string `json:"message,omitempty"`
	State     string `json:"state"`
	CreatedAt int64  `json:"created_at"`
}

func friendRequestFrom(req *model.FriendRequest) friendRequestView {
	return friendRequestView{
		ID:        req.ID,
		From:      req.From,
		To:        req.To,
		Message:   req.Message,
		State:     req.State.String(),
		CreatedAt: req.CreatedAt.Unix(),
	}
}

type addFriendRequest struct {
	FriendID int64  `json:"friend_id"`
	Message  string `json:"message,omitempty"`
}

func (a *API) addFriend(w http.ResponseWriter, r *http.Request) {
	var req addFriendRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	fr, err := a.relations.AddFriend(r.Context(), identity(r).UserID, req.FriendID, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, friendRequestFrom(fr))
}

type friendListResponse struct {
	Friends []model.FriendInfo `json:"friends"`
}

func (a *API) listFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := a.relations.ListFriends(r.Context(), identity(r).UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	if friends == nil {
		friends = []model.FriendInfo{}
	}
	respond(w, http.StatusOK, friendListResponse{Friends: friends})
}

func (a *API) deleteFriend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "friendID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := a.relations.DeleteFriend(r.Context(), identity(r).UserID, id); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

type pendingResponse struct {
	Requests []friendRequestView `json:"requests"`
}

func (a *API) pendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.relations.Pending(r.Context(), identity(r).UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	out := pendingResponse{Requests: make([]friendRequestView, 0, len(reqs))}
	for i := range reqs {
		out.Requests = append(out.Requests, friendRequestFrom(&reqs[i]))
	}
	respond(w, http.StatusOK, out)
}

type handleRequestBody struct {
	Accept bool `json:"accept"`
}

func (a *API) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestID")
	if err != nil {
		respondError(w, err)
		return
	}
	var body handleRequestBody
	if err := decode(w, r, &body); err != nil {
		respondError(w, err)
		return
	}
	fr, err := a.relations.HandleRequest(r.Context(), identity(r).UserID, id, body.Accept)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, friendRequestFrom(fr))
}
