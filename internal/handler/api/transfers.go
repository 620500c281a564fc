package api

import (
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
)

type transferView struct {
	ID        int64  `json:"id"`
	From      int64  `json:"from_user_id"`
	To        int64  `json:"to_user_id"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	State     string `json:"state"`
	CreatedAt int64  `json:"created_at"`
}

func transferFrom(t *model.FileTransferRequest) transferView {
	return transferView{
		ID:        t.ID,
		From:      t.From,
		To:        t.To,
		FileName:  t.FileName,
		FileSize:  t.FileSize,
		State:     t.State.String(),
		CreatedAt: t.CreatedAt.Unix(),
	}
}

type transferRequestBody struct {
	ToUserID int64  `json:"to_user_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

func (a *API) requestTransfer(w http.ResponseWriter, r *http.Request) {
	var body transferRequestBody
	if err := decode(w, r, &body); err != nil {
		respondError(w, err)
		return
	}
	req, err := a.transfers.Request(r.Context(), identity(r).UserID, body.ToUserID, body.FileName, body.FileSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, transferFrom(req))
}

func (a *API) respondTransfer(w http.ResponseWriter, r *http.Request) {
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
	req, err := a.transfers.Respond(r.Context(), identity(r).UserID, id, body.Accept)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, transferFrom(req))
}
