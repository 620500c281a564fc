package api

import (
	"encoding/json"
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

type messageView struct {
	ID       int64           `json:"id"`
	From     int64           `json:"from_user_id"`
	ToUserID int64           `json:"to_user_id,omitempty"`
	GroupID  int64           `json:"group_id,omitempty"`
	Content  string          `json:"content"`
	Kind     string          `json:"message_type"`
	SentAt   int64           `json:"send_time"`
	Read     bool            `json:"is_read"`
	Extra    json.RawMessage `json:"extra,omitempty"`
}

func messageFrom(m *model.Message) messageView {
	v := messageView{
		ID:      m.ID,
		From:    m.From,
		Content: string(m.Payload),
		Kind:    m.Kind.String(),
		SentAt:  m.SentAt,
		Read:    m.Read,
		Extra:   m.Extra,
	}
	if m.To.IsGroup() {
		v.GroupID = m.To.ID
	} else {
		v.ToUserID = m.To.ID
	}
	return v
}

type sendMessageRequest struct {
	ToUserID int64           `json:"to_user_id,omitempty"`
	GroupID  int64           `json:"group_id,omitempty"`
	Content  string          `json:"content"`
	Kind     string          `json:"message_type,omitempty"`
	Extra    json.RawMessage `json:"extra,omitempty"`
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if (req.ToUserID > 0) == (req.GroupID > 0) {
		respondError(w, imerr.New(imerr.InvalidParams, "exactly one of to_user_id or group_id is required"))
		return
	}
	kind := model.KindFromString(req.Kind)
	if !kind.Valid() {
		respondError(w, imerr.Newf(imerr.MessageKindInvalid, "unknown message type %q", req.Kind))
		return
	}

	to := model.UserRecipient(req.ToUserID)
	if req.GroupID > 0 {
		to = model.GroupRecipient(req.GroupID)
	}
	sent, err := a.deliverer.Submit(r.Context(), &model.Message{
		From:    identity(r).UserID,
		To:      to,
		Kind:    kind,
		Payload: []byte(req.Content),
		Extra:   req.Extra,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, messageFrom(sent))
}

type historyResponse struct {
	Messages []messageView `json:"messages"`
}

func (a *API) messageHistory(w http.ResponseWriter, r *http.Request) {
	peerID := int64(queryInt(r, "peer_id", 0))
	if peerID <= 0 {
		respondError(w, imerr.New(imerr.InvalidParams, "peer_id is required"))
		return
	}
	msgs, err := a.deliverer.History(r.Context(), identity(r).UserID, peerID, queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	out := historyResponse{Messages: make([]messageView, 0, len(msgs))}
	for i := range msgs {
		out.Messages = append(out.Messages, messageFrom(&msgs[i]))
	}
	respond(w, http.StatusOK, out)
}

type offlineResponse struct {
	Messages []model.Envelope `json:"messages"`
	Count    int              `json:"count"`
}

func (a *API) offlineMessages(w http.ResponseWriter, r *http.Request) {
	envs, err := a.deliverer.OfflineMessages(r.Context(), identity(r).UserID, queryInt(r, "max", 0), queryBool(r, "clear"))
	if err != nil {
		respondError(w, err)
		return
	}
	if envs == nil {
		envs = []model.Envelope{}
	}
	respond(w, http.StatusOK, offlineResponse{Messages: envs, Count: len(envs)})
}

func (a *API) markMessageRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := a.deliverer.MarkRead(r.Context(), identity(r).UserID, id); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
