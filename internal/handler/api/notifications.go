package api

import (
	"encoding/json"
	"net/http"

	"github.com/syntalk/im-server/internal/domain/model"
)

type notificationView struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"type"`
	Content   string          `json:"content"`
	Extra     json.RawMessage `json:"extra,omitempty"`
	Read      bool            `json:"is_read"`
	CreatedAt int64           `json:"created_at"`
}

func notificationFrom(n *model.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Kind:      n.Kind,
		Content:   n.Content,
		Extra:     n.Extra,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Unix(),
	}
}

type notificationsResponse struct {
	Notifications []notificationView `json:"notifications"`
}

func (a *API) notifications(w http.ResponseWriter, r *http.Request) {
	rows, err := a.notifier.Unread(r.Context(), identity(r).UserID, queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	out := notificationsResponse{Notifications: make([]notificationView, 0, len(rows))}
	for i := range rows {
		out.Notifications = append(out.Notifications, notificationFrom(&rows[i]))
	}
	respond(w, http.StatusOK, out)
}

type markReadRequest struct {
	IDs []int64 `json:"ids"`
}

func (a *API) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := a.notifier.MarkRead(r.Context(), identity(r).UserID, req.IDs); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
