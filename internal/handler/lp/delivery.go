package lp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/registry"
	lpmarshaller "github.com/syntalk/im-server/internal/handler/marshaller/lp"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/service"
)

const (
	// pollTimeout is the hold time before an empty poll gives up.
	pollTimeout = 30 * time.Second

	// drainLimit caps how many buffered events ride in one batch after the
	// first; it keeps a backlogged mailbox from producing huge responses.
	drainLimit = 15
)

// LPHandler serves clients that cannot hold a WebSocket: each poll opens a
// transient connector, waits for traffic and tears the connector down when
// the request ends.
type LPHandler struct {
	deliverer service.Deliverer
}

func NewLPHandler(deliverer service.Deliverer) *LPHandler {
	return &LPHandler{
		deliverer: deliverer,
	}
}

// Poll holds the request until an event arrives or the timeout passes.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	identity, ok := service.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, imerr.New(imerr.SecurityUnauthorized, "authentication required"))
		return
	}

	// The connector lives only for the duration of this request. Subscribing
	// marks the user online; a poller therefore counts as a live session,
	// same as a socket.
	conn, err := h.deliverer.Subscribe(r.Context(), identity.UserID, registry.ConnectMetadata{
		Platform:  "longpoll",
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer h.deliverer.Unsubscribe(identity.UserID, conn.GetID())

	var events []event.Eventer

	select {
	case <-r.Context().Done():
		return

	case <-time.After(pollTimeout):
		w.WriteHeader(http.StatusNoContent)
		return

	case ev, ok := <-conn.Recv():
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		events = append(events, ev)

		// Batch whatever else is already buffered so the client does not
		// have to come back once per event.
	drainLoop:
		for i := 0; i < drainLimit; i++ {
			select {
			case next, ok := <-conn.Recv():
				if !ok {
					break drainLoop
				}
				events = append(events, next)
			default:
				break drainLoop
			}
		}
	}

	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		writeError(w, imerr.Wrap(imerr.Internal, "encode batch", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(imerr.HTTPStatus(imerr.CodeOf(err)))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    int(imerr.CodeOf(err)),
		"message": imerr.MessageOf(err),
	})
}
