package lpmarshaller

import (
	"encoding/json"

	"github.com/syntalk/im-server/internal/domain/event"
	wsmarshaller "github.com/syntalk/im-server/internal/handler/marshaller/ws"
)

// Response is the long-poll batch envelope. Every element is a complete
// protocol frame, byte-identical to what the same event looks like on the
// WebSocket, so clients parse one frame format regardless of transport.
type Response struct {
	Events []json.RawMessage `json:"events"`
}

// MarshallEvents renders a drained mailbox batch. Encoding rides the
// per-event cache: an event already sent over a WebSocket session costs
// nothing to batch here.
func MarshallEvents(events []event.Eventer) ([]byte, error) {
	res := Response{
		Events: make([]json.RawMessage, 0, len(events)),
	}

	for _, ev := range events {
		raw, err := wsmarshaller.MarshallDeliveryEvent(ev)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, raw)
	}

	return json.Marshal(res)
}
