package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/domain/registry"
	wsmarshaller "github.com/syntalk/im-server/internal/handler/marshaller/ws"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/service"
)

const (
	// pongWait bounds how long an authenticated socket may stay silent;
	// pingPeriod keeps protocol pings comfortably inside that window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// readLimitSlack covers frame fields around the message payload.
	readLimitSlack = 4096

	outBuffer = 32
)

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	auther    service.Auther
	presence  *service.PresenceService
	notifier  *service.Notifier

	authDeadline time.Duration
	writeWait    time.Duration
	readLimit    int64

	upgrader websocket.Upgrader
}

func NewWSHandler(
	cfg *config.Config,
	logger *slog.Logger,
	deliverer service.Deliverer,
	auther service.Auther,
	presence *service.PresenceService,
	notifier *service.Notifier,
) *WSHandler {
	return &WSHandler{
		logger:       logger.With("component", "ws"),
		deliverer:    deliverer,
		auther:       auther,
		presence:     presence,
		notifier:     notifier,
		authDeadline: cfg.Session.AuthDeadline,
		writeWait:    cfg.Session.WriteTimeout,
		readLimit:    int64(cfg.Delivery.MaxPayloadBytes + readLimitSlack),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

// clientFrame is the union of every inbound frame. Type picks the branch;
// the other fields are read per type.
type clientFrame struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	ToUserID  int64           `json:"to_user_id,omitempty"`
	GroupID   int64           `json:"group_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Kind      string          `json:"message_type,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	SenderID  int64           `json:"sender_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Extra     json.RawMessage `json:"extra,omitempty"`
}

// session is the per-connection state. The read pump (the ServeHTTP
// goroutine) parses frames and calls services; the write pump is the sole
// socket writer, draining response frames and, once attached, the
// connector mailbox.
type session struct {
	h   *WSHandler
	ws  *websocket.Conn
	sid uuid.UUID
	req *http.Request

	identity service.Identity
	conn     registry.Connector // nil until authenticated

	out    chan []byte
	attach chan registry.Connector
	done   chan struct{}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	s := &session{
		h:      h,
		ws:     ws,
		sid:    uuid.New(),
		req:    r,
		out:    make(chan []byte, outBuffer),
		attach: make(chan registry.Connector, 1),
		done:   make(chan struct{}),
	}

	go s.writePump()

	s.push(&wsmarshaller.Welcome{
		Type:      wsmarshaller.TypeWelcome,
		SessionID: s.sid.String(),
		Timestamp: now(),
	})

	s.readPump()

	if s.conn != nil {
		h.deliverer.Unsubscribe(s.identity.UserID, s.conn.GetID())
	}
}

func now() int64 { return time.Now().Unix() }

// push serializes a response frame and hands it to the write pump. A dead
// write pump unblocks the caller through done.
func (s *session) push(frame any) {
	raw, err := json.Marshal(frame)
	if err != nil {
		s.h.logger.Error("ws frame encode failed", "error", err)
		return
	}
	select {
	case s.out <- raw:
	case <-s.done:
	}
}

func (s *session) pushError(err error) {
	s.push(&wsmarshaller.ErrorFrame{
		Type:      wsmarshaller.TypeError,
		Code:      int(imerr.CodeOf(err)),
		Message:   imerr.MessageOf(err),
		Timestamp: now(),
	})
}

// readPump owns the inbound side. Before authentication the read deadline
// is the auth deadline: a client that does not present a valid token in
// time is cut off.
func (s *session) readPump() {
	s.ws.SetReadLimit(s.h.readLimit)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.h.authDeadline))
	s.ws.SetPongHandler(func(string) error {
		if s.conn != nil {
			s.conn.Touch()
			return s.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
		return nil
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.h.logger.Debug("ws read ended", "session_id", s.sid, "error", err)
			}
			return
		}
		if s.conn != nil {
			s.conn.Touch()
			_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
		s.handleFrame(raw)
	}
}

// writePump owns the outbound side: response frames, mailbox events once a
// connector is attached, and protocol pings. When the registry closes the
// mailbox (eviction, shutdown) the socket goes down with it.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.done)
		_ = s.ws.Close()
	}()

	var recv <-chan event.Eventer
	for {
		select {
		case conn := <-s.attach:
			recv = conn.Recv()

		case raw := <-s.out:
			if !s.write(websocket.TextMessage, raw) {
				return
			}

		case ev, ok := <-recv:
			if !ok {
				_ = s.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(s.h.writeWait))
				return
			}
			raw, err := wsmarshaller.MarshallDeliveryEvent(ev)
			if err != nil {
				s.h.logger.Error("ws event marshal failed", "error", err, "kind", ev.GetKind().String())
				continue
			}
			if !s.write(websocket.TextMessage, raw) {
				return
			}

		case <-ticker.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *session) write(messageType int, raw []byte) bool {
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.h.writeWait))
	if err := s.ws.WriteMessage(messageType, raw); err != nil {
		s.h.logger.Debug("ws write failed", "session_id", s.sid, "error", err)
		return false
	}
	return true
}

func (s *session) handleFrame(raw []byte) {
	var f clientFrame
	if err := json.Unmarshal(raw, &f); err != nil || f.Type == "" {
		s.pushError(imerr.New(imerr.WSFrameInvalid, "malformed frame"))
		return
	}

	// [AUTH_GATE] Pre-auth sessions may only authenticate or heartbeat.
	if s.conn == nil && f.Type != "auth" && f.Type != "ping" {
		s.h.logger.Warn("frame before auth", "session_id", s.sid, "type", f.Type)
		s.pushError(imerr.New(imerr.SecurityUnauthorized, "authentication required"))
		return
	}

	switch f.Type {
	case "auth":
		s.handleAuth(&f)
	case "ping":
		s.push(&wsmarshaller.Basic{Type: wsmarshaller.TypePong, Timestamp: now()})
	case "chat_message":
		s.handleChatMessage(&f)
	case "group_message":
		s.handleGroupMessage(&f)
	case "status_update":
		s.handleStatusUpdate(&f)
	case "read_receipt":
		s.handleReadReceipt(&f)
	case "broadcast":
		s.handleBroadcast(&f)
	default:
		s.h.logger.Warn("unknown frame type", "session_id", s.sid, "type", f.Type)
		s.pushError(imerr.Newf(imerr.WSFrameInvalid, "unknown frame type %q", f.Type))
	}
}

func (s *session) handleAuth(f *clientFrame) {
	if s.conn != nil {
		s.pushError(imerr.New(imerr.WSFrameInvalid, "already authenticated"))
		return
	}

	identity, err := s.h.auther.Verify(f.Token)
	if err != nil {
		s.h.logger.Warn("ws auth failed", "session_id", s.sid, "error", err)
		s.push(&wsmarshaller.AuthResponse{
			Type:      wsmarshaller.TypeAuthResponse,
			Success:   false,
			Message:   "invalid token",
			Timestamp: now(),
		})
		return
	}

	conn, err := s.h.deliverer.Subscribe(s.req.Context(), identity.UserID, registry.ConnectMetadata{
		Platform:  "websocket",
		Version:   s.req.Header.Get("X-Client-Version"),
		RemoteIP:  s.req.RemoteAddr,
		UserAgent: s.req.UserAgent(),
	})
	if err != nil {
		s.pushError(err)
		return
	}

	s.identity = identity
	s.conn = conn
	s.attach <- conn
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))

	s.push(&wsmarshaller.AuthResponse{
		Type:      wsmarshaller.TypeAuthResponse,
		Success:   true,
		UserID:    identity.UserID,
		Timestamp: now(),
	})
	s.h.logger.Info("ws authenticated",
		"session_id", s.sid,
		"user_id", identity.UserID,
		"conn_id", conn.GetID(),
	)
}

func (s *session) handleChatMessage(f *clientFrame) {
	if f.ToUserID <= 0 {
		s.pushError(imerr.New(imerr.InvalidParams, "invalid target user id"))
		return
	}
	kind := model.KindFromString(f.Kind)
	if !kind.Valid() {
		s.pushError(imerr.Newf(imerr.MessageKindInvalid, "unsupported message type %q", f.Kind))
		return
	}

	sent, err := s.h.deliverer.Submit(s.req.Context(), &model.Message{
		From:    s.identity.UserID,
		To:      model.UserRecipient(f.ToUserID),
		Kind:    kind,
		Payload: []byte(f.Content),
		Extra:   f.Extra,
	})
	if err != nil {
		s.pushError(err)
		return
	}

	s.push(&wsmarshaller.SendAck{
		Type:      wsmarshaller.TypeMessageAck,
		Success:   true,
		MessageID: sent.ID,
		ClientID:  f.MessageID,
		Timestamp: now(),
	})
}

func (s *session) handleGroupMessage(f *clientFrame) {
	if f.GroupID <= 0 {
		s.pushError(imerr.New(imerr.InvalidParams, "invalid group id"))
		return
	}
	kind := model.KindFromString(f.Kind)
	if !kind.Valid() {
		s.pushError(imerr.Newf(imerr.MessageKindInvalid, "unsupported message type %q", f.Kind))
		return
	}

	sent, err := s.h.deliverer.Submit(s.req.Context(), &model.Message{
		From:    s.identity.UserID,
		To:      model.GroupRecipient(f.GroupID),
		Kind:    kind,
		Payload: []byte(f.Content),
		Extra:   f.Extra,
	})
	if err != nil {
		s.pushError(err)
		return
	}

	s.push(&wsmarshaller.SendAck{
		Type:      wsmarshaller.TypeGroupMessageAck,
		Success:   true,
		MessageID: sent.ID,
		GroupID:   f.GroupID,
		ClientID:  f.MessageID,
		Timestamp: now(),
	})
}

func (s *session) handleStatusUpdate(f *clientFrame) {
	if err := s.h.presence.UpdateStatus(s.req.Context(), s.identity.UserID, model.Status(f.Status)); err != nil {
		s.pushError(err)
		return
	}
	s.push(&wsmarshaller.StatusAck{
		Type:      wsmarshaller.TypeStatusAck,
		Success:   true,
		Status:    f.Status,
		Timestamp: now(),
	})
}

// handleReadReceipt flips the read flag; the read notification towards the
// original sender travels through the event bus. Failures come back on the
// ack rather than the error channel so the client can tie them back to the
// message id.
func (s *session) handleReadReceipt(f *clientFrame) {
	if f.MessageID <= 0 {
		s.pushError(imerr.New(imerr.InvalidParams, "invalid message id"))
		return
	}
	ok := true
	if err := s.h.deliverer.MarkRead(s.req.Context(), s.identity.UserID, f.MessageID); err != nil {
		s.h.logger.Warn("read receipt rejected",
			"session_id", s.sid,
			"message_id", f.MessageID,
			"error", err,
		)
		ok = false
	}
	s.push(&wsmarshaller.ReadReceiptAck{
		Type:      wsmarshaller.TypeReadReceiptAck,
		Success:   ok,
		MessageID: f.MessageID,
		Timestamp: now(),
	})
}

func (s *session) handleBroadcast(f *clientFrame) {
	if !s.identity.Admin {
		s.pushError(imerr.New(imerr.PermissionDenied, "broadcast requires admin"))
		return
	}
	if err := s.h.notifier.Broadcast(s.req.Context(), s.identity.UserID, "", f.Content); err != nil {
		s.pushError(err)
		return
	}
	s.push(&wsmarshaller.BroadcastAck{
		Type:      wsmarshaller.TypeBroadcastAck,
		Success:   true,
		Timestamp: now(),
	})
}
