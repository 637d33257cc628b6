package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/chat"
	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/metrics"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser origin policy is enforced by the CORS layer in front.
		return true
	},
}

// MessageNotifier pushes a new-message event to the receiver's personal
// group. Implemented by the notification relay.
type MessageNotifier interface {
	NewMessage(receiverID uuid.UUID, msg *models.Message, senderName string)
}

// SessionServer admits WebSocket sessions. Room sessions pass the unlock
// authorization check before they are subscribed; personal sessions carry
// notification events only and hold no business logic.
type SessionServer struct {
	hub      *Hub
	chat     *chat.Service
	ledger   *ledger.Ledger
	db       store.DataStore
	notifier MessageNotifier
	logger   zerolog.Logger
}

func NewSessionServer(hub *Hub, chatSvc *chat.Service, l *ledger.Ledger, db store.DataStore, notifier MessageNotifier, logger zerolog.Logger) *SessionServer {
	return &SessionServer{hub: hub, chat: chatSvc, ledger: l, db: db, notifier: notifier, logger: logger}
}

// inboundFrame is what a room session accepts from the client.
type inboundFrame struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Attachment string   `json:"attachment,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// ServeRoom runs a room chat session. Authorization happens before the
// upgrade: a caller that is neither the room's owner nor an unlocked client
// is rejected and never reaches the broadcast group.
func (s *SessionServer) ServeRoom(w http.ResponseWriter, r *http.Request, identity *models.Identity, roomID uuid.UUID) {
	ctx := r.Context()

	room, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if room == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	authorized, isOwner := false, false
	switch {
	case identity.IsOwner && room.OwnerID == identity.ID:
		authorized, isOwner = true, true
	case identity.IsClient:
		unlocked, err := s.ledger.IsUnlocked(ctx, identity.ID, roomID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		authorized = unlocked
	}
	if !authorized {
		http.Error(w, "room is locked", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(s.hub, conn, identity.ID)
	s.hub.Subscribe(RoomGroup(roomID), c)
	go c.writePump()

	s.logger.Debug().
		Str("user_id", identity.ID.String()).
		Str("room_id", roomID.String()).
		Bool("owner", isOwner).
		Msg("chat session open")

	s.readLoop(c, func(frame inboundFrame) {
		s.handleFrame(c, identity, room, isOwner, frame)
	})
}

// ServeNotifications runs a personal notification session. Inbound frames
// are ignored; the session is a transport for relay-produced events.
func (s *SessionServer) ServeNotifications(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(s.hub, conn, identity.ID)
	s.hub.Subscribe(PersonalGroup(identity.ID), c)
	go c.writePump()

	s.readLoop(c, nil)
}

// readLoop pumps inbound frames until the connection drops. The deferred
// Close unsubscribes the client on every exit path, abnormal ones included.
func (s *SessionServer) readLoop(c *Client, handle func(inboundFrame)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if handle == nil {
			continue
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError(c, "malformed frame")
			continue
		}
		handle(frame)
	}
}

func (s *SessionServer) handleFrame(c *Client, identity *models.Identity, room *models.Room, isOwner bool, frame inboundFrame) {
	// Read loop goroutine, no request context to inherit.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch frame.Type {
	case "", "message":
		s.handleSend(ctx, c, identity, room, isOwner, frame)
	case "mark_read":
		if _, err := s.chat.MarkRead(ctx, identity.ID, frame.MessageIDs); err != nil {
			s.logger.Error().Err(err).Msg("mark read over websocket failed")
			s.sendError(c, "could not mark messages read")
		}
	default:
		s.sendError(c, "unknown frame type")
	}
}

// handleSend persists one message and fans it out to the room group. A
// failure is reported to this sender only and never disturbs the group.
func (s *SessionServer) handleSend(ctx context.Context, c *Client, identity *models.Identity, room *models.Room, isOwner bool, frame inboundFrame) {
	clientID := identity.ID
	if isOwner {
		resolved, err := s.chat.ResolveClientForRoom(ctx, room.OwnerID, room.ID)
		if err != nil {
			if errors.Is(err, chat.ErrNoConversation) {
				s.sendError(c, "nobody has messaged about this room yet")
				return
			}
			s.logger.Error().Err(err).Msg("failed to resolve reply target")
			s.sendError(c, "could not send message")
			return
		}
		clientID = resolved
	}

	conv, err := s.chat.GetOrCreate(ctx, clientID, room.OwnerID, room.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to resolve conversation")
		s.sendError(c, "could not send message")
		return
	}

	msg, err := s.chat.Append(ctx, conv, identity.ID, frame.Content, frame.Attachment)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyContent) {
			s.sendError(c, "message is empty")
			return
		}
		s.logger.Error().Err(err).Msg("failed to store message")
		s.sendError(c, "could not send message")
		return
	}

	metrics.MessagesSent.WithLabelValues("ws").Inc()
	s.hub.Broadcast(RoomGroup(room.ID), &MessageEvent{Message: msg, SenderName: identity.Name})
	if s.notifier != nil {
		s.notifier.NewMessage(msg.ReceiverID, msg, identity.Name)
	}
}

func (s *SessionServer) sendError(c *Client, reason string) {
	payload, err := json.Marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{Type: "error", Error: reason})
	if err != nil {
		return
	}
	c.enqueue(payload)
}
