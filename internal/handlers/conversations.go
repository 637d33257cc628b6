package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/samirchapagain/FindMyRoom/internal/chat"
	"github.com/samirchapagain/FindMyRoom/internal/metrics"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/ws"
)

const defaultHistoryLimit = 50

// ConversationResponse is one inbox entry.
type ConversationResponse struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	OtherPartyID   string    `json:"other_party_id"`
	OtherPartyName string    `json:"other_party_name,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationListResponse represents the inbox response.
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// ListConversations returns the caller's inbox, most recently active
// first, with per-conversation unread counts.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convs, unread, err := h.chat.ListConversations(r.Context(), identity.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	out := make([]ConversationResponse, 0, len(convs))
	names := make(map[uuid.UUID]string)
	for _, conv := range convs {
		otherID, _ := conv.OtherParty(identity.ID)
		name, seen := names[otherID]
		if !seen {
			if user, err := h.pg.GetUserByID(r.Context(), otherID); err == nil && user != nil {
				name = user.Name
			}
			names[otherID] = name
		}
		out = append(out, ConversationResponse{
			ID:             conv.ID.String(),
			RoomID:         conv.RoomID.String(),
			OtherPartyID:   otherID.String(),
			OtherPartyName: name,
			UnreadCount:    unread[conv.ID],
			UpdatedAt:      conv.UpdatedAt,
		})
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: out})
}

// MessageResponse is one message in a history page.
type MessageResponse struct {
	models.Message
	IsMine bool `json:"is_mine"`
}

// MessageListResponse represents a history page.
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
	HasMore  bool              `json:"has_more"`
}

// GetMessages returns a page of conversation history, oldest first within
// the page. Without a cursor the page is the live tail; the before
// parameter (RFC 3339) pages backwards through older messages.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			h.Error(w, http.StatusBadRequest, "limit must be 1-200")
			return
		}
		limit = parsed
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
	}

	// Fetch one extra row to learn whether another page exists. Pages hold
	// the newest rows, so the extra row is the oldest one and gets dropped.
	msgs, err := h.chat.History(r.Context(), identity.ID, convID, limit+1, before)
	if err != nil {
		h.chatError(w, err)
		return
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[1:]
	}

	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageResponse{Message: m, IsMine: m.SenderID == identity.ID}
	}

	h.JSON(w, http.StatusOK, MessageListResponse{Messages: out, HasMore: hasMore})
}

// SendMessageRequest represents the send message request body. Owners
// replying may address a specific client; without one the most recently
// active conversation for the room is used.
type SendMessageRequest struct {
	RoomID     string `json:"room_id"`
	ClientID   string `json:"client_id,omitempty"`
	Content    string `json:"content"`
	Attachment string `json:"attachment,omitempty"`
}

// SendMessage stores a message and fans it out to the room's live sessions.
// Clients must hold a success grant for the room; owners must own it.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	room, err := h.pg.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	var clientID uuid.UUID
	switch {
	case identity.IsOwner && room.OwnerID == identity.ID:
		if req.ClientID != "" {
			clientID, err = uuid.Parse(req.ClientID)
			if err != nil {
				h.Error(w, http.StatusBadRequest, "invalid client ID format")
				return
			}
			// The payment gate holds in both directions: owners can only
			// open chat with clients who unlocked the room.
			unlocked, err := h.ledger.IsUnlocked(r.Context(), clientID, roomID)
			if err != nil {
				h.Error(w, http.StatusInternalServerError, "database error")
				return
			}
			if !unlocked {
				h.Error(w, http.StatusForbidden, "client has not unlocked this room")
				return
			}
		} else {
			clientID, err = h.chat.ResolveClientForRoom(r.Context(), room.OwnerID, room.ID)
			if err != nil {
				h.chatError(w, err)
				return
			}
		}
	case identity.IsClient:
		unlocked, err := h.ledger.IsUnlocked(r.Context(), identity.ID, roomID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if !unlocked {
			h.Error(w, http.StatusForbidden, "room is locked")
			return
		}
		clientID = identity.ID
	default:
		h.Error(w, http.StatusForbidden, "not a participant for this room")
		return
	}

	conv, err := h.chat.GetOrCreate(r.Context(), clientID, room.OwnerID, room.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to resolve conversation")
		return
	}

	msg, err := h.chat.Append(r.Context(), conv, identity.ID, req.Content, req.Attachment)
	if err != nil {
		h.chatError(w, err)
		return
	}

	metrics.MessagesSent.WithLabelValues("http").Inc()
	h.hub.Broadcast(ws.RoomGroup(room.ID), &ws.MessageEvent{Message: msg, SenderName: identity.Name})
	if h.notifier != nil {
		h.notifier.NewMessage(msg.ReceiverID, msg, identity.Name)
	}

	h.JSON(w, http.StatusCreated, MessageResponse{Message: *msg, IsMine: true})
}

// MarkReadRequest represents the mark-read request body.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// MarkRead flips read_status on the caller's received messages. IDs the
// caller does not receive are skipped, not errors.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.MessageIDs) == 0 || len(req.MessageIDs) > 500 {
		h.Error(w, http.StatusBadRequest, "message_ids must contain 1-500 entries")
		return
	}

	updated, err := h.chat.MarkRead(r.Context(), identity.ID, req.MessageIDs)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// UnreadCount returns the caller's total unread messages.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	count, err := h.chat.UnreadCount(r.Context(), identity.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}

	h.JSON(w, http.StatusOK, map[string]int{"unread": count})
}

// chatError maps chat service errors to HTTP responses.
func (h *Handler) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent):
		h.Error(w, http.StatusUnprocessableEntity, "message is empty")
	case errors.Is(err, chat.ErrNotParticipant):
		h.Error(w, http.StatusForbidden, "not a conversation participant")
	case errors.Is(err, chat.ErrNoConversation):
		h.Error(w, http.StatusNotFound, "conversation not found")
	default:
		h.Error(w, http.StatusInternalServerError, "database error")
	}
}
