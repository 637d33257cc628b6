// Package chat owns conversation lifecycle and message flow: lazy
// conversation creation on first send, append with database-assigned
// ordering, backwards history paging, and receiver-only read receipts.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/metrics"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store"
)

// maxInboxSize caps how many conversations one inbox fetch returns.
const maxInboxSize = 200

var (
	// ErrEmptyContent rejects messages with no text and no attachment.
	ErrEmptyContent = errors.New("message has no content")

	// ErrNotParticipant signals a caller that is neither side of the
	// conversation.
	ErrNotParticipant = errors.New("not a conversation participant")

	// ErrNoConversation signals an owner reply to a room nobody has
	// written about yet.
	ErrNoConversation = errors.New("no conversation exists for this room")
)

// Service coordinates conversations and messages on top of the data store.
// The redis store is optional; when present it caches unread counts.
type Service struct {
	db     store.DataStore
	redis  *store.RedisStore
	logger zerolog.Logger
}

func NewService(db store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Service {
	return &Service{db: db, redis: redis, logger: logger}
}

// GetOrCreate returns the unique conversation for the (client, owner, room)
// triple, creating it when absent. Concurrent first sends converge on one
// row via the store's conflict handling.
func (s *Service) GetOrCreate(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.db.GetConversationByTriple(ctx, clientID, ownerID, roomID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}
	return s.db.CreateConversation(ctx, clientID, ownerID, roomID)
}

// Append stores a message in the conversation. The sender must be a
// participant; the receiver is derived, never caller-supplied. Content is
// trimmed and an all-whitespace body without attachment is rejected.
func (s *Service) Append(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, content, attachment string) (*models.Message, error) {
	receiverID, ok := conv.OtherParty(senderID)
	if !ok {
		return nil, ErrNotParticipant
	}

	content = strings.TrimSpace(content)
	if content == "" && attachment == "" {
		return nil, ErrEmptyContent
	}

	msg, err := s.db.InsertMessage(ctx, &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		RoomID:         conv.RoomID,
		Content:        content,
		Attachment:     attachment,
	})
	if err != nil {
		return nil, err
	}

	// Activity ordering for the conversation list; losing it does not
	// lose the message.
	if err := s.db.TouchConversation(ctx, conv.ID); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("failed to touch conversation")
	}
	s.invalidateUnread(ctx, receiverID)

	return msg, nil
}

// History returns a page of messages oldest-first within the page. A zero
// before serves the live tail; a non-zero before pages backwards, each page
// holding the newest messages under the cursor.
func (s *Service) History(ctx context.Context, requesterID, conversationID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNoConversation
	}
	if _, ok := conv.OtherParty(requesterID); !ok {
		return nil, ErrNotParticipant
	}
	return s.db.ListMessages(ctx, conversationID, limit, before)
}

// Conversation returns the conversation if the requester participates in it.
func (s *Service) Conversation(ctx context.Context, requesterID, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNoConversation
	}
	if _, ok := conv.OtherParty(requesterID); !ok {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListConversations returns the requester's conversations, most recently
// active first, with per-conversation unread counts attached.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, map[uuid.UUID]int, error) {
	convs, err := s.db.ListConversationsForUser(ctx, userID, maxInboxSize, 0)
	if err != nil {
		return nil, nil, err
	}
	unread, err := s.db.CountUnreadByConversation(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return convs, unread, nil
}

// MarkRead flips read_status for the given messages. Only the receiver's
// own unread messages are affected; IDs addressed to anyone else are
// silently skipped.
func (s *Service) MarkRead(ctx context.Context, receiverID uuid.UUID, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.db.MarkMessagesRead(ctx, ids, receiverID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.MessagesRead.Add(float64(n))
		s.invalidateUnread(ctx, receiverID)
	}
	return n, nil
}

// UnreadCount returns the user's total unread messages, served from the
// cache when fresh.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if s.redis != nil {
		if n, err := s.redis.GetCachedUnread(ctx, userID.String()); err == nil && n >= 0 {
			return n, nil
		}
	}
	n, err := s.db.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.redis != nil {
		if err := s.redis.SetCachedUnread(ctx, userID.String(), n); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache unread count")
		}
	}
	return n, nil
}

// ResolveClientForRoom finds the client side of the most recently active
// conversation about the room. Owners replying address a room, not a
// conversation, so the pair has to be recovered here.
func (s *Service) ResolveClientForRoom(ctx context.Context, ownerID, roomID uuid.UUID) (uuid.UUID, error) {
	conv, err := s.db.LatestConversationForRoom(ctx, roomID, ownerID)
	if err != nil {
		return uuid.Nil, err
	}
	if conv == nil {
		return uuid.Nil, ErrNoConversation
	}
	return conv.ClientID, nil
}

func (s *Service) invalidateUnread(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.InvalidateUnread(ctx, userID.String()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate unread cache")
	}
}
