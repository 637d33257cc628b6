package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one immutable chat message inside a conversation. Only the
// read flag ever changes after creation. IDs are ULIDs so lexical ID order
// matches creation order and breaks timestamp ties.
type Message struct {
	ID             string    `json:"id"` // ULID
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	ReceiverID     uuid.UUID `json:"receiver_id"`
	RoomID         uuid.UUID `json:"room_id"`
	Content        string    `json:"content"`
	Attachment     string    `json:"attachment,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"timestamp"`
}
