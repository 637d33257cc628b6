package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the unique message thread between one client and one
// owner about one room. Created lazily on the first message, not at unlock
// time. UpdatedAt moves forward on every appended message and drives inbox
// recency ordering.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	RoomID    uuid.UUID `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OtherParty returns the conversation participant that is not the given
// identity, and whether the identity participates at all.
func (c *Conversation) OtherParty(id uuid.UUID) (uuid.UUID, bool) {
	switch id {
	case c.ClientID:
		return c.OwnerID, true
	case c.OwnerID:
		return c.ClientID, true
	}
	return uuid.Nil, false
}
