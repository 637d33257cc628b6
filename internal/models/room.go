package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a property listing. Listing management (CRUD, search, images)
// lives outside this service; only the fields needed to authorize chat and
// reveal contact details after unlock are stored here.
type Room struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	Location  string    `json:"location,omitempty"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`

	// Contact fields are private until a client unlocks the room.
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// Contact is the unlocked contact view of a room.
type Contact struct {
	RoomID   uuid.UUID `json:"room_id"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	Location string    `json:"location,omitempty"`
}

// Contact returns the private contact fields for an unlocked room.
func (r *Room) Contact() Contact {
	return Contact{RoomID: r.ID, Phone: r.ContactPhone, Email: r.ContactEmail, Location: r.Location}
}
