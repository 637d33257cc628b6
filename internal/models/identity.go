package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated user with capability tags. A user may hold
// the owner capability, the client capability, or both; role checks are
// explicit boolean queries, never inferred from lookup failures.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name,omitempty"`
	IsOwner  bool      `json:"is_owner"`
	IsClient bool      `json:"is_client"`
}

// CanChat reports whether the identity holds any chat-capable role.
func (i Identity) CanChat() bool {
	return i.IsOwner || i.IsClient
}

// User is the stored account record backing an Identity.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsOwner   bool      `json:"is_owner"`
	IsClient  bool      `json:"is_client"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity returns the capability view of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, IsOwner: u.IsOwner, IsClient: u.IsClient}
}
