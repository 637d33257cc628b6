package models

import (
	"time"

	"github.com/google/uuid"
)

// GrantStatus is the lifecycle state of an access grant.
type GrantStatus string

const (
	GrantPending GrantStatus = "pending"
	GrantSuccess GrantStatus = "success"
	GrantFailed  GrantStatus = "failed"
)

// AccessGrant records one unlock attempt/outcome for a (client, room) pair.
// At most one grant exists per pair; a failed grant is retried in place with
// a fresh transaction reference rather than by inserting a second row.
// Success is terminal.
type AccessGrant struct {
	ID             uuid.UUID   `json:"id"`
	ClientID       uuid.UUID   `json:"client_id"`
	OwnerID        uuid.UUID   `json:"owner_id"`
	RoomID         uuid.UUID   `json:"room_id"`
	Amount         float64     `json:"amount"`
	Status         GrantStatus `json:"status"`
	TransactionRef string      `json:"transaction_id"`
	ProviderRef    string      `json:"provider_ref,omitempty"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Unlocked reports whether the grant unlocks its room.
func (g *AccessGrant) Unlocked() bool {
	return g != nil && g.Status == GrantSuccess
}
