// Package crypto holds small randomness helpers shared across services.
package crypto

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7. Transaction references use
// these so grant rows sort by creation time in provider dashboards and
// logs.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
