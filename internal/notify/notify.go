// Package notify delivers best-effort events to an identity's live
// sessions and outbound side channels. The durable state (grant, message)
// is never here; a missed notification is re-pollable, not lost data.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store"
	"github.com/samirchapagain/FindMyRoom/internal/ws"
)

// Relay pushes events to personal notification groups. Zero connected
// sessions means the event is dropped.
type Relay struct {
	hub    *ws.Hub
	db     store.DataStore
	mailer Mailer
	logger zerolog.Logger
}

func NewRelay(hub *ws.Hub, db store.DataStore, mailer Mailer, logger zerolog.Logger) *Relay {
	return &Relay{hub: hub, db: db, mailer: mailer, logger: logger}
}

// PaymentSucceeded tells the client's live sessions a room unlocked, and
// kicks off the unlock email. Both legs are fire-and-forget.
func (r *Relay) PaymentSucceeded(clientID, roomID uuid.UUID) {
	event, err := ws.NewStaticEvent("payment-succeeded", struct {
		RoomID uuid.UUID `json:"room_id"`
	}{RoomID: roomID})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to build payment-succeeded event")
	} else {
		r.hub.Broadcast(ws.PersonalGroup(clientID), event)
	}

	go r.sendUnlockEmail(clientID, roomID)
}

// NewMessage pushes a new-message event to the receiver's personal group so
// inbox badges update without a room session open.
func (r *Relay) NewMessage(receiverID uuid.UUID, msg *models.Message, senderName string) {
	event, err := ws.NewStaticEvent("new-message", struct {
		Message    *models.Message `json:"message"`
		SenderName string          `json:"sender_name"`
	}{Message: msg, SenderName: senderName})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to build new-message event")
		return
	}
	r.hub.Broadcast(ws.PersonalGroup(receiverID), event)
}

func (r *Relay) sendUnlockEmail(clientID, roomID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	user, err := r.db.GetUserByID(ctx, clientID)
	if err != nil || user == nil || user.Email == "" {
		return
	}
	room, err := r.db.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		return
	}
	if err := r.mailer.SendUnlockEmail(ctx, user.Email, room.Title); err != nil {
		r.logger.Warn().Err(err).Str("user_id", clientID.String()).Msg("unlock email failed")
	}
}
