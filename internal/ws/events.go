package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/samirchapagain/FindMyRoom/internal/models"
)

// MessageEvent carries a persisted chat message to a room group. is_mine is
// computed per recipient so the sender can reconcile its optimistic copy.
type MessageEvent struct {
	Message    *models.Message
	SenderName string
}

func (e *MessageEvent) Render(recipient uuid.UUID) ([]byte, error) {
	return json.Marshal(struct {
		Type       string          `json:"type"`
		Message    *models.Message `json:"message"`
		SenderName string          `json:"sender_name"`
		IsMine     bool            `json:"is_mine"`
	}{
		Type:       "new-message",
		Message:    e.Message,
		SenderName: e.SenderName,
		IsMine:     e.Message.SenderID == recipient,
	})
}

type staticEnvelope []byte

func (e staticEnvelope) Render(uuid.UUID) ([]byte, error) { return []byte(e), nil }

// NewStaticEvent marshals a recipient-independent event once.
func NewStaticEvent(eventType string, payload any) (Envelope, error) {
	b, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{Type: eventType, Payload: payload})
	if err != nil {
		return nil, err
	}
	return staticEnvelope(b), nil
}
