package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/notify"
	"github.com/samirchapagain/FindMyRoom/internal/store/storetest"
	"github.com/samirchapagain/FindMyRoom/internal/ws"
)

type sentMail struct {
	to    string
	title string
}

type chanMailer struct {
	sent chan sentMail
}

func (m *chanMailer) SendUnlockEmail(_ context.Context, to, roomTitle string) error {
	m.sent <- sentMail{to: to, title: roomTitle}
	return nil
}

type relayFixture struct {
	relay  *notify.Relay
	mailer *chanMailer

	clientID uuid.UUID
	roomID   uuid.UUID
	remote   *websocket.Conn
}

// newRelayFixture opens a live notification session for the client so the
// relay's broadcasts have somewhere to land.
func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	db := storetest.New()
	f := &relayFixture{
		mailer:   &chanMailer{sent: make(chan sentMail, 1)},
		clientID: uuid.New(),
		roomID:   uuid.New(),
	}
	db.AddUser(models.User{ID: f.clientID, Name: "Asha", Email: "asha@example.com", IsClient: true})
	db.AddRoom(models.Room{ID: f.roomID, OwnerID: uuid.New(), Title: "Sunny room in Patan"})

	logger := zerolog.Nop()
	hub := ws.NewHub(logger)
	sessions := ws.NewSessionServer(hub, nil, nil, db, nil, logger)
	f.relay = notify.NewRelay(hub, db, f.mailer, logger)

	identity := models.Identity{ID: f.clientID, Name: "Asha", IsClient: true}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions.ServeNotifications(w, r, &identity)
	}))
	t.Cleanup(srv.Close)

	remote, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })
	f.remote = remote

	// The subscription races the first broadcast; wait for it.
	require.Eventually(t, func() bool {
		return hub.Subscribers(ws.PersonalGroup(f.clientID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	return f
}

func (f *relayFixture) readEvent(t *testing.T) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, f.remote.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := f.remote.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &event))
	return event.Type, event.Payload
}

func TestRelayPaymentSucceeded(t *testing.T) {
	f := newRelayFixture(t)

	f.relay.PaymentSucceeded(f.clientID, f.roomID)

	eventType, payload := f.readEvent(t)
	assert.Equal(t, "payment-succeeded", eventType)
	var body struct {
		RoomID uuid.UUID `json:"room_id"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, f.roomID, body.RoomID)

	select {
	case mail := <-f.mailer.sent:
		assert.Equal(t, "asha@example.com", mail.to)
		assert.Equal(t, "Sunny room in Patan", mail.title)
	case <-time.After(2 * time.Second):
		t.Fatal("unlock email was never sent")
	}
}

func TestRelayNewMessage(t *testing.T) {
	f := newRelayFixture(t)

	msg := &models.Message{
		ID:         "01J",
		SenderID:   uuid.New(),
		ReceiverID: f.clientID,
		RoomID:     f.roomID,
		Content:    "is the room still available?",
	}
	f.relay.NewMessage(f.clientID, msg, "Bikram")

	eventType, payload := f.readEvent(t)
	assert.Equal(t, "new-message", eventType)
	var body struct {
		Message    *models.Message `json:"message"`
		SenderName string          `json:"sender_name"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, "Bikram", body.SenderName)
	assert.Equal(t, msg.Content, body.Message.Content)
}

func TestRelayDropsEventWithNoSessions(t *testing.T) {
	db := storetest.New()
	hub := ws.NewHub(zerolog.Nop())
	relay := notify.NewRelay(hub, db, notify.NewLogMailer(zerolog.Nop()), zerolog.Nop())

	// Nobody is connected; nothing blocks and nothing panics.
	assert.NotPanics(t, func() {
		relay.PaymentSucceeded(uuid.New(), uuid.New())
		relay.NewMessage(uuid.New(), &models.Message{ID: "01J"}, "Asha")
	})
}
