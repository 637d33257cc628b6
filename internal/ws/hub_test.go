package ws

import (
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
)

// dialPair opens a WebSocket connection through an httptest server and
// returns both ends: the server side for registering with the hub, the
// remote side for observing what the hub delivered.
func dialPair(t *testing.T) (server, remote *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	remote, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })

	return <-accepted, remote
}

func readJSON(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestHubBroadcastRendersPerRecipient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	senderID, otherID := uuid.New(), uuid.New()
	group := RoomGroup(uuid.New())

	senderConn, senderRemote := dialPair(t)
	otherConn, otherRemote := dialPair(t)

	sender := newClient(hub, senderConn, senderID)
	other := newClient(hub, otherConn, otherID)
	hub.Subscribe(group, sender)
	hub.Subscribe(group, other)
	go sender.writePump()
	go other.writePump()
	t.Cleanup(func() { sender.Close(); other.Close() })

	hub.Broadcast(group, &MessageEvent{
		Message:    &models.Message{ID: "01J", SenderID: senderID, ReceiverID: otherID, Content: "hello"},
		SenderName: "Asha",
	})

	var got struct {
		Type       string          `json:"type"`
		Message    *models.Message `json:"message"`
		SenderName string          `json:"sender_name"`
		IsMine     bool            `json:"is_mine"`
	}

	readJSON(t, senderRemote, &got)
	assert.Equal(t, "new-message", got.Type)
	assert.Equal(t, "hello", got.Message.Content)
	assert.Equal(t, "Asha", got.SenderName)
	assert.True(t, got.IsMine, "sender sees its own message as mine")

	readJSON(t, otherRemote, &got)
	assert.False(t, got.IsMine, "the other side does not")
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	group := RoomGroup(uuid.New())

	conn, remote := dialPair(t)
	c := newClient(hub, conn, uuid.New())
	hub.Subscribe(group, c)
	go c.writePump()
	t.Cleanup(c.Close)

	assert.Equal(t, 1, hub.Subscribers(group))
	hub.Unsubscribe(group, c)
	assert.Equal(t, 0, hub.Subscribers(group))

	env, err := NewStaticEvent("ping", nil)
	require.NoError(t, err)
	hub.Broadcast(group, env)

	require.NoError(t, remote.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = remote.ReadMessage()
	assert.Error(t, err, "unsubscribed client must not receive the event")
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	group := RoomGroup(uuid.New())

	conn, _ := dialPair(t)
	// No writePump: the send buffer fills and the client stalls.
	c := newClient(hub, conn, uuid.New())
	hub.Subscribe(group, c)

	env, err := NewStaticEvent("ping", nil)
	require.NoError(t, err)
	for i := 0; i < sendBuffer+1; i++ {
		hub.Broadcast(group, env)
	}

	assert.Eventually(t, func() bool {
		return hub.Subscribers(group) == 0
	}, 2*time.Second, 10*time.Millisecond, "stalled subscriber must be dropped")
}

func TestClientCloseIsIdempotent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn, _ := dialPair(t)
	c := newClient(hub, conn, uuid.New())
	hub.Subscribe(RoomGroup(uuid.New()), c)

	c.Close()
	assert.NotPanics(t, c.Close)

	// Delivery to a closed client is silently dropped.
	assert.True(t, c.enqueue([]byte("late")))
}

func TestHubCloseDuringBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	group := RoomGroup(uuid.New())

	conn, _ := dialPair(t)
	c := newClient(hub, conn, uuid.New())
	hub.Subscribe(group, c)

	env, err := NewStaticEvent("ping", nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Broadcast(group, env)
		}
	}()
	c.Close()
	<-done

	assert.Equal(t, 0, hub.Subscribers(group))
}
