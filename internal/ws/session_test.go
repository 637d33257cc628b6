package ws

import (
	"context"
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

	"github.com/samirchapagain/FindMyRoom/internal/chat"
	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/payments"
	"github.com/samirchapagain/FindMyRoom/internal/store/storetest"
)

type sessionFixture struct {
	db     *storetest.MemStore
	svc    *chat.Service
	ledger *ledger.Ledger
	srv    *httptest.Server

	owner  models.Identity
	client models.Identity
	roomID uuid.UUID
}

// newSessionFixture wires a SessionServer behind an httptest server. The
// handler impersonates whichever seeded identity the "as" query names, so
// tests exercise the session layer without the HTTP auth middleware.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		db:     storetest.New(),
		roomID: uuid.New(),
	}
	ownerID, clientID := uuid.New(), uuid.New()
	f.db.AddUser(models.User{ID: ownerID, Name: "Bikram", IsOwner: true})
	f.db.AddUser(models.User{ID: clientID, Name: "Asha", IsClient: true})
	f.db.AddRoom(models.Room{ID: f.roomID, OwnerID: ownerID, Title: "Sunny room in Patan"})
	f.owner = models.Identity{ID: ownerID, Name: "Bikram", IsOwner: true}
	f.client = models.Identity{ID: clientID, Name: "Asha", IsClient: true}

	f.svc = chat.NewService(f.db, nil, zerolog.Nop())
	f.ledger = ledger.New(f.db)

	hub := NewHub(zerolog.Nop())
	sessions := NewSessionServer(hub, f.svc, f.ledger, f.db, nil, zerolog.Nop())

	identities := map[string]models.Identity{
		"owner":  f.owner,
		"client": f.client,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identities[r.URL.Query().Get("as")]
		if !ok {
			identity = models.Identity{ID: uuid.New(), IsClient: true}
		}
		roomID := f.roomID
		if raw := r.URL.Query().Get("room"); raw != "" {
			parsed, err := uuid.Parse(raw)
			if !assert.NoError(t, err) {
				return
			}
			roomID = parsed
		}
		sessions.ServeRoom(w, r, &identity, roomID)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *sessionFixture) unlockClient(t *testing.T) {
	t.Helper()
	grant, err := f.ledger.RequestAccess(context.Background(), f.client.ID, f.roomID, payments.UnlockPrice)
	require.NoError(t, err)
	_, applied, err := f.ledger.ConfirmSuccess(context.Background(), grant.TransactionRef, "pi_test")
	require.NoError(t, err)
	require.True(t, applied)
}

func (f *sessionFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeRoomRejectsLockedClient(t *testing.T) {
	f := newSessionFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?as=client"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "locked client never reaches the upgrade")
}

func TestServeRoomRejectsUnknownRoom(t *testing.T) {
	f := newSessionFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?as=owner&room=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeRoomAdmitsOwnerAndUnlockedClient(t *testing.T) {
	f := newSessionFixture(t)
	f.unlockClient(t)

	f.dial(t, "as=owner")
	f.dial(t, "as=client")
}

func TestRoomSessionMessageFlow(t *testing.T) {
	f := newSessionFixture(t)
	f.unlockClient(t)

	ownerConn := f.dial(t, "as=owner")
	clientConn := f.dial(t, "as=client")

	require.NoError(t, clientConn.WriteJSON(map[string]string{
		"type":    "message",
		"content": "is the room still available?",
	}))

	var got struct {
		Type       string          `json:"type"`
		Message    *models.Message `json:"message"`
		SenderName string          `json:"sender_name"`
		IsMine     bool            `json:"is_mine"`
	}

	readJSON(t, clientConn, &got)
	assert.Equal(t, "new-message", got.Type)
	assert.Equal(t, "is the room still available?", got.Message.Content)
	assert.True(t, got.IsMine)

	readJSON(t, ownerConn, &got)
	assert.Equal(t, "Asha", got.SenderName)
	assert.False(t, got.IsMine)
	assert.Equal(t, f.owner.ID, got.Message.ReceiverID)

	// The broadcast reflects a persisted message, not a relayed frame.
	conv, err := f.svc.GetOrCreate(context.Background(), f.client.ID, f.owner.ID, f.roomID)
	require.NoError(t, err)
	msgs, err := f.svc.History(context.Background(), f.client.ID, conv.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, got.Message.ID, msgs[0].ID)
}

func TestRoomSessionOwnerReplyResolvesClient(t *testing.T) {
	f := newSessionFixture(t)
	f.unlockClient(t)

	clientConn := f.dial(t, "as=client")
	require.NoError(t, clientConn.WriteJSON(map[string]string{"content": "hello"}))

	var first struct {
		Message *models.Message `json:"message"`
	}
	readJSON(t, clientConn, &first)

	ownerConn := f.dial(t, "as=owner")
	require.NoError(t, ownerConn.WriteJSON(map[string]string{"content": "yes, come see it"}))

	var reply struct {
		Type    string          `json:"type"`
		Message *models.Message `json:"message"`
	}
	readJSON(t, ownerConn, &reply)
	require.Equal(t, "new-message", reply.Type)
	assert.Equal(t, f.client.ID, reply.Message.ReceiverID, "owner reply lands on the active conversation's client")
	assert.Equal(t, first.Message.ConversationID, reply.Message.ConversationID)
}

func TestRoomSessionOwnerReplyWithoutConversation(t *testing.T) {
	f := newSessionFixture(t)

	ownerConn := f.dial(t, "as=owner")
	require.NoError(t, ownerConn.WriteJSON(map[string]string{"content": "anyone there?"}))

	var got struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	readJSON(t, ownerConn, &got)
	assert.Equal(t, "error", got.Type)
	assert.Equal(t, "nobody has messaged about this room yet", got.Error)
}

func TestRoomSessionRejectsEmptyMessage(t *testing.T) {
	f := newSessionFixture(t)
	f.unlockClient(t)

	clientConn := f.dial(t, "as=client")
	require.NoError(t, clientConn.WriteJSON(map[string]string{"content": "   "}))

	var got struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	readJSON(t, clientConn, &got)
	assert.Equal(t, "error", got.Type)
	assert.Equal(t, "message is empty", got.Error)
}

func TestRoomSessionMarkRead(t *testing.T) {
	f := newSessionFixture(t)
	f.unlockClient(t)

	ownerConn := f.dial(t, "as=owner")
	clientConn := f.dial(t, "as=client")

	require.NoError(t, clientConn.WriteJSON(map[string]string{"content": "ping"}))

	var got struct {
		Message *models.Message `json:"message"`
	}
	readJSON(t, ownerConn, &got)

	unread, err := f.db.CountUnread(context.Background(), f.owner.ID)
	require.NoError(t, err)
	require.Equal(t, 1, unread)

	require.NoError(t, ownerConn.WriteJSON(map[string]any{
		"type":        "mark_read",
		"message_ids": []string{got.Message.ID},
	}))

	assert.Eventually(t, func() bool {
		n, err := f.db.CountUnread(context.Background(), f.owner.ID)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomSessionUnknownFrameType(t *testing.T) {
	f := newSessionFixture(t)

	ownerConn := f.dial(t, "as=owner")
	require.NoError(t, ownerConn.WriteJSON(map[string]string{"type": "typing"}))

	var got struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	readJSON(t, ownerConn, &got)
	assert.Equal(t, "error", got.Type)
	assert.Equal(t, "unknown frame type", got.Error)
}
