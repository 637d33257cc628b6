package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/samirchapagain/FindMyRoom/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

// Client is one open WebSocket connection registered with the hub. Close is
// idempotent and safe to call concurrently with an in-flight broadcast.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID

	// groups is guarded by hub.mu.
	groups []string

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	metrics.WSConnections.Inc()
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

// enqueue hands a frame to the write pump. A closed client swallows the
// frame; a full buffer reports false so the hub can drop the subscriber.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close unsubscribes the client from every group and tears down the
// connection. Runs its side effects exactly once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.hub.unsubscribeAll(c)
	_ = c.conn.Close()
	metrics.WSConnections.Dec()
}

// writePump drains the send channel to the connection and keeps the
// connection alive with pings. Runs as its own goroutine per client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
