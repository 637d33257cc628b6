// Package ws carries live chat and notification traffic over WebSockets.
// The hub fans events out to group subscribers; sessions authorize, read
// client frames, and hand persistence to the chat service.
package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/metrics"
)

// RoomGroup is the broadcast group for a room's chat.
func RoomGroup(roomID uuid.UUID) string { return "chat_" + roomID.String() }

// PersonalGroup is the broadcast group for one identity's notifications.
func PersonalGroup(userID uuid.UUID) string { return "client_" + userID.String() }

// Envelope is rendered once per recipient, so per-recipient fields like
// is_mine come out right for each subscriber.
type Envelope interface {
	Render(recipient uuid.UUID) ([]byte, error)
}

// Hub tracks group subscriptions and fans envelopes out to them. All
// methods are safe for concurrent use; contention is scoped per call, not
// per group, and broadcast never blocks on a slow subscriber.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]bool
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[*Client]bool),
		logger: logger,
	}
}

// Subscribe adds the client to a group. The client remembers the group so
// Close can unsubscribe it on any exit path.
func (h *Hub) Subscribe(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][c] = true
	c.groups = append(c.groups, group)
}

// Unsubscribe removes the client from a group. Removing a client that is
// not subscribed is a no-op.
func (h *Hub) Unsubscribe(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.groups[group]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	for i, g := range c.groups {
		if g == group {
			c.groups = append(c.groups[:i], c.groups[i+1:]...)
			break
		}
	}
}

// Broadcast renders the envelope for every subscriber in the group and
// enqueues it. A subscriber whose send buffer is full is dropped rather
// than allowed to stall the rest of the group.
func (h *Hub) Broadcast(group string, env Envelope) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		payload, err := env.Render(c.userID)
		if err != nil {
			h.logger.Error().Err(err).Str("group", group).Msg("failed to render broadcast event")
			continue
		}
		if !c.enqueue(payload) {
			metrics.WSDroppedClients.Inc()
			h.logger.Warn().Str("group", group).Str("user_id", c.userID.String()).Msg("dropping slow subscriber")
			go c.Close()
		}
	}
}

// Subscribers reports the current size of a group.
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) unsubscribeAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, group := range c.groups {
		if members := h.groups[group]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
	}
	c.groups = nil
}
