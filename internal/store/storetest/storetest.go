// Package storetest provides an in-memory DataStore for unit tests. It
// mirrors the SQL stores' semantics: conflict-absorbing inserts,
// compare-and-set status transitions, and insert-time message timestamps.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirchapagain/FindMyRoom/internal/models"
)

// MemStore implements store.DataStore in memory. Safe for concurrent use.
type MemStore struct {
	mu sync.Mutex

	Users map[uuid.UUID]*models.User
	Rooms map[uuid.UUID]*models.Room

	grants map[uuid.UUID]*models.AccessGrant
	convs  map[uuid.UUID]*models.Conversation
	msgs   []*models.Message

	// clock advances one microsecond per timestamp so insertion order is
	// always recoverable from created_at.
	clock time.Time

	// PingErr makes Ping fail for health check tests.
	PingErr error
}

func New() *MemStore {
	return &MemStore{
		Users:  make(map[uuid.UUID]*models.User),
		Rooms:  make(map[uuid.UUID]*models.Room),
		grants: make(map[uuid.UUID]*models.AccessGrant),
		convs:  make(map[uuid.UUID]*models.Conversation),
		clock:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *MemStore) now() time.Time {
	s.clock = s.clock.Add(time.Microsecond)
	return s.clock
}

// AddUser seeds a user.
func (s *MemStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Users[u.ID] = &u
}

// AddRoom seeds a room.
func (s *MemStore) AddRoom(r models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rooms[r.ID] = &r
}

func (s *MemStore) Close() {}

func (s *MemStore) Ping(context.Context) error { return s.PingErr }

func (s *MemStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.Users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (s *MemStore) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.Rooms[id]; ok {
		out := *r
		return &out, nil
	}
	return nil, nil
}

func (s *MemStore) grantByPairLocked(clientID, roomID uuid.UUID) *models.AccessGrant {
	for _, g := range s.grants {
		if g.ClientID == clientID && g.RoomID == roomID {
			return g
		}
	}
	return nil
}

func (s *MemStore) grantByRefLocked(ref string) *models.AccessGrant {
	for _, g := range s.grants {
		if g.TransactionRef == ref {
			return g
		}
	}
	return nil
}

func (s *MemStore) GetGrantByPair(_ context.Context, clientID, roomID uuid.UUID) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.grantByPairLocked(clientID, roomID); g != nil {
		out := *g
		return &out, nil
	}
	return nil, nil
}

func (s *MemStore) GetGrantByTransactionRef(_ context.Context, ref string) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.grantByRefLocked(ref); g != nil {
		out := *g
		return &out, nil
	}
	return nil, nil
}

func (s *MemStore) InsertGrant(_ context.Context, g *models.AccessGrant) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.grantByPairLocked(g.ClientID, g.RoomID); existing != nil {
		out := *existing
		return &out, nil
	}
	stored := *g
	stored.ID = uuid.New()
	stored.CreatedAt = s.now()
	s.grants[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemStore) RetryGrant(_ context.Context, id uuid.UUID, newRef string) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok || g.Status != models.GrantFailed {
		return nil, nil
	}
	g.Status = models.GrantPending
	g.TransactionRef = newRef
	g.ProviderRef = ""
	g.PaidAt = nil
	out := *g
	return &out, nil
}

func (s *MemStore) MarkGrantSuccess(_ context.Context, transactionRef, providerRef string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.grantByRefLocked(transactionRef)
	if g == nil || g.Status != models.GrantPending {
		return false, nil
	}
	g.Status = models.GrantSuccess
	g.ProviderRef = providerRef
	g.PaidAt = &paidAt
	return true, nil
}

func (s *MemStore) MarkGrantFailed(_ context.Context, transactionRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.grantByRefLocked(transactionRef)
	if g == nil || g.Status != models.GrantPending {
		return false, nil
	}
	g.Status = models.GrantFailed
	return true, nil
}

func (s *MemStore) HasSuccessGrant(_ context.Context, clientID, roomID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.grantByPairLocked(clientID, roomID)
	return g != nil && g.Status == models.GrantSuccess, nil
}

func (s *MemStore) GetConversationByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		out := *c
		return &out, nil
	}
	return nil, nil
}

func (s *MemStore) tripleLocked(clientID, ownerID, roomID uuid.UUID) *models.Conversation {
	for _, c := range s.convs {
		if c.ClientID == clientID && c.OwnerID == ownerID && c.RoomID == roomID {
			return c
		}
	}
	return nil
}

func (s *MemStore) GetConversationByTriple(_ context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.tripleLocked(clientID, ownerID, roomID); c != nil {
		out := *c
		return &out, nil
	}
	return nil, nil
}

func (s *MemStore) CreateConversation(_ context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.tripleLocked(clientID, ownerID, roomID); existing != nil {
		out := *existing
		return &out, nil
	}
	now := s.now()
	c := &models.Conversation{
		ID:        uuid.New(),
		ClientID:  clientID,
		OwnerID:   ownerID,
		RoomID:    roomID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs[c.ID] = c
	out := *c
	return &out, nil
}

func (s *MemStore) ListConversationsForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, c := range s.convs {
		if c.ClientID == userID || c.OwnerID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) LatestConversationForRoom(_ context.Context, roomID, ownerID uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Conversation
	for _, c := range s.convs {
		if c.RoomID == roomID && c.OwnerID == ownerID {
			if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *MemStore) TouchConversation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemStore) InsertMessage(_ context.Context, m *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *m
	stored.Read = false
	stored.CreatedAt = s.now()
	s.msgs = append(s.msgs, &stored)
	out := stored
	return &out, nil
}

func (s *MemStore) ListMessages(_ context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	// The limit keeps the newest rows; pages are still served ascending.
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemStore) MarkMessagesRead(_ context.Context, ids []string, receiverID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var n int64
	for _, m := range s.msgs {
		if idSet[m.ID] && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemStore) CountUnread(_ context.Context, receiverID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.msgs {
		if m.ReceiverID == receiverID && !m.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) CountUnreadByConversation(_ context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, m := range s.msgs {
		if m.ReceiverID == receiverID && !m.Read {
			counts[m.ConversationID]++
		}
	}
	return counts, nil
}
