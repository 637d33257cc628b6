package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/samirchapagain/FindMyRoom/internal/models"
)

// DataStore defines the interface for persistent storage of users, rooms,
// access grants, conversations and messages. Both PostgresStore and
// SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Room operations
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// Access grant operations
	GetGrantByPair(ctx context.Context, clientID, roomID uuid.UUID) (*models.AccessGrant, error)
	GetGrantByTransactionRef(ctx context.Context, ref string) (*models.AccessGrant, error)
	InsertGrant(ctx context.Context, g *models.AccessGrant) (*models.AccessGrant, error)
	RetryGrant(ctx context.Context, id uuid.UUID, newRef string) (*models.AccessGrant, error)
	MarkGrantSuccess(ctx context.Context, transactionRef, providerRef string, paidAt time.Time) (bool, error)
	MarkGrantFailed(ctx context.Context, transactionRef string) (bool, error)
	HasSuccessGrant(ctx context.Context, clientID, roomID uuid.UUID) (bool, error)

	// Conversation operations
	GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetConversationByTriple(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error)
	CreateConversation(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error)
	LatestConversationForRoom(ctx context.Context, roomID, ownerID uuid.UUID) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id uuid.UUID) error

	// Message operations
	InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, ids []string, receiverID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error)
	CountUnreadByConversation(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error)
}
