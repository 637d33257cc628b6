package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirchapagain/FindMyRoom/internal/models"
)

// Querier is the subset of pgxpool.Pool used by PostgresStore. Tests
// substitute a pgxmock pool through NewPostgresStoreFromQuerier.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	db   Querier
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{db: pool, pool: pool}, nil
}

// NewPostgresStoreFromQuerier creates a store around an existing querier.
// Used by tests with a mock pool.
func NewPostgresStoreFromQuerier(q Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, phone, is_owner, is_client, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.IsOwner,
		&user.IsClient,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, title, location, price, contact_phone, contact_email, created_at
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.OwnerID,
		&room.Title,
		&room.Location,
		&room.Price,
		&room.ContactPhone,
		&room.ContactEmail,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

const grantColumns = `id, client_id, owner_id, room_id, amount, status, transaction_ref, provider_ref, paid_at, created_at`

func scanGrant(row pgx.Row) (*models.AccessGrant, error) {
	g := &models.AccessGrant{}
	var providerRef *string
	err := row.Scan(
		&g.ID,
		&g.ClientID,
		&g.OwnerID,
		&g.RoomID,
		&g.Amount,
		&g.Status,
		&g.TransactionRef,
		&providerRef,
		&g.PaidAt,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if providerRef != nil {
		g.ProviderRef = *providerRef
	}
	return g, nil
}

// GetGrantByPair retrieves the access grant for a (client, room) pair.
func (s *PostgresStore) GetGrantByPair(ctx context.Context, clientID, roomID uuid.UUID) (*models.AccessGrant, error) {
	return scanGrant(s.db.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants WHERE client_id = $1 AND room_id = $2
	`, clientID, roomID))
}

// GetGrantByTransactionRef retrieves an access grant by transaction reference.
func (s *PostgresStore) GetGrantByTransactionRef(ctx context.Context, ref string) (*models.AccessGrant, error) {
	return scanGrant(s.db.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants WHERE transaction_ref = $1
	`, ref))
}

// InsertGrant inserts a pending access grant. The (client_id, room_id)
// unique constraint absorbs concurrent inserts for the same pair: on
// conflict no row is written and the caller re-reads the winner.
func (s *PostgresStore) InsertGrant(ctx context.Context, g *models.AccessGrant) (*models.AccessGrant, error) {
	created, err := scanGrant(s.db.QueryRow(ctx, `
		INSERT INTO access_grants (client_id, owner_id, room_id, amount, status, transaction_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, room_id) DO NOTHING
		RETURNING `+grantColumns+`
	`, g.ClientID, g.OwnerID, g.RoomID, g.Amount, g.Status, g.TransactionRef))
	if err != nil {
		return nil, err
	}
	if created == nil {
		return s.GetGrantByPair(ctx, g.ClientID, g.RoomID)
	}
	return created, nil
}

// RetryGrant resets a failed grant back to pending under a fresh
// transaction reference. Returns nil if the grant is no longer failed.
func (s *PostgresStore) RetryGrant(ctx context.Context, id uuid.UUID, newRef string) (*models.AccessGrant, error) {
	return scanGrant(s.db.QueryRow(ctx, `
		UPDATE access_grants
		SET status = 'pending', transaction_ref = $2, provider_ref = NULL, paid_at = NULL
		WHERE id = $1 AND status = 'failed'
		RETURNING `+grantColumns+`
	`, id, newRef))
}

// MarkGrantSuccess transitions a grant from pending to success. The status
// predicate makes the update a compare-and-set so concurrent confirmations
// of the same transaction apply at most once.
func (s *PostgresStore) MarkGrantSuccess(ctx context.Context, transactionRef, providerRef string, paidAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE access_grants
		SET status = 'success', provider_ref = $2, paid_at = $3
		WHERE transaction_ref = $1 AND status = 'pending'
	`, transactionRef, providerRef, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkGrantFailed transitions a grant from pending to failed.
func (s *PostgresStore) MarkGrantFailed(ctx context.Context, transactionRef string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE access_grants
		SET status = 'failed'
		WHERE transaction_ref = $1 AND status = 'pending'
	`, transactionRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// HasSuccessGrant reports whether the client has unlocked the room.
func (s *PostgresStore) HasSuccessGrant(ctx context.Context, clientID, roomID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM access_grants
			WHERE client_id = $1 AND room_id = $2 AND status = 'success'
		)
	`, clientID, roomID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

const conversationColumns = `id, client_id, owner_id, room_id, created_at, updated_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.OwnerID,
		&c.RoomID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetConversationByID retrieves a conversation by ID.
func (s *PostgresStore) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return scanConversation(s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1
	`, id))
}

// GetConversationByTriple retrieves the conversation for a
// (client, owner, room) triple.
func (s *PostgresStore) GetConversationByTriple(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	return scanConversation(s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE client_id = $1 AND owner_id = $2 AND room_id = $3
	`, clientID, ownerID, roomID))
}

// CreateConversation inserts a conversation for the triple. On a concurrent
// insert the conflict clause yields no row and the existing one is re-read.
func (s *PostgresStore) CreateConversation(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	created, err := scanConversation(s.db.QueryRow(ctx, `
		INSERT INTO conversations (client_id, owner_id, room_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, owner_id, room_id) DO NOTHING
		RETURNING `+conversationColumns+`
	`, clientID, ownerID, roomID))
	if err != nil {
		return nil, err
	}
	if created == nil {
		return s.GetConversationByTriple(ctx, clientID, ownerID, roomID)
	}
	return created, nil
}

// ListConversationsForUser retrieves conversations where the user is either
// party, most recently active first.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE client_id = $1 OR owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		err := rows.Scan(&c.ID, &c.ClientID, &c.OwnerID, &c.RoomID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// LatestConversationForRoom retrieves the most recently active conversation
// an owner has in a room. Used when an owner replies without naming a client.
func (s *PostgresStore) LatestConversationForRoom(ctx context.Context, roomID, ownerID uuid.UUID) (*models.Conversation, error) {
	return scanConversation(s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE room_id = $1 AND owner_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, roomID, ownerID))
}

// TouchConversation advances the conversation's updated_at timestamp.
func (s *PostgresStore) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1
	`, id)
	return err
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, room_id, content, attachment, read_status, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	var attachment *string
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.RoomID,
		&m.Content,
		&attachment,
		&m.Read,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if attachment != nil {
		m.Attachment = *attachment
	}
	return m, nil
}

// InsertMessage persists a message. The database assigns created_at at the
// insert statement, the single serialization point for ordering within a
// conversation.
func (s *PostgresStore) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	var attachment *string
	if m.Attachment != "" {
		attachment = &m.Attachment
	}
	return scanMessage(s.db.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, room_id, content, attachment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns+`
	`, m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.RoomID, m.Content, attachment))
}

// ListMessages retrieves the page of messages nearest the cursor: the
// newest rows under before (or the live tail when before is zero), returned
// oldest first so callers render top-down. Ties break on ID.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1`
	args := []any{conversationID}
	if !before.IsZero() {
		query += ` AND created_at < $2`
		args = append(args, before)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var attachment *string
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.RoomID, &m.Content, &attachment, &m.Read, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		if attachment != nil {
			m.Attachment = *attachment
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// reverseMessages flips a newest-first query result into the ascending
// order pages are served in.
func reverseMessages(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// MarkMessagesRead flips the read flag for the given messages where the
// caller is the receiver. Mismatched IDs are silently ignored.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, ids []string, receiverID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE messages SET read_status = TRUE
		WHERE id = ANY($1) AND receiver_id = $2 AND read_status = FALSE
	`, ids, receiverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread counts unread messages addressed to the user.
func (s *PostgresStore) CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE receiver_id = $1 AND read_status = FALSE
	`, receiverID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountUnreadByConversation counts unread messages per conversation for
// inbox badges.
func (s *PostgresStore) CountUnreadByConversation(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT conversation_id, COUNT(*) FROM messages
		WHERE receiver_id = $1 AND read_status = FALSE
		GROUP BY conversation_id
	`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
