package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/samirchapagain/FindMyRoom/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/findmyroom.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/findmyroom.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		is_owner INTEGER NOT NULL DEFAULT 0,
		is_client INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL DEFAULT 0,
		contact_phone TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS access_grants (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		amount REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_ref TEXT UNIQUE NOT NULL,
		provider_ref TEXT,
		paid_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (client_id, room_id)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (client_id, owner_id, room_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		attachment TEXT,
		read_status INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_grants_transaction_ref ON access_grants(transaction_ref);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, read_status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, is_owner, is_client, created_at
		FROM users WHERE id = ?
	`, id.String()).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.IsOwner,
		&user.IsClient,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, location, price, contact_phone, contact_email, created_at
		FROM rooms WHERE id = ?
	`, id.String()).Scan(
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

func (s *SQLiteStore) scanGrantRow(row *sql.Row) (*models.AccessGrant, error) {
	g := &models.AccessGrant{}
	var providerRef sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(
		&g.ID,
		&g.ClientID,
		&g.OwnerID,
		&g.RoomID,
		&g.Amount,
		&g.Status,
		&g.TransactionRef,
		&providerRef,
		&paidAt,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if providerRef.Valid {
		g.ProviderRef = providerRef.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		g.PaidAt = &t
	}
	return g, nil
}

// GetGrantByPair retrieves the access grant for a (client, room) pair.
func (s *SQLiteStore) GetGrantByPair(ctx context.Context, clientID, roomID uuid.UUID) (*models.AccessGrant, error) {
	return s.scanGrantRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, owner_id, room_id, amount, status, transaction_ref, provider_ref, paid_at, created_at
		FROM access_grants WHERE client_id = ? AND room_id = ?
	`, clientID.String(), roomID.String()))
}

// GetGrantByTransactionRef retrieves an access grant by transaction reference.
func (s *SQLiteStore) GetGrantByTransactionRef(ctx context.Context, ref string) (*models.AccessGrant, error) {
	return s.scanGrantRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, owner_id, room_id, amount, status, transaction_ref, provider_ref, paid_at, created_at
		FROM access_grants WHERE transaction_ref = ?
	`, ref))
}

// InsertGrant inserts a pending access grant, returning the existing grant
// when the (client, room) pair already has one.
func (s *SQLiteStore) InsertGrant(ctx context.Context, g *models.AccessGrant) (*models.AccessGrant, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO access_grants (id, client_id, owner_id, room_id, amount, status, transaction_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), g.ClientID.String(), g.OwnerID.String(), g.RoomID.String(), g.Amount, string(g.Status), g.TransactionRef, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.GetGrantByPair(ctx, g.ClientID, g.RoomID)
}

// RetryGrant resets a failed grant back to pending under a fresh
// transaction reference.
func (s *SQLiteStore) RetryGrant(ctx context.Context, id uuid.UUID, newRef string) (*models.AccessGrant, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_grants
		SET status = 'pending', transaction_ref = ?, provider_ref = NULL, paid_at = NULL
		WHERE id = ? AND status = 'failed'
	`, newRef, id.String())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.scanGrantRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, owner_id, room_id, amount, status, transaction_ref, provider_ref, paid_at, created_at
		FROM access_grants WHERE id = ?
	`, id.String()))
}

// MarkGrantSuccess transitions a grant from pending to success.
func (s *SQLiteStore) MarkGrantSuccess(ctx context.Context, transactionRef, providerRef string, paidAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_grants
		SET status = 'success', provider_ref = ?, paid_at = ?
		WHERE transaction_ref = ? AND status = 'pending'
	`, providerRef, paidAt, transactionRef)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkGrantFailed transitions a grant from pending to failed.
func (s *SQLiteStore) MarkGrantFailed(ctx context.Context, transactionRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_grants SET status = 'failed'
		WHERE transaction_ref = ? AND status = 'pending'
	`, transactionRef)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HasSuccessGrant reports whether the client has unlocked the room.
func (s *SQLiteStore) HasSuccessGrant(ctx context.Context, clientID, roomID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM access_grants
		WHERE client_id = ? AND room_id = ? AND status = 'success'
	`, clientID.String(), roomID.String()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) scanConversationRow(row *sql.Row) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(&c.ID, &c.ClientID, &c.OwnerID, &c.RoomID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetConversationByID retrieves a conversation by ID.
func (s *SQLiteStore) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.scanConversationRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, owner_id, room_id, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id.String()))
}

// GetConversationByTriple retrieves the conversation for a (client, owner, room) triple.
func (s *SQLiteStore) GetConversationByTriple(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	return s.scanConversationRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, owner_id, room_id, created_at, updated_at
		FROM conversations WHERE client_id = ? AND owner_id = ? AND room_id = ?
	`, clientID.String(), ownerID.String(), roomID.String()))
}

// CreateConversation inserts a conversation for the triple, returning the
// existing one on conflict.
func (s *SQLiteStore) CreateConversation(ctx context.Context, clientID, ownerID, roomID uuid.UUID) (*models.Conversation, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, client_id, owner_id, room_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), clientID.String(), ownerID.String(), roomID.String(), now, now)
	if err != nil {
		return nil, err
	}
	return s.GetConversationByTriple(ctx, clientID, ownerID, roomID)
}

// ListConversationsForUser retrieves conversations where the user is either
// party, most recently active first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, owner_id, room_id, created_at, updated_at
		FROM conversations
		WHERE client_id = ? OR owner_id = ?
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, userID.String(), userID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.ClientID, &c.OwnerID, &c.RoomID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// LatestConversationForRoom retrieves the most recently active conversation
// an owner has in a room.
func (s *SQLiteStore) LatestConversationForRoom(ctx context.Context, roomID, ownerID uuid.UUID) (*models.Conversation, error) {
	return s.scanConversationRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, owner_id, room_id, created_at, updated_at
		FROM conversations
		WHERE room_id = ? AND owner_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, roomID.String(), ownerID.String()))
}

// TouchConversation advances the conversation's updated_at timestamp.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id.String())
	return err
}

// InsertMessage persists a message with a store-assigned timestamp.
func (s *SQLiteStore) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	var attachment any
	if m.Attachment != "" {
		attachment = m.Attachment
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, room_id, content, attachment, read_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, m.ID, m.ConversationID.String(), m.SenderID.String(), m.ReceiverID.String(), m.RoomID.String(), m.Content, attachment, now)
	if err != nil {
		return nil, err
	}
	out := *m
	out.Read = false
	out.CreatedAt = now
	return &out, nil
}

// ListMessages retrieves the newest page of messages under before, oldest
// first within the page.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, room_id, content, attachment, read_status, created_at
		FROM messages WHERE conversation_id = ?`
	args := []any{conversationID.String()}
	if !before.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, before)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var attachment sql.NullString
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.RoomID, &m.Content, &attachment, &m.Read, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		if attachment.Valid {
			m.Attachment = attachment.String
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// MarkMessagesRead flips the read flag for the given messages where the
// caller is the receiver.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, ids []string, receiverID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, receiverID.String())

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_status = 1
		WHERE id IN (`+placeholders+`) AND receiver_id = ? AND read_status = 0
	`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread counts unread messages addressed to the user.
func (s *SQLiteStore) CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND read_status = 0
	`, receiverID.String()).Scan(&count)
	return count, err
}

// CountUnreadByConversation counts unread messages per conversation.
func (s *SQLiteStore) CountUnreadByConversation(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, COUNT(*) FROM messages
		WHERE receiver_id = ? AND read_status = 0
		GROUP BY conversation_id
	`, receiverID.String())
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
