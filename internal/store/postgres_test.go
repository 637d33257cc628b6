package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store"
)

func newMockStore(t *testing.T) (*store.PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return store.NewPostgresStoreFromQuerier(mock), mock
}

var grantCols = []string{"id", "client_id", "owner_id", "room_id", "amount", "status", "transaction_ref", "provider_ref", "paid_at", "created_at"}

func grantRow(g models.AccessGrant) *pgxmock.Rows {
	var providerRef *string
	if g.ProviderRef != "" {
		providerRef = &g.ProviderRef
	}
	return pgxmock.NewRows(grantCols).AddRow(
		g.ID, g.ClientID, g.OwnerID, g.RoomID, g.Amount, g.Status,
		g.TransactionRef, providerRef, g.PaidAt, g.CreatedAt,
	)
}

func TestGetRoom(t *testing.T) {
	s, mock := newMockStore(t)
	roomID, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id, owner_id, title, location, price, contact_phone, contact_email, created_at").
		WithArgs(roomID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "title", "location", "price", "contact_phone", "contact_email", "created_at"}).
			AddRow(roomID, ownerID, "Sunny room", "Patan", 12000.0, "9841000000", "owner@example.com", time.Now()))

	room, err := s.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, ownerID, room.OwnerID)
	assert.Equal(t, "Sunny room", room.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoomNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	roomID := uuid.New()

	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs(roomID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "title", "location", "price", "contact_phone", "contact_email", "created_at"}))

	room, err := s.GetRoom(context.Background(), roomID)
	require.NoError(t, err, "a missing row is not an error")
	assert.Nil(t, room)
}

func TestInsertGrantConflictRereadsWinner(t *testing.T) {
	s, mock := newMockStore(t)
	g := models.AccessGrant{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		OwnerID:        uuid.New(),
		RoomID:         uuid.New(),
		Amount:         30,
		Status:         models.GrantPending,
		TransactionRef: "txn-winner",
		CreatedAt:      time.Now(),
	}

	// ON CONFLICT DO NOTHING returns no row when another insert won the race.
	mock.ExpectQuery("INSERT INTO access_grants").
		WithArgs(g.ClientID, g.OwnerID, g.RoomID, g.Amount, models.GrantPending, "txn-loser").
		WillReturnRows(pgxmock.NewRows(grantCols))
	mock.ExpectQuery("SELECT (.+) FROM access_grants WHERE client_id").
		WithArgs(g.ClientID, g.RoomID).
		WillReturnRows(grantRow(g))

	got, err := s.InsertGrant(context.Background(), &models.AccessGrant{
		ClientID:       g.ClientID,
		OwnerID:        g.OwnerID,
		RoomID:         g.RoomID,
		Amount:         g.Amount,
		Status:         models.GrantPending,
		TransactionRef: "txn-loser",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "txn-winner", got.TransactionRef, "the conflicting insert yields the existing row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkGrantSuccessIsCompareAndSet(t *testing.T) {
	s, mock := newMockStore(t)
	paidAt := time.Now().UTC()

	mock.ExpectExec("UPDATE access_grants").
		WithArgs("txn-1", "pi_1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	applied, err := s.MarkGrantSuccess(context.Background(), "txn-1", "pi_1", paidAt)
	require.NoError(t, err)
	assert.True(t, applied)

	// A grant no longer pending matches zero rows.
	mock.ExpectExec("UPDATE access_grants").
		WithArgs("txn-1", "pi_1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	applied, err = s.MarkGrantSuccess(context.Background(), "txn-1", "pi_1", paidAt)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessagesReadScopesToReceiver(t *testing.T) {
	s, mock := newMockStore(t)
	receiverID := uuid.New()
	ids := []string{"01A", "01B"}

	mock.ExpectExec("UPDATE messages SET read_status").
		WithArgs(ids, receiverID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.MarkMessagesRead(context.Background(), ids, receiverID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessagesReadEmptyInputSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	n, err := s.MarkMessagesRead(context.Background(), nil, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasSuccessGrant(t *testing.T) {
	s, mock := newMockStore(t)
	clientID, roomID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(clientID, roomID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	unlocked, err := s.HasSuccessGrant(context.Background(), clientID, roomID)
	require.NoError(t, err)
	assert.True(t, unlocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesBuildsBoundedQuery(t *testing.T) {
	s, mock := newMockStore(t)
	convID := uuid.New()
	before := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs(convID, before, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "sender_id", "receiver_id", "room_id", "content", "attachment", "read_status", "created_at"}))

	msgs, err := s.ListMessages(context.Background(), convID, 50, before)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
