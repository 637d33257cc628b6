package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store/storetest"
)

func seedRoom(db *storetest.MemStore) (clientID, roomID uuid.UUID) {
	clientID = uuid.New()
	ownerID := uuid.New()
	roomID = uuid.New()
	db.AddUser(models.User{ID: clientID, Name: "Asha", IsClient: true})
	db.AddUser(models.User{ID: ownerID, Name: "Bikram", IsOwner: true})
	db.AddRoom(models.Room{ID: roomID, OwnerID: ownerID, Title: "Sunny room in Patan"})
	return clientID, roomID
}

func TestRequestAccessCreatesPendingGrant(t *testing.T) {
	db := storetest.New()
	clientID, roomID := seedRoom(db)
	l := ledger.New(db)

	grant, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)
	assert.Equal(t, models.GrantPending, grant.Status)
	assert.Equal(t, 30.00, grant.Amount)
	assert.NotEmpty(t, grant.TransactionRef)

	unlocked, err := l.IsUnlocked(context.Background(), clientID, roomID)
	require.NoError(t, err)
	assert.False(t, unlocked, "pending grant must not unlock")
}

func TestRequestAccessIsIdempotentPerPair(t *testing.T) {
	db := storetest.New()
	clientID, roomID := seedRoom(db)
	l := ledger.New(db)

	first, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)
	second, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "one grant per (client, room) pair")
	assert.Equal(t, first.TransactionRef, second.TransactionRef, "pending grant keeps its reference")
}

func TestRequestAccessUnknownRoom(t *testing.T) {
	db := storetest.New()
	l := ledger.New(db)

	_, err := l.RequestAccess(context.Background(), uuid.New(), uuid.New(), 30.00)
	assert.ErrorIs(t, err, ledger.ErrRoomNotFound)
}

func TestConfirmSuccessUnlocksOnce(t *testing.T) {
	db := storetest.New()
	clientID, roomID := seedRoom(db)
	l := ledger.New(db)

	grant, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)

	confirmed, applied, err := l.ConfirmSuccess(context.Background(), grant.TransactionRef, "pi_123")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.GrantSuccess, confirmed.Status)
	assert.Equal(t, "pi_123", confirmed.ProviderRef)
	require.NotNil(t, confirmed.PaidAt)

	// Duplicate delivery lands in the same terminal state without applying.
	again, applied, err := l.ConfirmSuccess(context.Background(), grant.TransactionRef, "pi_123")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.GrantSuccess, again.Status)

	unlocked, err := l.IsUnlocked(context.Background(), clientID, roomID)
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestConfirmSuccessUnknownTransaction(t *testing.T) {
	db := storetest.New()
	l := ledger.New(db)

	_, _, err := l.ConfirmSuccess(context.Background(), "no-such-ref", "pi_123")
	assert.ErrorIs(t, err, ledger.ErrUnknownTransaction)
}

func TestConfirmFailureAllowsRetry(t *testing.T) {
	db := storetest.New()
	clientID, roomID := seedRoom(db)
	l := ledger.New(db)

	grant, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)

	require.NoError(t, l.ConfirmFailure(context.Background(), grant.TransactionRef))

	stored, err := l.Grant(context.Background(), clientID, roomID)
	require.NoError(t, err)
	assert.Equal(t, models.GrantFailed, stored.Status)

	// A new attempt reopens the same row under a fresh reference.
	retried, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, retried.ID)
	assert.Equal(t, models.GrantPending, retried.Status)
	assert.NotEqual(t, grant.TransactionRef, retried.TransactionRef)
}

func TestConfirmSuccessNeverRevivesFailedGrant(t *testing.T) {
	db := storetest.New()
	clientID, roomID := seedRoom(db)
	l := ledger.New(db)

	grant, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)
	require.NoError(t, l.ConfirmFailure(context.Background(), grant.TransactionRef))

	stored, applied, err := l.ConfirmSuccess(context.Background(), grant.TransactionRef, "pi_late")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.GrantFailed, stored.Status)

	unlocked, err := l.IsUnlocked(context.Background(), clientID, roomID)
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestAlreadyUnlockedShortCircuitsNewIntent(t *testing.T) {
	db := storetest.New()
	clientID, roomID := seedRoom(db)
	l := ledger.New(db)

	grant, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	require.NoError(t, err)
	_, _, err = l.ConfirmSuccess(context.Background(), grant.TransactionRef, "pi_123")
	require.NoError(t, err)

	again, err := l.RequestAccess(context.Background(), clientID, roomID, 30.00)
	assert.ErrorIs(t, err, ledger.ErrAlreadyUnlocked)
	assert.Equal(t, models.GrantSuccess, again.Status)
}
