// Package ledger tracks, per (client, room) pair, whether a payment has
// succeeded and chat/contact access is therefore unlocked.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/samirchapagain/FindMyRoom/internal/crypto"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/store"
)

var (
	// ErrAlreadyUnlocked signals a success grant already exists for the
	// pair. Callers should treat it as idempotent success, not a failure.
	ErrAlreadyUnlocked = errors.New("room already unlocked")

	// ErrUnknownTransaction signals no grant matches the transaction
	// reference. Confirmation paths log and discard it; the caller is an
	// untrusted external provider.
	ErrUnknownTransaction = errors.New("unknown transaction reference")

	// ErrRoomNotFound signals the room does not exist.
	ErrRoomNotFound = errors.New("room not found")
)

// Ledger owns the access grant state machine:
// pending -> success (terminal) or pending -> failed (retryable).
type Ledger struct {
	db store.DataStore
}

// New creates a ledger over the given store.
func New(db store.DataStore) *Ledger {
	return &Ledger{db: db}
}

// RequestAccess returns the pending grant for the pair, creating one with a
// fresh transaction reference when none is usable. A failed grant is reset
// to pending in place; a success grant yields ErrAlreadyUnlocked.
func (l *Ledger) RequestAccess(ctx context.Context, clientID, roomID uuid.UUID, amount float64) (*models.AccessGrant, error) {
	room, err := l.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	grant, err := l.db.GetGrantByPair(ctx, clientID, roomID)
	if err != nil {
		return nil, err
	}

	switch {
	case grant == nil:
		grant, err = l.db.InsertGrant(ctx, &models.AccessGrant{
			ClientID:       clientID,
			OwnerID:        room.OwnerID,
			RoomID:         roomID,
			Amount:         amount,
			Status:         models.GrantPending,
			TransactionRef: crypto.NewUUIDv7().String(),
		})
		if err != nil {
			return nil, err
		}
	case grant.Status == models.GrantSuccess:
		return grant, ErrAlreadyUnlocked
	case grant.Status == models.GrantFailed:
		retried, err := l.db.RetryGrant(ctx, grant.ID, crypto.NewUUIDv7().String())
		if err != nil {
			return nil, err
		}
		if retried != nil {
			return retried, nil
		}
		// Lost a race with a concurrent retry; re-read the winner.
		grant, err = l.db.GetGrantByPair(ctx, clientID, roomID)
		if err != nil {
			return nil, err
		}
	}

	if grant != nil && grant.Status == models.GrantSuccess {
		return grant, ErrAlreadyUnlocked
	}
	return grant, nil
}

// ConfirmSuccess transitions the grant matching the transaction reference
// from pending to success. Re-delivery of an already-applied confirmation
// is a no-op with applied=false. The update is a compare-and-set, so
// concurrent confirmations apply at most once.
func (l *Ledger) ConfirmSuccess(ctx context.Context, transactionRef, providerRef string) (grant *models.AccessGrant, applied bool, err error) {
	applied, err = l.db.MarkGrantSuccess(ctx, transactionRef, providerRef, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}

	grant, err = l.db.GetGrantByTransactionRef(ctx, transactionRef)
	if err != nil {
		return nil, false, err
	}
	if grant == nil {
		return nil, false, ErrUnknownTransaction
	}
	if !applied && grant.Status != models.GrantSuccess {
		// A failed grant never moves to success.
		return grant, false, nil
	}
	return grant, applied, nil
}

// ConfirmFailure transitions the grant from pending to failed; a no-op for
// any other state.
func (l *Ledger) ConfirmFailure(ctx context.Context, transactionRef string) error {
	applied, err := l.db.MarkGrantFailed(ctx, transactionRef)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	grant, err := l.db.GetGrantByTransactionRef(ctx, transactionRef)
	if err != nil {
		return err
	}
	if grant == nil {
		return ErrUnknownTransaction
	}
	return nil
}

// IsUnlocked reports whether a success grant exists for the pair.
func (l *Ledger) IsUnlocked(ctx context.Context, clientID, roomID uuid.UUID) (bool, error) {
	return l.db.HasSuccessGrant(ctx, clientID, roomID)
}

// Grant returns the grant for the pair, or nil when none exists.
func (l *Ledger) Grant(ctx context.Context, clientID, roomID uuid.UUID) (*models.AccessGrant, error) {
	return l.db.GetGrantByPair(ctx, clientID, roomID)
}
