package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/metrics"
	"github.com/samirchapagain/FindMyRoom/internal/models"
)

// Notifier pushes unlock events to a client's live sessions. Delivery is
// best-effort; the grant row remains the durable source of truth.
type Notifier interface {
	PaymentSucceeded(clientID, roomID uuid.UUID)
}

// Deduper records that a transaction's notification side effects ran, so a
// re-delivered confirmation does not repeat them across processes.
type Deduper interface {
	MarkNotified(ctx context.Context, transactionRef string) (bool, error)
}

// Gateway reduces verified provider callbacks to ledger transitions plus
// best-effort notification side effects.
type Gateway struct {
	ledger   *ledger.Ledger
	notifier Notifier
	dedup    Deduper
	logger   zerolog.Logger
}

// NewGateway creates a gateway. dedup may be nil when no Redis is
// configured; the ledger's compare-and-set already bounds double-apply
// within a process.
func NewGateway(l *ledger.Ledger, n Notifier, d Deduper, logger zerolog.Logger) *Gateway {
	return &Gateway{ledger: l, notifier: n, dedup: d, logger: logger}
}

// Process verifies the callback with the provider and applies the outcome
// to the ledger. Verification failures fail closed: the grant is never
// confirmed on ambiguous input, and a known transaction reference is
// marked failed so the client can retry.
func (g *Gateway) Process(ctx context.Context, provider Provider, cb Callback) error {
	vp, err := provider.Verify(ctx, cb)
	if err != nil {
		g.handleFailure(ctx, provider, cb, err)
		return err
	}

	grant, applied, err := g.ledger.ConfirmSuccess(ctx, vp.TransactionRef, vp.ProviderRef)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownTransaction) {
			// Untrusted external caller; log and discard.
			g.logger.Warn().
				Str("provider", provider.Name()).
				Str("transaction_ref", vp.TransactionRef).
				Msg("confirmation for unknown transaction discarded")
			metrics.PaymentsConfirmed.WithLabelValues(provider.Name(), "unknown").Inc()
			return err
		}
		return err
	}

	if !applied {
		// Duplicate delivery of an already-confirmed payment.
		metrics.PaymentsConfirmed.WithLabelValues(provider.Name(), "duplicate").Inc()
		return nil
	}

	metrics.PaymentsConfirmed.WithLabelValues(provider.Name(), "success").Inc()
	g.logger.Info().
		Str("provider", provider.Name()).
		Str("transaction_ref", vp.TransactionRef).
		Str("room_id", grant.RoomID.String()).
		Msg("payment confirmed, room unlocked")

	g.notify(ctx, grant)
	return nil
}

func (g *Gateway) notify(ctx context.Context, grant *models.AccessGrant) {
	if g.dedup != nil {
		first, err := g.dedup.MarkNotified(ctx, grant.TransactionRef)
		if err != nil {
			g.logger.Warn().Err(err).Msg("notification dedup check failed")
		} else if !first {
			return
		}
	}
	g.notifier.PaymentSucceeded(grant.ClientID, grant.RoomID)
}

// handleFailure marks the grant failed when the callback names a
// transaction we know about and the failure is definitive.
func (g *Gateway) handleFailure(ctx context.Context, provider Provider, cb Callback, verr error) {
	metrics.PaymentsConfirmed.WithLabelValues(provider.Name(), "rejected").Inc()

	ref := failedTransactionRef(cb, verr)
	if ref == "" {
		g.logger.Warn().Err(verr).Str("provider", provider.Name()).Msg("payment verification rejected")
		return
	}

	if err := g.ledger.ConfirmFailure(ctx, ref); err != nil && !errors.Is(err, ledger.ErrUnknownTransaction) {
		g.logger.Error().Err(err).Str("transaction_ref", ref).Msg("failed to mark grant failed")
		return
	}
	g.logger.Info().
		Err(verr).
		Str("provider", provider.Name()).
		Str("transaction_ref", ref).
		Msg("payment verification failed, grant marked failed")
}

func failedTransactionRef(cb Callback, verr error) string {
	var failed *FailedPayment
	if errors.As(verr, &failed) {
		return failed.TransactionRef
	}
	// Signature failures never identify a trustworthy transaction.
	if errors.Is(verr, ErrSignatureInvalid) || errors.Is(verr, ErrMalformedCallback) {
		return ""
	}
	if ref := cb.Params["oid"]; ref != "" {
		return ref
	}
	return cb.Params["transaction_id"]
}
