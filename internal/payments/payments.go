// Package payments normalizes the three inbound payment confirmation shapes
// (signed webhook push, redirect callback with server-side verification,
// token-verify API call) into one idempotent ledger confirmation.
package payments

import (
	"context"
	"errors"
)

// UnlockPrice is the single fixed fee, shared by all providers and the UI,
// that a client pays to unlock a room's contact details and chat.
const UnlockPrice = 30.00

// UnlockPriceMinor is the unlock price in the minor currency unit (paisa),
// used by providers that report amounts as integers.
const UnlockPriceMinor = 3000

var (
	// ErrSignatureInvalid signals a webhook signature that does not verify.
	ErrSignatureInvalid = errors.New("invalid signature")

	// ErrInvalidAmount signals a paid amount that does not equal the
	// fixed unlock price.
	ErrInvalidAmount = errors.New("amount does not match unlock price")

	// ErrVerificationFailed signals a non-affirmative response from the
	// provider's verification endpoint.
	ErrVerificationFailed = errors.New("provider verification failed")

	// ErrMalformedCallback signals a callback missing required fields.
	ErrMalformedCallback = errors.New("malformed payment callback")
)

// Callback carries the raw inbound confirmation before verification.
// Stripe-style webhooks populate Payload and Signature; redirect callbacks
// and token verifications populate Params.
type Callback struct {
	Payload   []byte
	Signature string
	Params    map[string]string
}

// VerifiedPayment is a confirmation that passed the provider's
// verification and the amount check. Only verified payments reach the
// ledger.
type VerifiedPayment struct {
	TransactionRef string
	ProviderRef    string
	Amount         float64
}

// Provider verifies one provider's callback shape. Verification always
// fails closed: ambiguous or unverifiable input yields an error, never a
// VerifiedPayment.
type Provider interface {
	Name() string
	Verify(ctx context.Context, cb Callback) (*VerifiedPayment, error)
}
