package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how old a webhook timestamp may be before the
// delivery is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

// EventSucceeded and EventFailed are the webhook event types the adapter
// acts on; everything else is ignored.
const (
	EventSucceeded = "payment_intent.succeeded"
	EventFailed    = "payment_intent.payment_failed"
)

// StripeProvider verifies server-to-server webhook pushes. The signature
// header has the form "t=<unix>,v1=<hex hmac-sha256>" computed over
// "<t>.<body>" with the shared webhook secret.
type StripeProvider struct {
	secret []byte
	now    func() time.Time
}

// NewStripeProvider creates a provider with the shared webhook secret.
func NewStripeProvider(secret string) *StripeProvider {
	return &StripeProvider{secret: []byte(secret), now: time.Now}
}

// Name returns the provider identifier.
func (p *StripeProvider) Name() string { return "stripe" }

// webhookEvent is the subset of the webhook payload the adapter reads.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Metadata struct {
				TransactionRef string `json:"transaction_ref"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Verify checks the webhook signature and amount, returning the verified
// payment for a succeeded event. A payment_failed event returns a
// *FailedPayment error carrying the transaction reference.
func (p *StripeProvider) Verify(ctx context.Context, cb Callback) (*VerifiedPayment, error) {
	if err := p.checkSignature(cb.Payload, cb.Signature); err != nil {
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(cb.Payload, &event); err != nil {
		return nil, ErrMalformedCallback
	}
	ref := event.Data.Object.Metadata.TransactionRef
	if ref == "" {
		return nil, ErrMalformedCallback
	}

	switch event.Type {
	case EventSucceeded:
		if event.Data.Object.Amount != UnlockPriceMinor {
			return nil, fmt.Errorf("%w: got %d minor units", ErrInvalidAmount, event.Data.Object.Amount)
		}
		return &VerifiedPayment{
			TransactionRef: ref,
			ProviderRef:    event.Data.Object.ID,
			Amount:         UnlockPrice,
		}, nil
	case EventFailed:
		return nil, &FailedPayment{TransactionRef: ref}
	default:
		return nil, fmt.Errorf("%w: unhandled event type %q", ErrMalformedCallback, event.Type)
	}
}

// FailedPayment reports a provider-confirmed failure for a known
// transaction, letting the gateway mark the grant failed.
type FailedPayment struct {
	TransactionRef string
}

func (e *FailedPayment) Error() string {
	return "payment failed for transaction " + e.TransactionRef
}

func (p *StripeProvider) checkSignature(payload []byte, header string) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, _ = strconv.ParseInt(v, 10, 64)
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return ErrSignatureInvalid
	}

	age := p.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	given, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureInvalid
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(given, want) {
		return ErrSignatureInvalid
	}
	return nil
}
