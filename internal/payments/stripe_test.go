package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signedHeader(t *testing.T, secret string, ts time.Time, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func succeededPayload(ref string, amount int) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "amount": %d, "metadata": {"transaction_ref": %q}}}
	}`, amount, ref))
}

func testStripeProvider(now time.Time) *StripeProvider {
	p := NewStripeProvider(testWebhookSecret)
	p.now = func() time.Time { return now }
	return p
}

func TestStripeVerifyAcceptsSignedSucceededEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testStripeProvider(now)
	payload := succeededPayload("txn-1", UnlockPriceMinor)

	vp, err := p.Verify(context.Background(), Callback{
		Payload:   payload,
		Signature: signedHeader(t, testWebhookSecret, now, payload),
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-1", vp.TransactionRef)
	assert.Equal(t, "pi_123", vp.ProviderRef)
	assert.Equal(t, UnlockPrice, vp.Amount)
}

func TestStripeVerifySignatureFailures(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := succeededPayload("txn-1", UnlockPriceMinor)

	tests := []struct {
		name      string
		signature string
	}{
		{"wrong secret", signedHeader(t, "whsec_other", now, payload)},
		{"stale timestamp", signedHeader(t, testWebhookSecret, now.Add(-6*time.Minute), payload)},
		{"future timestamp", signedHeader(t, testWebhookSecret, now.Add(6*time.Minute), payload)},
		{"missing parts", "v1=deadbeef"},
		{"garbage", "not-a-signature"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testStripeProvider(now)
			_, err := p.Verify(context.Background(), Callback{Payload: payload, Signature: tt.signature})
			assert.ErrorIs(t, err, ErrSignatureInvalid)
		})
	}
}

func TestStripeVerifyTamperedPayload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testStripeProvider(now)
	payload := succeededPayload("txn-1", UnlockPriceMinor)
	sig := signedHeader(t, testWebhookSecret, now, payload)

	tampered := succeededPayload("txn-other", UnlockPriceMinor)
	_, err := p.Verify(context.Background(), Callback{Payload: tampered, Signature: sig})
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestStripeVerifyRejectsWrongAmount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testStripeProvider(now)
	payload := succeededPayload("txn-1", 100)

	_, err := p.Verify(context.Background(), Callback{
		Payload:   payload,
		Signature: signedHeader(t, testWebhookSecret, now, payload),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestStripeVerifyFailedEventCarriesRef(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testStripeProvider(now)
	payload := []byte(`{
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_123", "amount": 3000, "metadata": {"transaction_ref": "txn-1"}}}
	}`)

	_, err := p.Verify(context.Background(), Callback{
		Payload:   payload,
		Signature: signedHeader(t, testWebhookSecret, now, payload),
	})
	var failed *FailedPayment
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "txn-1", failed.TransactionRef)
}

func TestStripeVerifyRejectsMissingRefAndUnknownType(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testStripeProvider(now)

	noRef := []byte(`{"type": "payment_intent.succeeded", "data": {"object": {"id": "pi_1", "amount": 3000}}}`)
	_, err := p.Verify(context.Background(), Callback{
		Payload:   noRef,
		Signature: signedHeader(t, testWebhookSecret, now, noRef),
	})
	assert.ErrorIs(t, err, ErrMalformedCallback)

	otherType := []byte(`{
		"type": "charge.refunded",
		"data": {"object": {"id": "pi_1", "amount": 3000, "metadata": {"transaction_ref": "txn-1"}}}
	}`)
	_, err = p.Verify(context.Background(), Callback{
		Payload:   otherType,
		Signature: signedHeader(t, testWebhookSecret, now, otherType),
	})
	assert.ErrorIs(t, err, ErrMalformedCallback)
}
