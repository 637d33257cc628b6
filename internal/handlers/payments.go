package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/payments"
)

// maxWebhookBody bounds inbound confirmation payloads.
const maxWebhookBody = 64 * 1024

// StripeWebhook handles signed webhook pushes. The signature is checked
// before anything in the payload is trusted; an invalid signature is a 400
// so the sender retries, everything else is acknowledged.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	cb := payments.Callback{
		Payload:   payload,
		Signature: r.Header.Get("Stripe-Signature"),
	}

	err = h.gateway.Process(r.Context(), h.stripe, cb)
	switch {
	case err == nil:
		h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, payments.ErrSignatureInvalid), errors.Is(err, payments.ErrMalformedCallback):
		h.Error(w, http.StatusBadRequest, "invalid webhook")
	default:
		// Verification failures and provider-reported failures are fully
		// processed; acknowledge so the sender stops redelivering.
		h.JSON(w, http.StatusOK, map[string]string{"status": "processed"})
	}
}

// EsewaCallback handles the browser redirect after an eSewa payment. The
// query parameters are untrusted; the gateway verifies against the
// provider before the grant moves.
func (h *Handler) EsewaCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := payments.Callback{
		Params: map[string]string{
			"oid":   q.Get("oid"),
			"amt":   q.Get("amt"),
			"refId": q.Get("refId"),
		},
	}

	if err := h.gateway.Process(r.Context(), h.esewa, cb); err != nil {
		h.paymentFailure(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// KhaltiVerifyRequest represents the client-posted token verification body.
type KhaltiVerifyRequest struct {
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// KhaltiVerify handles token verification for a Khalti payment. The caller
// is authenticated, but the token is still verified server-to-server.
func (h *Handler) KhaltiVerify(w http.ResponseWriter, r *http.Request) {
	if h.identity(r) == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req KhaltiVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cb := payments.Callback{
		Params: map[string]string{
			"token":          req.Token,
			"amount":         req.Amount,
			"transaction_id": req.TransactionID,
		},
	}

	if err := h.gateway.Process(r.Context(), h.khalti, cb); err != nil {
		h.paymentFailure(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// paymentFailure maps gateway errors to caller-facing responses. The
// message stays generic; no partial state leaks.
func (h *Handler) paymentFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrMalformedCallback):
		h.Error(w, http.StatusBadRequest, "malformed payment callback")
	case errors.Is(err, ledger.ErrUnknownTransaction):
		h.Error(w, http.StatusNotFound, "unknown transaction")
	default:
		h.Error(w, http.StatusPaymentRequired, "payment verification failed")
	}
}
