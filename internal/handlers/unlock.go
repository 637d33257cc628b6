package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/metrics"
	"github.com/samirchapagain/FindMyRoom/internal/payments"
)

// UnlockIntentRequest represents the unlock intent request body.
type UnlockIntentRequest struct {
	RoomID string `json:"room_id"`
}

// UnlockIntentResponse represents the pending grant handed to the payer.
type UnlockIntentResponse struct {
	TransactionID string  `json:"transaction_id"`
	RoomID        string  `json:"room_id"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
}

// UnlockIntent opens (or reopens) a pending grant for the caller and room
// and returns the transaction reference the payment providers will echo
// back. Repeated calls before payment reuse the same grant row.
func (h *Handler) UnlockIntent(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !identity.IsClient {
		h.Error(w, http.StatusForbidden, "client capability required")
		return
	}

	var req UnlockIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	room, err := h.pg.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	if room.OwnerID == identity.ID {
		h.Error(w, http.StatusBadRequest, "cannot unlock your own room")
		return
	}

	grant, err := h.ledger.RequestAccess(r.Context(), identity.ID, roomID, payments.UnlockPrice)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyUnlocked) {
			metrics.PaymentsInitiated.WithLabelValues("already_unlocked").Inc()
			h.JSON(w, http.StatusOK, map[string]string{
				"status":  "already_unlocked",
				"room_id": roomID.String(),
			})
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create unlock intent")
		return
	}

	metrics.PaymentsInitiated.WithLabelValues("created").Inc()

	h.JSON(w, http.StatusCreated, UnlockIntentResponse{
		TransactionID: grant.TransactionRef,
		RoomID:        grant.RoomID.String(),
		Amount:        grant.Amount,
		Status:        string(grant.Status),
	})
}
