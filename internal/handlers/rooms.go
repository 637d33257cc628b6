package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ContactResponse carries the room's private contact fields.
type ContactResponse struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}

// RoomContact returns the owner's contact details for a room. Visible to
// the owner and to clients holding a success grant; everyone else gets the
// same 403 whether the room exists behind it or not.
func (h *Handler) RoomContact(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
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

	allowed := identity.IsOwner && room.OwnerID == identity.ID
	if !allowed && identity.IsClient {
		unlocked, err := h.ledger.IsUnlocked(r.Context(), identity.ID, roomID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		allowed = unlocked
	}
	if !allowed {
		h.Error(w, http.StatusForbidden, "room is locked")
		return
	}

	owner, err := h.pg.GetUserByID(r.Context(), room.OwnerID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := ContactResponse{
		RoomID: room.ID.String(),
		Phone:  room.ContactPhone,
		Email:  room.ContactEmail,
	}
	if owner != nil {
		resp.Name = owner.Name
	}

	h.JSON(w, http.StatusOK, resp)
}
