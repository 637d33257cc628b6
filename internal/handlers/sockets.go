package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ChatSocket upgrades to a room chat session. Authorization happens inside
// the session server before the upgrade.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	h.sessions.ServeRoom(w, r, identity, roomID)
}

// NotificationsSocket upgrades to a personal notification session.
func (h *Handler) NotificationsSocket(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.sessions.ServeNotifications(w, r, identity)
}
