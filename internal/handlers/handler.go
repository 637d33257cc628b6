package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/api/middleware"
	"github.com/samirchapagain/FindMyRoom/internal/chat"
	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/models"
	"github.com/samirchapagain/FindMyRoom/internal/payments"
	"github.com/samirchapagain/FindMyRoom/internal/store"
	"github.com/samirchapagain/FindMyRoom/internal/ws"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	pg       store.DataStore
	redis    *store.RedisStore
	ledger   *ledger.Ledger
	chat     *chat.Service
	gateway  *payments.Gateway
	stripe   payments.Provider
	esewa    payments.Provider
	khalti   payments.Provider
	sessions *ws.SessionServer
	hub      *ws.Hub
	notifier ws.MessageNotifier
	logger   zerolog.Logger
}

// Deps bundles the handler dependencies so construction stays readable.
type Deps struct {
	PG       store.DataStore
	Redis    *store.RedisStore
	Ledger   *ledger.Ledger
	Chat     *chat.Service
	Gateway  *payments.Gateway
	Stripe   payments.Provider
	Esewa    payments.Provider
	Khalti   payments.Provider
	Sessions *ws.SessionServer
	Hub      *ws.Hub
	Notifier ws.MessageNotifier
	Logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		pg:       d.PG,
		redis:    d.Redis,
		ledger:   d.Ledger,
		chat:     d.Chat,
		gateway:  d.Gateway,
		stripe:   d.Stripe,
		esewa:    d.Esewa,
		khalti:   d.Khalti,
		sessions: d.Sessions,
		hub:      d.Hub,
		notifier: d.Notifier,
		logger:   d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// identity pulls the authenticated identity set by the auth middleware.
func (h *Handler) identity(r *http.Request) *models.Identity {
	return middleware.GetIdentityFromContext(r.Context())
}
