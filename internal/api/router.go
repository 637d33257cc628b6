package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/api/middleware"
	"github.com/samirchapagain/FindMyRoom/internal/config"
	"github.com/samirchapagain/FindMyRoom/internal/handlers"
	"github.com/samirchapagain/FindMyRoom/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *handlers.Handler, pg store.DataStore, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; without it the limiter is skipped.
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.Env == "production",
		})
		r.Use(limiter.Middleware)
	}

	// CORS - browsers call from the frontend origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(pg, cfg.JWTSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// Provider-facing confirmation endpoints. Stripe authenticates with
	// the webhook signature; eSewa's redirect is verified server-side.
	r.Post("/payments/stripe/webhook", h.StripeWebhook)
	r.Get("/payments/esewa/callback", h.EsewaCallback)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/unlock/intent", h.UnlockIntent)
		r.Post("/payments/khalti/verify", h.KhaltiVerify)

		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}/messages", h.GetMessages)
		r.Post("/messages", h.SendMessage)
		r.Post("/messages/read", h.MarkRead)
		r.Get("/messages/unread-count", h.UnreadCount)
		r.Get("/rooms/{id}/contact", h.RoomContact)

		r.Get("/ws/chat/{roomID}", h.ChatSocket)
		r.Get("/ws/notifications", h.NotificationsSocket)
	})

	return r
}
