package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/samirchapagain/FindMyRoom/internal/api"
	"github.com/samirchapagain/FindMyRoom/internal/chat"
	"github.com/samirchapagain/FindMyRoom/internal/config"
	"github.com/samirchapagain/FindMyRoom/internal/handlers"
	"github.com/samirchapagain/FindMyRoom/internal/ledger"
	"github.com/samirchapagain/FindMyRoom/internal/notify"
	"github.com/samirchapagain/FindMyRoom/internal/payments"
	"github.com/samirchapagain/FindMyRoom/internal/store"
	"github.com/samirchapagain/FindMyRoom/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Primary store: PostgreSQL, with a SQLite fallback for local work
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Redis is optional: rate limiting, unread caching, notify dedup
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Domain services
	accessLedger := ledger.New(db)
	chatSvc := chat.NewService(db, redisStore, logger)

	hub := ws.NewHub(logger)
	mailer := notify.NewLogMailer(logger)
	relay := notify.NewRelay(hub, db, mailer, logger)

	var dedup payments.Deduper
	if redisStore != nil {
		dedup = redisStore
	}
	gateway := payments.NewGateway(accessLedger, relay, dedup, logger)

	sessions := ws.NewSessionServer(hub, chatSvc, accessLedger, db, relay, logger)

	h := handlers.NewHandler(handlers.Deps{
		PG:       db,
		Redis:    redisStore,
		Ledger:   accessLedger,
		Chat:     chatSvc,
		Gateway:  gateway,
		Stripe:   payments.NewStripeProvider(cfg.StripeWebhookSecret),
		Esewa:    payments.NewEsewaProvider(cfg.EsewaMerchantCode, cfg.EsewaVerifyURL),
		Khalti:   payments.NewKhaltiProvider(cfg.KhaltiSecretKey, cfg.KhaltiVerifyURL),
		Sessions: sessions,
		Hub:      hub,
		Notifier: relay,
		Logger:   logger,
	})

	// Create router
	router := api.NewRouter(cfg, logger, h, db, redisStore)

	// Create server. No WriteTimeout: WebSocket sessions outlive any
	// sane value and manage their own write deadlines.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
