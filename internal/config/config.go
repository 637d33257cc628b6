package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string
	SQLitePath  string // fallback store when DATABASE_URL is unset

	// Auth
	JWTSecret string

	// Payment providers
	StripeWebhookSecret string
	EsewaMerchantCode   string
	EsewaVerifyURL      string
	KhaltiSecretKey     string
	KhaltiVerifyURL     string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/findmyroom.db"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),

		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		EsewaMerchantCode:   getEnv("ESEWA_MERCHANT_CODE", "EPAYTEST"),
		EsewaVerifyURL:      getEnv("ESEWA_VERIFY_URL", "https://uat.esewa.com.np/epay/transrec"),
		KhaltiSecretKey:     os.Getenv("KHALTI_SECRET_KEY"),
		KhaltiVerifyURL:     getEnv("KHALTI_VERIFY_URL", "https://khalti.com/api/v2/payment/verify/"),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require the external stores and secrets
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.JWTSecret == "" || cfg.JWTSecret == "dev-secret" {
			panic("JWT_SECRET is required in production")
		}
		if cfg.StripeWebhookSecret == "" {
			panic("STRIPE_WEBHOOK_SECRET is required in production")
		}
		if cfg.KhaltiSecretKey == "" {
			panic("KHALTI_SECRET_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
