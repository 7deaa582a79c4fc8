package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName      string
	AppEnv       string
	AppURL       string
	Port         string
	SupportEmail string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret         string
	SessionExpiry     time.Duration // outer session cookie lifetime
	AccessTokenExpiry time.Duration // inner access credential lifetime

	// Verification tokens
	TokenEmailVerifyExpiry   time.Duration
	TokenPasswordResetExpiry time.Duration
	EmailVerifyCooldown      time.Duration
	PasswordResetCooldown    time.Duration

	// Bot verification
	RecaptchaSecretKey string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Payment - Stripe
	StripeSecretKey                  string
	StripeWebhookSecret              string
	StripePriceIDStarterMonthly      string
	StripePriceIDStarterYearly       string
	StripePriceIDProfessionalMonthly string
	StripePriceIDProfessionalYearly  string
	StripePriceIDEnterpriseMonthly   string
	StripePriceIDEnterpriseYearly    string

	// Observability (optional)
	SentryDSN string

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	S3Region              string
	S3Bucket              string
	S3AccessKey           string
	S3SecretKey           string
	S3Endpoint            string        // Optional: for S3-compatible services
	S3PresignExpiryUpload time.Duration // Expiry for profile-picture upload URLs
	S3PresignExpiryGet    time.Duration // Expiry for download URLs
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:      envString("APP_NAME", "Boilerkit"),
		AppEnv:       envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:       envRequired("APP_URL"), // Required: base URL for email links and OAuth redirects
		Port:         envString("PORT", "8090"),
		SupportEmail: envString("SUPPORT_EMAIL", "hello@example.com"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/boilerkit.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		// Security
		JWTSecret:         envRequired("JWT_SECRET"),
		SessionExpiry:     envDuration("SESSION_EXPIRY", 30*24*time.Hour),   // 30 days
		AccessTokenExpiry: envDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),  // 1 hour

		// Verification tokens
		TokenEmailVerifyExpiry:   envDuration("TOKEN_EMAIL_VERIFY_EXPIRY", 1*time.Hour),
		TokenPasswordResetExpiry: envDuration("TOKEN_PASSWORD_RESET_EXPIRY", 1*time.Hour),
		EmailVerifyCooldown:      envDuration("EMAIL_VERIFY_COOLDOWN", 5*time.Minute),
		PasswordResetCooldown:    envDuration("PASSWORD_RESET_COOLDOWN", 60*time.Minute),

		// Bot verification (optional in development)
		RecaptchaSecretKey: envString("RECAPTCHA_SECRET_KEY", ""),

		// OAuth
		GoogleClientID:     envString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: envString("GOOGLE_CLIENT_SECRET", ""),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Payment
		StripeSecretKey:                  envString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:              envString("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceIDStarterMonthly:      envString("STRIPE_PRICE_ID_STARTER_MONTHLY", ""),
		StripePriceIDStarterYearly:       envString("STRIPE_PRICE_ID_STARTER_YEARLY", ""),
		StripePriceIDProfessionalMonthly: envString("STRIPE_PRICE_ID_PROFESSIONAL_MONTHLY", ""),
		StripePriceIDProfessionalYearly:  envString("STRIPE_PRICE_ID_PROFESSIONAL_YEARLY", ""),
		StripePriceIDEnterpriseMonthly:   envString("STRIPE_PRICE_ID_ENTERPRISE_MONTHLY", ""),
		StripePriceIDEnterpriseYearly:    envString("STRIPE_PRICE_ID_ENTERPRISE_YEARLY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage (required for profile-picture uploads)
		S3Region:              envRequired("S3_REGION"),
		S3Bucket:              envRequired("S3_BUCKET"),
		S3AccessKey:           envRequired("S3_ACCESS_KEY"),
		S3SecretKey:           envRequired("S3_SECRET_KEY"),
		S3Endpoint:            envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
		S3PresignExpiryUpload: envDuration("S3_PRESIGN_EXPIRY_UPLOAD", 1*time.Hour),
		S3PresignExpiryGet:    envDuration("S3_PRESIGN_EXPIRY_GET", 8*time.Hour),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production
// deployments. Development allows email and captcha to fall back to log/allow
// modes for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.RecaptchaSecretKey == "" {
		slog.Error("production deployment requires RECAPTCHA_SECRET_KEY",
			"hint", "set APP_ENV=development to skip bot verification locally")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
