package app

import (
	"fmt"
	"log/slog"

	"github.com/boilerkit/boilerkit/internal/captcha"
	"github.com/boilerkit/boilerkit/internal/config"
	"github.com/boilerkit/boilerkit/internal/db"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/service"
	"github.com/boilerkit/boilerkit/internal/service/payment"
	"github.com/boilerkit/boilerkit/internal/storage"
	"github.com/jmoiron/sqlx"
)

type App struct {
	Cfg                 *config.Config
	DB                  *sqlx.DB
	AuthService         *service.AuthService
	UserService         *service.UserService
	EmailService        *service.EmailService
	VerificationService *service.VerificationService
	SubscriptionService *service.SubscriptionService
	PaymentProvider     payment.Provider
	CaptchaVerifier     captcha.Verifier
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	verificationTokenRepository := repository.NewVerificationTokenRepository(database)
	passwordResetTokenRepository := repository.NewPasswordResetTokenRepository(database)
	subscriptionRepository := repository.NewSubscriptionRepository(database)

	// Storage
	objectStorage, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	subscriptionService := service.NewSubscriptionService(subscriptionRepository)

	var paymentProvider payment.Provider
	if cfg.StripeSecretKey != "" {
		paymentProvider, err = payment.NewProvider(cfg, subscriptionService)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize payment provider: %v", err)
		}
	} else {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required in production")
		}
		slog.Warn("no payment provider configured, billing endpoints disabled")
	}

	verificationService := service.NewVerificationService(
		verificationTokenRepository,
		passwordResetTokenRepository,
		userRepository,
		emailService,
		cfg.TokenEmailVerifyExpiry,
		cfg.TokenPasswordResetExpiry,
		cfg.EmailVerifyCooldown,
		cfg.PasswordResetCooldown,
	)
	authService := service.NewAuthService(
		userRepository,
		subscriptionService,
		verificationService,
		cfg.JWTSecret,
		cfg.IsProduction(),
		cfg.SessionExpiry,
		cfg.AccessTokenExpiry,
	)
	userService := service.NewUserService(userRepository, objectStorage, subscriptionService)

	captchaVerifier := captcha.New(cfg.RecaptchaSecretKey)

	return &App{
		Cfg:                 cfg,
		DB:                  database,
		AuthService:         authService,
		UserService:         userService,
		EmailService:        emailService,
		VerificationService: verificationService,
		SubscriptionService: subscriptionService,
		PaymentProvider:     paymentProvider,
		CaptchaVerifier:     captchaVerifier,
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
