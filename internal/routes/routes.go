package routes

import (
	"net/http"

	"github.com/boilerkit/boilerkit/internal/app"
	"github.com/boilerkit/boilerkit/internal/handler"
	"github.com/boilerkit/boilerkit/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, app.VerificationService, app.UserService, app.CaptchaVerifier, app.Cfg)
	account := handler.NewAccountHandler(app.UserService, app.AuthService)
	billing := handler.NewBillingHandler(app.SubscriptionService, app.PaymentProvider)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// ============================================================================
	// AUTH (rate limited)
	// ============================================================================

	rateLimiter := middleware.RateLimitAuth()

	mux.HandleFunc("POST /api/auth/register", rateLimiter(middleware.RequireGuest(auth.Register)))
	mux.HandleFunc("POST /api/auth/login", rateLimiter(middleware.RequireGuest(auth.Login)))
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)

	// Email verification
	mux.HandleFunc("GET /api/auth/verify-email", auth.VerifyEmail)
	mux.HandleFunc("POST /api/auth/resend-verification", rateLimiter(auth.ResendVerification))
	mux.HandleFunc("GET /api/auth/verification-cooldown", auth.VerificationCooldown)

	// Password reset
	mux.HandleFunc("POST /api/auth/forgot-password", rateLimiter(auth.RequestPasswordReset))
	mux.HandleFunc("POST /api/auth/reset-password", rateLimiter(auth.ResetPassword))

	// Signup helpers
	mux.HandleFunc("POST /api/auth/password-strength", auth.PasswordStrength)

	// OAuth
	mux.HandleFunc("GET /api/auth/google", rateLimiter(middleware.RequireGuest(auth.GoogleAuth)))
	mux.HandleFunc("GET /api/auth/google/callback", rateLimiter(auth.GoogleCallback))

	// ============================================================================
	// ACCOUNT
	// ============================================================================

	// Session is enough to see your own account and finish verification
	mux.HandleFunc("GET /api/account/me", middleware.RequireAuth(account.Me))

	// Everything else needs a verified email and a live access token
	mux.HandleFunc("POST /api/account/password", middleware.RequireVerified(account.UpdatePassword))
	mux.HandleFunc("PATCH /api/account/profile", middleware.RequireVerified(account.UpdateProfile))
	mux.HandleFunc("POST /api/account/profile-picture/upload-url", middleware.RequireVerified(account.ProfilePictureUploadURL))
	mux.HandleFunc("PUT /api/account/profile-picture", middleware.RequireVerified(account.SetProfilePicture))
	mux.HandleFunc("GET /api/account/profile-picture", middleware.RequireVerified(account.ProfilePictureURL))
	mux.HandleFunc("DELETE /api/account", middleware.RequireVerified(account.DeleteAccount))

	// ============================================================================
	// BILLING
	// ============================================================================

	mux.HandleFunc("GET /api/billing/plans", billing.Plans)
	mux.HandleFunc("GET /api/billing/subscription", middleware.RequireVerified(billing.Subscription))
	mux.HandleFunc("POST /api/billing/checkout", middleware.RequireVerified(billing.CreateCheckout))
	mux.HandleFunc("GET /api/billing/portal", middleware.RequireVerified(billing.CustomerPortal))

	// Payment provider webhook (signature-verified, no session)
	mux.HandleFunc("POST /webhooks/payment", billing.Webhook)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.Session(app.AuthService, app.UserService),
	)

	return handler
}
