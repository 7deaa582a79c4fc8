package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/boilerkit/boilerkit/internal/captcha"
	"github.com/boilerkit/boilerkit/internal/config"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/service"
	"github.com/boilerkit/boilerkit/internal/validation"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type authHandler struct {
	authService         *service.AuthService
	verificationService *service.VerificationService
	userService         *service.UserService
	captchaVerifier     captcha.Verifier
	googleOAuthConfig   *oauth2.Config
	appURL              string
	isProduction        bool
}

func NewAuthHandler(
	authService *service.AuthService,
	verificationService *service.VerificationService,
	userService *service.UserService,
	captchaVerifier captcha.Verifier,
	cfg *config.Config,
) *authHandler {
	return &authHandler{
		authService:         authService,
		verificationService: verificationService,
		userService:         userService,
		captchaVerifier:     captchaVerifier,
		googleOAuthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.AppURL + "/api/auth/google/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		appURL:       cfg.AppURL,
		isProduction: cfg.IsProduction(),
	}
}

// Register creates an account. An already-registered email gets the same
// generic response as success so the endpoint cannot be used to probe for
// accounts.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		Password     string `json:"password"`
		CaptchaToken string `json:"captcha_token"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ok, err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken)
	if err != nil {
		slog.Error("captcha verification failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Verification unavailable. Please try again.")
		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "Captcha verification failed")
		return
	}

	_, err = h.authService.Register(req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailAlreadyExists):
			// Same response as success, no enumeration
			slog.Info("registration for existing email", "email", req.Email)
		case errors.Is(err, service.ErrInvalidEmail),
			errors.Is(err, service.ErrNameRequired):
			respondError(w, http.StatusBadRequest, err.Error())
			return
		default:
			var policyErr *validation.PasswordPolicyError
			if errors.As(err, &policyErr) {
				respondJSON(w, http.StatusBadRequest, map[string]any{
					"error":        policyErr.Error(),
					"requirements": validation.CheckPassword(req.Password),
				})
				return
			}
			slog.Error("registration failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Registration failed. Please try again.")
			return
		}
	}

	respondMessage(w, http.StatusCreated, "Account created. Check your email to verify your address.")
}

// Login verifies credentials and establishes the session: a long-lived
// session cookie and a fresh access token cookie.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.authService.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		slog.Error("login failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}

	sessionToken, err := h.authService.GenerateSessionToken(user)
	if err != nil {
		slog.Error("failed to generate session token", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}

	accessToken, err := h.authService.GenerateAccessToken(user)
	if err != nil {
		slog.Error("failed to generate access token", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}

	h.authService.SetSessionCookie(w, sessionToken)
	h.authService.SetAccessCookie(w, accessToken)

	slog.Info("user logged in", "user_id", user.ID)
	respondJSON(w, http.StatusOK, user.Public())
}

func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.ClearAuthCookies(w)
	respondMessage(w, http.StatusOK, "Logged out")
}

// VerifyEmail redeems an email-verification token. The token comes from the
// emailed link and works exactly once.
func (h *authHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "Missing token")
		return
	}

	user, err := h.verificationService.VerifyEmail(token)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalidOrExpired) {
			respondError(w, http.StatusNotFound, "Invalid or expired verification link")
			return
		}
		slog.Error("email verification failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Verification failed. Please try again.")
		return
	}

	// Refresh the access token so email_verified takes effect immediately
	accessToken, err := h.authService.GenerateAccessToken(user)
	if err == nil {
		h.authService.SetAccessCookie(w, accessToken)
	}

	slog.Info("email verified", "user_id", user.ID)
	respondMessage(w, http.StatusOK, "Email verified")
}

// ResendVerification issues a new verification token for an unverified
// account. Unlike password-reset requests this endpoint is explicit about
// the account's state: it serves logged-in users chasing their own email.
func (h *authHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = validation.ValidateEmail(strings.TrimSpace(req.Email))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Please provide a valid email address")
		return
	}

	err = h.verificationService.ResendEmailVerification(req.Email)
	if err != nil {
		var cooldownErr *service.CooldownError
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrAlreadyVerified):
			respondError(w, http.StatusConflict, "Email is already verified")
		case errors.As(err, &cooldownErr):
			respondJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":        cooldownErr.Error(),
				"retry_in_sec": cooldownErr.RemainingSeconds(),
			})
		default:
			slog.Error("resend verification failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Could not send verification email. Please try again.")
		}
		return
	}

	respondMessage(w, http.StatusOK, "Verification email sent")
}

// VerificationCooldown reports how long until another verification email may
// be requested for the address, in milliseconds. Zero means ready.
func (h *authHandler) VerificationCooldown(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))

	err := validation.ValidateEmail(email)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Please provide a valid email address")
		return
	}

	remaining, err := h.verificationService.EmailVerificationCooldown(email)
	if err != nil {
		slog.Error("cooldown lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not check cooldown")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{
		"cooldown_ms": remaining.Milliseconds(),
	})
}

// RequestPasswordReset always answers with the same generic message, whether
// or not the email belongs to an account.
func (h *authHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		CaptchaToken string `json:"captcha_token"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = validation.ValidateEmail(strings.TrimSpace(req.Email))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Please provide a valid email address")
		return
	}

	ok, err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken)
	if err != nil {
		slog.Error("captcha verification failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Verification unavailable. Please try again.")
		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "Captcha verification failed")
		return
	}

	err = h.verificationService.IssuePasswordReset(req.Email)
	if err != nil {
		var cooldownErr *service.CooldownError
		if errors.As(err, &cooldownErr) {
			respondJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":        cooldownErr.Error(),
				"retry_in_sec": cooldownErr.RemainingSeconds(),
			})
			return
		}
		// Don't reveal specific errors to prevent email enumeration
		slog.Warn("password reset request failed", "error", err)
	}

	respondMessage(w, http.StatusOK, "If an account exists for that address, a reset link is on its way.")
}

// ResetPassword redeems a password-reset token and rotates the credential.
func (h *authHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.verificationService.ResetPassword(req.Token, req.Password)
	if err != nil {
		var policyErr *validation.PasswordPolicyError
		switch {
		case errors.Is(err, service.ErrTokenInvalidOrExpired):
			respondError(w, http.StatusNotFound, "Invalid or expired reset link")
		case errors.Is(err, service.ErrPasswordReuse):
			respondError(w, http.StatusBadRequest, "New password must be different from your current password")
		case errors.As(err, &policyErr):
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":        policyErr.Error(),
				"requirements": validation.CheckPassword(req.Password),
			})
		default:
			slog.Error("password reset failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Password reset failed. Please try again.")
		}
		return
	}

	respondMessage(w, http.StatusOK, "Password reset. You can now log in with your new password.")
}

// PasswordStrength evaluates a candidate password without storing anything.
// Used by signup forms for live feedback.
func (h *authHandler) PasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"requirements": validation.CheckPassword(req.Password),
		"strength":     validation.PasswordStrength(req.Password),
		"valid":        validation.IsPasswordValid(req.Password),
	})
}

// GoogleAuth redirects user to Google OAuth consent screen
func (h *authHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	// Generate secure state token for CSRF protection
	state := generateOAuthState()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600, // 10 minutes
	})

	url := h.googleOAuthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback handles the OAuth callback from Google
func (h *authHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// Validate state parameter for CSRF protection
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie("oauth_state")
	if err != nil || cookie.Value != state || state == "" {
		slog.Warn("google oauth state validation failed", "error", err)
		h.oauthFailure(w, r)
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("google oauth callback missing code")
		h.oauthFailure(w, r)
		return
	}

	token, err := h.googleOAuthConfig.Exchange(context.Background(), code)
	if err != nil {
		slog.Error("google oauth token exchange failed", "error", err)
		h.oauthFailure(w, r)
		return
	}

	client := h.googleOAuthConfig.Client(context.Background(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		slog.Error("failed to get google user info", "error", err)
		h.oauthFailure(w, r)
		return
	}
	defer resp.Body.Close()

	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	err = json.NewDecoder(resp.Body).Decode(&userInfo)
	if err != nil {
		slog.Error("failed to decode google user info", "error", err)
		h.oauthFailure(w, r)
		return
	}

	user, err := h.authService.AuthenticateOAuth(userInfo.Email, userInfo.Name, "google")
	if err != nil {
		slog.Error("oauth authentication failed", "error", err, "email", userInfo.Email)
		h.oauthFailure(w, r)
		return
	}

	sessionToken, err := h.authService.GenerateSessionToken(user)
	if err != nil {
		slog.Error("failed to generate session token", "error", err, "user_id", user.ID)
		h.oauthFailure(w, r)
		return
	}

	accessToken, err := h.authService.GenerateAccessToken(user)
	if err != nil {
		slog.Error("failed to generate access token", "error", err, "user_id", user.ID)
		h.oauthFailure(w, r)
		return
	}

	h.authService.SetSessionCookie(w, sessionToken)
	h.authService.SetAccessCookie(w, accessToken)

	slog.Info("user logged in with google oauth", "user_id", user.ID)
	http.Redirect(w, r, h.appURL+"/dashboard", http.StatusSeeOther)
}

func (h *authHandler) oauthFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.appURL+"/login?error=oauth", http.StatusSeeOther)
}

// generateOAuthState creates a random state token for OAuth CSRF protection
func generateOAuthState() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
