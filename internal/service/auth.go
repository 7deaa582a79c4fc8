package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/validation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrNameRequired       = errors.New("name is required")
)

const (
	SessionCookieName = "session_token"
	AccessCookieName  = "access_token"
)

// dummyPasswordHash is compared against when the email is unknown or the
// account is passwordless, so those paths cost the same as a real mismatch
// and the failure is indistinguishable from a wrong password.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService mediates credential login and issues the two JWTs that make up
// a session: a long-lived session token and a short-lived access token with
// its own jti, regenerated on every session refresh.
type AuthService struct {
	userRepository      repository.UserRepository
	subscriptionService *SubscriptionService
	verificationService *VerificationService
	jwtSecret           string
	isProduction        bool
	sessionExpiry       time.Duration
	accessTokenExpiry   time.Duration
}

func NewAuthService(
	userRepository repository.UserRepository,
	subscriptionService *SubscriptionService,
	verificationService *VerificationService,
	jwtSecret string,
	isProduction bool,
	sessionExpiry time.Duration,
	accessTokenExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepository:      userRepository,
		subscriptionService: subscriptionService,
		verificationService: verificationService,
		jwtSecret:           jwtSecret,
		isProduction:        isProduction,
		sessionExpiry:       sessionExpiry,
		accessTokenExpiry:   accessTokenExpiry,
	}
}

// Register creates an account with a hashed credential and issues the first
// email-verification token. Callers must treat ErrEmailAlreadyExists the same
// as success toward the client to avoid confirming account existence.
func (s *AuthService) Register(name, email, password string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	err = validation.ValidateName(name)
	if err != nil {
		return nil, ErrNameRequired
	}

	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepository.ByEmail(email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyExists
	}

	passwordHash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: &passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.userRepository.Create(user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	err = s.subscriptionService.CreateFreeSubscription(user.ID)
	if err != nil {
		slog.Warn("failed to create free subscription", "error", err, "user_id", user.ID)
		// Don't fail registration
	}

	err = s.verificationService.IssueEmailVerification(email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification token: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate checks a submitted credential against the stored hash. Unknown
// emails, passwordless accounts, and wrong passwords all return the same
// ErrInvalidCredentials, with a dummy hash comparison on the miss paths so
// timing does not reveal which case occurred. The password hash never leaves
// this method.
func (s *AuthService) Authenticate(email, password string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	err = s.ComparePassword(password, *user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user.PasswordHash = nil
	return user, nil
}

// AuthenticateOAuth handles Google sign-in: creates the account on first
// login and marks the email verified, since the provider has verified it.
func (s *AuthService) AuthenticateOAuth(email, name, provider string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to lookup user: %w", err)
		}

		now := time.Now()
		user = &model.User{
			ID:              uuid.New().String(),
			Name:            strings.TrimSpace(name),
			Email:           email,
			EmailVerifiedAt: &now,
			CreatedAt:       now,
			UpdatedAt:       now,
			// password_hash is NULL for OAuth accounts
		}

		err = s.userRepository.Create(user)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		err = s.subscriptionService.CreateFreeSubscription(user.ID)
		if err != nil {
			slog.Warn("failed to create free subscription", "error", err, "user_id", user.ID)
		}

		slog.Info("new OAuth user created", "user_id", user.ID, "provider", provider)
		return user, nil
	}

	if user.EmailVerifiedAt == nil {
		now := time.Now()
		user.EmailVerifiedAt = &now
		err = s.userRepository.Update(user)
		if err != nil {
			slog.Warn("failed to mark email as verified", "error", err, "user_id", user.ID)
			// Don't fail login
		}
	}

	slog.Info("user authenticated via OAuth", "user_id", user.ID, "provider", provider)
	return user, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateSessionToken signs the long-lived session JWT. Its expiry is
// independent of the access token's.
func (s *AuthService) GenerateSessionToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"iat":     now.Unix(),
		"exp":     now.Add(s.sessionExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// GenerateAccessToken signs the short-lived access credential with a fresh
// jti. It is regenerated on every session refresh, so a stolen access token
// stays usable for at most its own expiry even while the session lives on.
func (s *AuthService) GenerateAccessToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":    user.ID,
		"sub":   user.ID,
		"email": user.Email,
		"jti":   uuid.New().String(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTokenExpiry).Unix(),
	}
	if user.EmailVerifiedAt != nil {
		claims["email_verified"] = user.EmailVerifiedAt.Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *AuthService) verifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// VerifySessionToken returns the session's user id.
func (s *AuthService) VerifySessionToken(tokenString string) (string, error) {
	claims, err := s.verifyToken(tokenString)
	if err != nil {
		return "", err
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("invalid session token")
	}

	return userID, nil
}

// VerifyAccessToken returns the access credential's claims.
func (s *AuthService) VerifyAccessToken(tokenString string) (jwt.MapClaims, error) {
	return s.verifyToken(tokenString)
}

func (s *AuthService) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Expires:  time.Now().Add(s.sessionExpiry),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) SetAccessCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    token,
		Expires:  time.Now().Add(s.accessTokenExpiry),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{SessionCookieName, AccessCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Unix(0, 0),
			Path:     "/",
			HttpOnly: true,
			Secure:   s.isProduction,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
