package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTokenInvalidOrExpired = errors.New("token is invalid or has expired")
	ErrAlreadyVerified       = errors.New("email is already verified")
	ErrPasswordReuse         = errors.New("new password cannot be the same as the old password")
	ErrNoPassword            = errors.New("account does not have a password")
)

// CooldownError reports how long the caller must wait before a token can be
// reissued for the same subject.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d minute(s) before requesting another email", e.RemainingMinutes())
}

func (e *CooldownError) RemainingMinutes() int {
	minutes := int((e.Remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func (e *CooldownError) RemainingSeconds() int {
	return int(e.Remaining / time.Second)
}

// VerificationService issues, cools down, and redeems single-use, time-limited
// tokens for email verification and password reset. Only salted hashes are
// persisted; the raw secret goes to the email collaborator and is never stored.
type VerificationService struct {
	verificationTokens  repository.VerificationTokenRepository
	passwordResetTokens repository.PasswordResetTokenRepository
	users               repository.UserRepository
	emailService        *EmailService

	emailVerifyExpiry     time.Duration
	passwordResetExpiry   time.Duration
	emailVerifyCooldown   time.Duration
	passwordResetCooldown time.Duration
}

func NewVerificationService(
	verificationTokens repository.VerificationTokenRepository,
	passwordResetTokens repository.PasswordResetTokenRepository,
	users repository.UserRepository,
	emailService *EmailService,
	emailVerifyExpiry time.Duration,
	passwordResetExpiry time.Duration,
	emailVerifyCooldown time.Duration,
	passwordResetCooldown time.Duration,
) *VerificationService {
	return &VerificationService{
		verificationTokens:    verificationTokens,
		passwordResetTokens:   passwordResetTokens,
		users:                 users,
		emailService:          emailService,
		emailVerifyExpiry:     emailVerifyExpiry,
		passwordResetExpiry:   passwordResetExpiry,
		emailVerifyCooldown:   emailVerifyCooldown,
		passwordResetCooldown: passwordResetCooldown,
	}
}

// GenerateToken returns a cryptographically random 64-character hex secret.
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func hashToken(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func tokenPrefix(raw string) string {
	return raw[:model.TokenPrefixLength]
}

// IssueEmailVerification creates a fresh verification token for the email and
// hands the raw secret to the email collaborator. Enforces the reissue
// cooldown and guarantees at most one live token per email: any existing token
// is deleted before the new one is created.
func (s *VerificationService) IssueEmailVerification(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	existing, err := s.verificationTokens.ByEmail(email)
	if err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		return fmt.Errorf("failed to look up verification token: %w", err)
	}

	now := time.Now()
	if existing != nil {
		sinceLastSent := now.Sub(existing.LastSentAt)
		if sinceLastSent < s.emailVerifyCooldown {
			return &CooldownError{Remaining: s.emailVerifyCooldown - sinceLastSent}
		}

		err = s.verificationTokens.DeleteByEmail(email)
		if err != nil {
			return fmt.Errorf("failed to delete existing verification token: %w", err)
		}
	}

	rawToken, err := GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	tokenHash, err := hashToken(rawToken)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	token := &model.VerificationToken{
		Email:      email,
		TokenHash:  tokenHash,
		Prefix:     tokenPrefix(rawToken),
		ExpiresAt:  now.Add(s.emailVerifyExpiry),
		LastSentAt: now,
	}
	err = s.verificationTokens.Create(token)
	if err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}

	user, err := s.users.ByEmail(email)
	name := "User"
	if err == nil && user.Name != "" {
		name = user.Name
	}

	err = s.emailService.SendVerificationEmail(name, email, rawToken)
	if err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	return nil
}

// ResendEmailVerification reissues a verification token for an existing,
// unverified account.
func (s *VerificationService) ResendEmailVerification(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.ByEmail(email)
	if err != nil {
		return err
	}

	if user.IsVerified() {
		return ErrAlreadyVerified
	}

	return s.IssueEmailVerification(email)
}

// EmailVerificationCooldown returns the remaining wait before a new
// verification token can be issued for the email, or zero.
func (s *VerificationService) EmailVerificationCooldown(email string) (time.Duration, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	existing, err := s.verificationTokens.ByEmail(email)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up verification token: %w", err)
	}

	sinceLastSent := time.Since(existing.LastSentAt)
	if sinceLastSent < s.emailVerifyCooldown {
		return s.emailVerifyCooldown - sinceLastSent, nil
	}

	return 0, nil
}

// VerifyEmail redeems a raw verification token. On success the user's email is
// marked verified in the same transaction that deletes the token, so a token
// can never be both valid and already used. Any failure leaves the token in
// place.
func (s *VerificationService) VerifyEmail(rawToken string) (*model.User, error) {
	token, err := s.matchVerificationToken(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ByEmail(token.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	err = s.verificationTokens.ConsumeAndVerifyEmail(token.ID, user.ID, token.Email, now)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			// A concurrent redemption won; this one fails.
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}

	user.Email = token.Email
	user.EmailVerifiedAt = &now

	err = s.emailService.SendWelcomeEmail(user.Email, user.Name)
	if err != nil {
		slog.Warn("failed to send welcome email", "error", err, "user_id", user.ID)
	}

	slog.Info("email verified", "user_id", user.ID)
	return user, nil
}

// matchVerificationToken narrows candidates by the clear-text prefix, then
// hash-compares the full raw value. Prefix equality alone never matches.
func (s *VerificationService) matchVerificationToken(rawToken string) (*model.VerificationToken, error) {
	if len(rawToken) < model.TokenPrefixLength {
		return nil, ErrTokenInvalidOrExpired
	}

	candidates, err := s.verificationTokens.LiveByPrefix(tokenPrefix(rawToken))
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification tokens: %w", err)
	}

	for i := range candidates {
		candidate := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(candidate.TokenHash), []byte(rawToken)) == nil {
			return candidate, nil
		}
	}

	return nil, ErrTokenInvalidOrExpired
}

// IssuePasswordReset creates a password-reset token for the account owning
// the email. Unknown emails and passwordless accounts return success without
// sending anything, so responses never confirm account existence.
func (s *VerificationService) IssuePasswordReset(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			slog.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		slog.Info("password reset requested for passwordless account", "user_id", user.ID)
		return nil
	}

	existing, err := s.passwordResetTokens.ByUserID(user.ID)
	if err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		return fmt.Errorf("failed to look up password reset token: %w", err)
	}

	now := time.Now()
	if existing != nil {
		sinceCreated := now.Sub(existing.CreatedAt)
		if sinceCreated < s.passwordResetCooldown {
			return &CooldownError{Remaining: s.passwordResetCooldown - sinceCreated}
		}

		err = s.passwordResetTokens.DeleteByUserID(user.ID)
		if err != nil {
			return fmt.Errorf("failed to delete existing password reset token: %w", err)
		}
	}

	rawToken, err := GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	tokenHash, err := hashToken(rawToken)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	token := &model.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: tokenHash,
		Prefix:    tokenPrefix(rawToken),
		ExpiresAt: now.Add(s.passwordResetExpiry),
	}
	err = s.passwordResetTokens.Create(token)
	if err != nil {
		return fmt.Errorf("failed to create password reset token: %w", err)
	}

	err = s.emailService.SendPasswordResetEmail(user.Email, user.Name, rawToken)
	if err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	slog.Info("password reset token issued", "user_id", user.ID)
	return nil
}

// ResetPassword redeems a raw password-reset token and rotates the password.
// The token is deleted in the same transaction that updates the password
// hash; a concurrent redemption of the same token fails with
// ErrTokenInvalidOrExpired.
func (s *VerificationService) ResetPassword(rawToken, newPassword string) error {
	err := validation.ValidatePassword(newPassword)
	if err != nil {
		return err
	}

	token, err := s.matchPasswordResetToken(rawToken)
	if err != nil {
		return err
	}

	user, err := s.users.ByID(token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrTokenInvalidOrExpired
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		return ErrNoPassword
	}

	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(newPassword)) == nil {
		return ErrPasswordReuse
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.passwordResetTokens.ConsumeAndSetPassword(token.ID, user.ID, string(newHash))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrTokenInvalidOrExpired
		}
		return fmt.Errorf("failed to consume password reset token: %w", err)
	}

	err = s.emailService.SendPasswordResetConfirmationEmail(user.Email, user.Name)
	if err != nil {
		slog.Warn("failed to send password reset confirmation", "error", err, "user_id", user.ID)
	}

	slog.Info("password reset completed", "user_id", user.ID)
	return nil
}

func (s *VerificationService) matchPasswordResetToken(rawToken string) (*model.PasswordResetToken, error) {
	if len(rawToken) < model.TokenPrefixLength {
		return nil, ErrTokenInvalidOrExpired
	}

	candidates, err := s.passwordResetTokens.LiveByPrefix(tokenPrefix(rawToken))
	if err != nil {
		return nil, fmt.Errorf("failed to look up password reset tokens: %w", err)
	}

	for i := range candidates {
		candidate := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(candidate.TokenHash), []byte(rawToken)) == nil {
			return candidate, nil
		}
	}

	return nil, ErrTokenInvalidOrExpired
}
