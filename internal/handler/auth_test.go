package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boilerkit/boilerkit/internal/captcha"
	"github.com/boilerkit/boilerkit/internal/config"
	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users map[string]*model.User
}

func (r *fakeUserRepo) Create(user *model.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) ByID(id string) (*model.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *user
	return &c, nil
}

func (r *fakeUserRepo) ByEmail(email string) (*model.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			c := *user
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) Update(user *model.User) error { return nil }
func (r *fakeUserRepo) Delete(id string) error        { return nil }

// Token repos with nothing in them: every lookup misses, every consume fails.
type emptyVerificationTokenRepo struct{}

func (emptyVerificationTokenRepo) Create(token *model.VerificationToken) error { return nil }
func (emptyVerificationTokenRepo) ByEmail(email string) (*model.VerificationToken, error) {
	return nil, repository.ErrTokenNotFound
}
func (emptyVerificationTokenRepo) LiveByPrefix(prefix string) ([]model.VerificationToken, error) {
	return nil, nil
}
func (emptyVerificationTokenRepo) DeleteByEmail(email string) error { return nil }
func (emptyVerificationTokenRepo) ConsumeAndVerifyEmail(tokenID, userID, email string, verifiedAt time.Time) error {
	return repository.ErrTokenNotFound
}

type emptyPasswordResetTokenRepo struct{}

func (emptyPasswordResetTokenRepo) Create(token *model.PasswordResetToken) error { return nil }
func (emptyPasswordResetTokenRepo) ByUserID(userID string) (*model.PasswordResetToken, error) {
	return nil, repository.ErrTokenNotFound
}
func (emptyPasswordResetTokenRepo) LiveByPrefix(prefix string) ([]model.PasswordResetToken, error) {
	return nil, nil
}
func (emptyPasswordResetTokenRepo) DeleteByUserID(userID string) error { return nil }
func (emptyPasswordResetTokenRepo) ConsumeAndSetPassword(tokenID, userID, passwordHash string) error {
	return repository.ErrTokenNotFound
}

func newAuthHandlerFixture(t *testing.T, users map[string]*model.User) *authHandler {
	t.Helper()

	if users == nil {
		users = map[string]*model.User{}
	}
	userRepo := &fakeUserRepo{users: users}
	emailService := service.NewEmailService("", "noreply@test.local", "http://localhost:8090", "Boilerkit", true)
	verificationService := service.NewVerificationService(
		emptyVerificationTokenRepo{}, emptyPasswordResetTokenRepo{}, userRepo, emailService,
		time.Hour, time.Hour, 5*time.Minute, time.Hour,
	)
	authService := service.NewAuthService(userRepo, nil, verificationService, "test-secret", false, time.Hour, time.Hour)
	userService := service.NewUserService(userRepo, nil, nil)
	cfg := &config.Config{AppURL: "http://localhost:8090"}

	return NewAuthHandler(authService, verificationService, userService, captcha.New(""), cfg)
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestVerifyEmailStatus(t *testing.T) {
	t.Run("unknown token is 404", func(t *testing.T) {
		h := newAuthHandlerFixture(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-email?token=deadbeefdeadbeefdeadbeefdeadbeef", nil)
		rec := httptest.NewRecorder()
		h.VerifyEmail(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Invalid or expired verification link", decodeErrorBody(t, rec))
	})

	t.Run("missing token is 400", func(t *testing.T) {
		h := newAuthHandlerFixture(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-email", nil)
		rec := httptest.NewRecorder()
		h.VerifyEmail(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestResetPasswordStatus(t *testing.T) {
	t.Run("unknown token is 404", func(t *testing.T) {
		h := newAuthHandlerFixture(t, nil)

		body := `{"token":"deadbeefdeadbeefdeadbeefdeadbeef","password":"NewPass1!x"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ResetPassword(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Invalid or expired reset link", decodeErrorBody(t, rec))
	})

	t.Run("weak password is 400 with requirements", func(t *testing.T) {
		h := newAuthHandlerFixture(t, nil)

		body := `{"token":"deadbeefdeadbeefdeadbeefdeadbeef","password":"abc"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ResetPassword(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "requirements")
	})
}

func TestResendVerificationStatus(t *testing.T) {
	t.Run("unknown email is 404", func(t *testing.T) {
		h := newAuthHandlerFixture(t, nil)

		body := `{"email":"nobody@example.com"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/resend-verification", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ResendVerification(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", decodeErrorBody(t, rec))
	})

	t.Run("already verified is 409", func(t *testing.T) {
		now := time.Now()
		h := newAuthHandlerFixture(t, map[string]*model.User{
			"user-1": {ID: "user-1", Email: "done@example.com", Name: "Done", EmailVerifiedAt: &now},
		})

		body := `{"email":"done@example.com"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/resend-verification", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ResendVerification(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
