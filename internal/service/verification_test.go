package service

import (
	"sync"
	"testing"
	"time"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// In-memory fakes mirroring the repository contracts, including the
// exactly-once semantics of the consume methods.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*model.User{}}
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

func (r *memUserRepo) Create(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *memUserRepo) ByID(id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (r *memUserRepo) ByEmail(email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return copyUser(user), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) Update(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *memUserRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

type memVerificationTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.VerificationToken
	users  *memUserRepo
}

func newMemVerificationTokenRepo(users *memUserRepo) *memVerificationTokenRepo {
	return &memVerificationTokenRepo{tokens: map[string]*model.VerificationToken{}, users: users}
}

func (r *memVerificationTokenRepo) Create(token *model.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	c := *token
	r.tokens[token.ID] = &c
	return nil
}

func (r *memVerificationTokenRepo) ByEmail(email string) (*model.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.Email == email {
			c := *token
			return &c, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (r *memVerificationTokenRepo) LiveByPrefix(prefix string) ([]model.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.VerificationToken
	for _, token := range r.tokens {
		if token.Prefix == prefix && time.Now().Before(token.ExpiresAt) {
			out = append(out, *token)
		}
	}
	return out, nil
}

func (r *memVerificationTokenRepo) DeleteByEmail(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, token := range r.tokens {
		if token.Email == email {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *memVerificationTokenRepo) ConsumeAndVerifyEmail(tokenID, userID, email string, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tokenID]; !ok {
		return repository.ErrTokenNotFound
	}
	delete(r.tokens, tokenID)

	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	user, ok := r.users.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.Email = email
	user.EmailVerifiedAt = &verifiedAt
	user.UpdatedAt = verifiedAt
	return nil
}

type memPasswordResetTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.PasswordResetToken
	users  *memUserRepo
}

func newMemPasswordResetTokenRepo(users *memUserRepo) *memPasswordResetTokenRepo {
	return &memPasswordResetTokenRepo{tokens: map[string]*model.PasswordResetToken{}, users: users}
}

func (r *memPasswordResetTokenRepo) Create(token *model.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	c := *token
	r.tokens[token.ID] = &c
	return nil
}

func (r *memPasswordResetTokenRepo) ByUserID(userID string) (*model.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.UserID == userID {
			c := *token
			return &c, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (r *memPasswordResetTokenRepo) LiveByPrefix(prefix string) ([]model.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PasswordResetToken
	for _, token := range r.tokens {
		if token.Prefix == prefix && time.Now().Before(token.ExpiresAt) {
			out = append(out, *token)
		}
	}
	return out, nil
}

func (r *memPasswordResetTokenRepo) DeleteByUserID(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, token := range r.tokens {
		if token.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *memPasswordResetTokenRepo) ConsumeAndSetPassword(tokenID, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tokenID]; !ok {
		return repository.ErrTokenNotFound
	}
	delete(r.tokens, tokenID)

	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	user, ok := r.users.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = &passwordHash
	user.UpdatedAt = time.Now()
	return nil
}

type verificationFixture struct {
	service    *VerificationService
	users      *memUserRepo
	verifyRepo *memVerificationTokenRepo
	resetRepo  *memPasswordResetTokenRepo
}

func newVerificationFixture(t *testing.T, emailVerifyCooldown, passwordResetCooldown time.Duration) *verificationFixture {
	t.Helper()

	users := newMemUserRepo()
	verifyRepo := newMemVerificationTokenRepo(users)
	resetRepo := newMemPasswordResetTokenRepo(users)
	emailService := NewEmailService("", "noreply@test.local", "http://localhost:8090", "Boilerkit", true)

	svc := NewVerificationService(
		verifyRepo,
		resetRepo,
		users,
		emailService,
		time.Hour,
		time.Hour,
		emailVerifyCooldown,
		passwordResetCooldown,
	)

	return &verificationFixture{
		service:    svc,
		users:      users,
		verifyRepo: verifyRepo,
		resetRepo:  resetRepo,
	}
}

func (f *verificationFixture) addUser(t *testing.T, email, password string, verified bool) *model.User {
	t.Helper()

	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Name:      "Test User",
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hashStr := string(hash)
		user.PasswordHash = &hashStr
	}
	if verified {
		user.EmailVerifiedAt = &now
	}

	require.NoError(t, f.users.Create(user))
	return user
}

// seedVerificationToken stores a token the way IssueEmailVerification would
// and returns the raw secret.
func (f *verificationFixture) seedVerificationToken(t *testing.T, email string, expiresAt time.Time) string {
	t.Helper()

	raw, err := GenerateToken()
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, f.verifyRepo.Create(&model.VerificationToken{
		Email:      email,
		TokenHash:  string(hash),
		Prefix:     raw[:model.TokenPrefixLength],
		ExpiresAt:  expiresAt,
		LastSentAt: time.Now(),
	}))
	return raw
}

func (f *verificationFixture) seedResetToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()

	raw, err := GenerateToken()
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, f.resetRepo.Create(&model.PasswordResetToken{
		UserID:    userID,
		TokenHash: string(hash),
		Prefix:    raw[:model.TokenPrefixLength],
		ExpiresAt: expiresAt,
	}))
	return raw
}

func TestIssueEmailVerification(t *testing.T) {
	t.Run("stores only a hash with a clear-text prefix", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "new@example.com", "Abc123!", false)

		require.NoError(t, f.service.IssueEmailVerification("new@example.com"))

		token, err := f.verifyRepo.ByEmail("new@example.com")
		require.NoError(t, err)
		assert.Len(t, token.Prefix, model.TokenPrefixLength)
		assert.True(t, len(token.TokenHash) > 50)
		assert.NotContains(t, token.TokenHash, token.Prefix)
		assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)
	})

	t.Run("normalizes the email address", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "new@example.com", "Abc123!", false)

		require.NoError(t, f.service.IssueEmailVerification("  NEW@Example.COM "))

		_, err := f.verifyRepo.ByEmail("new@example.com")
		require.NoError(t, err)
	})

	t.Run("rejects a second issue within the cooldown", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "new@example.com", "Abc123!", false)

		require.NoError(t, f.service.IssueEmailVerification("new@example.com"))
		first, err := f.verifyRepo.ByEmail("new@example.com")
		require.NoError(t, err)

		err = f.service.IssueEmailVerification("new@example.com")

		var cooldownErr *CooldownError
		require.ErrorAs(t, err, &cooldownErr)
		assert.Greater(t, cooldownErr.Remaining, time.Duration(0))
		assert.GreaterOrEqual(t, cooldownErr.RemainingMinutes(), 1)

		// The original token survives untouched
		second, err := f.verifyRepo.ByEmail("new@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("replaces the token after the cooldown has passed", func(t *testing.T) {
		f := newVerificationFixture(t, time.Millisecond, time.Hour)
		f.addUser(t, "new@example.com", "Abc123!", false)

		require.NoError(t, f.service.IssueEmailVerification("new@example.com"))
		first, err := f.verifyRepo.ByEmail("new@example.com")
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		require.NoError(t, f.service.IssueEmailVerification("new@example.com"))
		second, err := f.verifyRepo.ByEmail("new@example.com")
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.Len(t, f.verifyRepo.tokens, 1)
	})
}

func TestEmailVerificationCooldown(t *testing.T) {
	f := newVerificationFixture(t, 5*time.Minute, time.Hour)
	f.addUser(t, "new@example.com", "Abc123!", false)

	remaining, err := f.service.EmailVerificationCooldown("new@example.com")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), remaining)

	require.NoError(t, f.service.IssueEmailVerification("new@example.com"))

	remaining, err = f.service.EmailVerificationCooldown("new@example.com")
	require.NoError(t, err)
	assert.Greater(t, remaining, 4*time.Minute)
	assert.LessOrEqual(t, remaining, 5*time.Minute)
}

func TestVerifyEmail(t *testing.T) {
	t.Run("redeems exactly once", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "new@example.com", "Abc123!", false)
		raw := f.seedVerificationToken(t, "new@example.com", time.Now().Add(time.Hour))

		verified, err := f.service.VerifyEmail(raw)
		require.NoError(t, err)
		assert.Equal(t, user.ID, verified.ID)
		require.NotNil(t, verified.EmailVerifiedAt)

		stored, err := f.users.ByID(user.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.EmailVerifiedAt)

		// Second redemption of the same token fails
		_, err = f.service.VerifyEmail(raw)
		assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "new@example.com", "Abc123!", false)
		raw := f.seedVerificationToken(t, "new@example.com", time.Now().Add(-time.Minute))

		_, err := f.service.VerifyEmail(raw)
		assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	})

	t.Run("prefix match alone is not enough", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "new@example.com", "Abc123!", false)
		raw := f.seedVerificationToken(t, "new@example.com", time.Now().Add(time.Hour))

		// Same prefix, different suffix
		forged := raw[:model.TokenPrefixLength] + "0000000000000000000000000000000000000000000000000000000."

		_, err := f.service.VerifyEmail(forged)
		assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	})

	t.Run("rejects a token shorter than the prefix", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)

		_, err := f.service.VerifyEmail("abc")
		assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	})
}

func TestResendEmailVerification(t *testing.T) {
	t.Run("rejects an already verified account", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "done@example.com", "Abc123!", true)

		err := f.service.ResendEmailVerification("done@example.com")
		assert.ErrorIs(t, err, ErrAlreadyVerified)
	})

	t.Run("fails for an unknown account", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)

		err := f.service.ResendEmailVerification("nobody@example.com")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})
}

func TestIssuePasswordReset(t *testing.T) {
	t.Run("unknown email succeeds without creating a token", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)

		require.NoError(t, f.service.IssuePasswordReset("nobody@example.com"))
		assert.Empty(t, f.resetRepo.tokens)
	})

	t.Run("passwordless account succeeds without creating a token", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		f.addUser(t, "oauth@example.com", "", true)

		require.NoError(t, f.service.IssuePasswordReset("oauth@example.com"))
		assert.Empty(t, f.resetRepo.tokens)
	})

	t.Run("rejects a second request within the cooldown", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "user@example.com", "Abc123!", true)

		require.NoError(t, f.service.IssuePasswordReset("user@example.com"))

		err := f.service.IssuePasswordReset("user@example.com")

		var cooldownErr *CooldownError
		require.ErrorAs(t, err, &cooldownErr)
		assert.Greater(t, cooldownErr.Remaining, time.Duration(0))
		assert.GreaterOrEqual(t, cooldownErr.RemainingMinutes(), 1)

		// Still only one live token
		_, err = f.resetRepo.ByUserID(user.ID)
		require.NoError(t, err)
		assert.Len(t, f.resetRepo.tokens, 1)
	})
}

func TestResetPassword(t *testing.T) {
	t.Run("rotates the password and consumes the token", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "user@example.com", "OldPass1!", true)
		raw := f.seedResetToken(t, user.ID, time.Now().Add(time.Hour))

		require.NoError(t, f.service.ResetPassword(raw, "NewPass1!x"))

		stored, err := f.users.ByID(user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*stored.PasswordHash), []byte("NewPass1!x")))

		// Token is gone, replay fails
		assert.Empty(t, f.resetRepo.tokens)
		assert.ErrorIs(t, f.service.ResetPassword(raw, "OtherPass1!x"), ErrTokenInvalidOrExpired)
	})

	t.Run("concurrent redemptions succeed exactly once", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "user@example.com", "OldPass1!", true)
		raw := f.seedResetToken(t, user.ID, time.Now().Add(time.Hour))

		// Distinct replacements so the loser cannot trip the reuse check
		passwords := []string{"NewPass1!xa", "NewPass1!xb"}
		results := make([]error, len(passwords))
		var wg sync.WaitGroup
		for i, password := range passwords {
			wg.Add(1)
			go func(i int, password string) {
				defer wg.Done()
				results[i] = f.service.ResetPassword(raw, password)
			}(i, password)
		}
		wg.Wait()

		var winners, losers int
		for _, err := range results {
			if err == nil {
				winners++
				continue
			}
			assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
			losers++
		}
		assert.Equal(t, 1, winners)
		assert.Equal(t, 1, losers)
		assert.Empty(t, f.resetRepo.tokens)
	})

	t.Run("rejects reusing the old password", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "user@example.com", "SamePass1!x", true)
		raw := f.seedResetToken(t, user.ID, time.Now().Add(time.Hour))

		err := f.service.ResetPassword(raw, "SamePass1!x")
		assert.ErrorIs(t, err, ErrPasswordReuse)

		// Token survives the failed attempt
		_, err = f.resetRepo.ByUserID(user.ID)
		require.NoError(t, err)
	})

	t.Run("rejects a weak replacement password", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "user@example.com", "OldPass1!", true)
		f.seedResetToken(t, user.ID, time.Now().Add(time.Hour))

		err := f.service.ResetPassword("whatever", "abc")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrTokenInvalidOrExpired)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		f := newVerificationFixture(t, 5*time.Minute, time.Hour)
		user := f.addUser(t, "user@example.com", "OldPass1!", true)
		raw := f.seedResetToken(t, user.ID, time.Now().Add(-time.Minute))

		err := f.service.ResetPassword(raw, "NewPass1!x")
		assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
	})
}
