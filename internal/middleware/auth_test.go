package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boilerkit/boilerkit/internal/ctxkeys"
	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserRepo struct {
	users map[string]*model.User
}

func (r *stubUserRepo) Create(user *model.User) error { return nil }

func (r *stubUserRepo) ByID(id string) (*model.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *user
	return &c, nil
}

func (r *stubUserRepo) ByEmail(email string) (*model.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			c := *user
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *stubUserRepo) Update(user *model.User) error { return nil }
func (r *stubUserRepo) Delete(id string) error        { return nil }

type sessionFixture struct {
	authService *service.AuthService
	middleware  func(http.Handler) http.Handler
	user        *model.User
}

func newSessionFixture(t *testing.T, verified bool) *sessionFixture {
	t.Helper()

	hash := "$2a$04$ThisIsNotARealHashButItIsNeverCompared00000000000000"
	user := &model.User{
		ID:           "user-1",
		Email:        "jamie@example.com",
		Name:         "Jamie",
		PasswordHash: &hash,
	}
	if verified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}

	repo := &stubUserRepo{users: map[string]*model.User{user.ID: user}}
	authService := service.NewAuthService(repo, nil, nil, "test-secret", false, time.Hour, time.Hour)
	userService := service.NewUserService(repo, nil, nil)

	return &sessionFixture{
		authService: authService,
		middleware:  Session(authService, userService),
		user:        user,
	}
}

// capture runs a request through the session middleware and records what the
// downstream handler saw in its context.
func (f *sessionFixture) capture(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *model.User, jwt.MapClaims) {
	t.Helper()

	var gotUser *model.User
	var gotClaims jwt.MapClaims
	handler := f.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = ctxkeys.User(r.Context())
		gotClaims = ctxkeys.AccessClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotUser, gotClaims
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestSession(t *testing.T) {
	t.Run("no cookie continues unauthenticated", func(t *testing.T) {
		f := newSessionFixture(t, true)
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		rec, user, claims := f.capture(t, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, user)
		assert.Nil(t, claims)
	})

	t.Run("valid session injects the user and mints an access token", func(t *testing.T) {
		f := newSessionFixture(t, true)
		token, err := f.authService.GenerateSessionToken(f.user)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: token})

		rec, user, claims := f.capture(t, req)
		require.NotNil(t, user)
		assert.Equal(t, f.user.ID, user.ID)
		assert.Nil(t, user.PasswordHash)

		require.NotNil(t, claims)
		assert.Equal(t, f.user.ID, claims["sub"])

		var accessCookie *http.Cookie
		for _, cookie := range rec.Result().Cookies() {
			if cookie.Name == service.AccessCookieName {
				accessCookie = cookie
			}
		}
		require.NotNil(t, accessCookie)
		assert.NotEmpty(t, accessCookie.Value)
		assert.True(t, accessCookie.HttpOnly)
	})

	t.Run("valid access cookie is reused, not reminted", func(t *testing.T) {
		f := newSessionFixture(t, true)
		sessionToken, err := f.authService.GenerateSessionToken(f.user)
		require.NoError(t, err)
		accessToken, err := f.authService.GenerateAccessToken(f.user)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: sessionToken})
		req.AddCookie(&http.Cookie{Name: service.AccessCookieName, Value: accessToken})

		rec, _, claims := f.capture(t, req)
		require.NotNil(t, claims)

		originalClaims, err := f.authService.VerifyAccessToken(accessToken)
		require.NoError(t, err)
		assert.Equal(t, originalClaims["jti"], claims["jti"])

		for _, cookie := range rec.Result().Cookies() {
			assert.NotEqual(t, service.AccessCookieName, cookie.Name)
		}
	})

	t.Run("garbage session cookie clears auth cookies", func(t *testing.T) {
		f := newSessionFixture(t, true)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: "garbage"})

		rec, user, _ := f.capture(t, req)
		assert.Nil(t, user)

		cleared := map[string]bool{}
		for _, cookie := range rec.Result().Cookies() {
			if cookie.Value == "" && cookie.Expires.Before(time.Now()) {
				cleared[cookie.Name] = true
			}
		}
		assert.True(t, cleared[service.SessionCookieName])
		assert.True(t, cleared[service.AccessCookieName])
	})

	t.Run("session for a deleted user continues unauthenticated", func(t *testing.T) {
		f := newSessionFixture(t, true)
		ghost := &model.User{ID: "gone", Email: "gone@example.com"}
		token, err := f.authService.GenerateSessionToken(ghost)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: service.SessionCookieName, Value: token})

		rec, user, _ := f.capture(t, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, user)
	})
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequireAuth(t *testing.T) {
	t.Run("rejects anonymous requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		RequireAuth(okHandler)(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized", errorBody(t, rec))
	})

	t.Run("passes authenticated requests through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "user-1"}))
		rec := httptest.NewRecorder()

		RequireAuth(okHandler)(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireVerified(t *testing.T) {
	now := time.Now()

	t.Run("rejects anonymous requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		RequireVerified(okHandler)(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized", errorBody(t, rec))
	})

	t.Run("rejects unverified accounts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "user-1"}))
		rec := httptest.NewRecorder()

		RequireVerified(okHandler)(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Account not verified", errorBody(t, rec))
	})

	t.Run("rejects verified accounts without access claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		user := &model.User{ID: "user-1", EmailVerifiedAt: &now}
		req = req.WithContext(ctxkeys.WithUser(req.Context(), user))
		rec := httptest.NewRecorder()

		RequireVerified(okHandler)(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Missing access token", errorBody(t, rec))
	})

	t.Run("passes verified accounts with access claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		user := &model.User{ID: "user-1", EmailVerifiedAt: &now}
		ctx := ctxkeys.WithUser(req.Context(), user)
		ctx = ctxkeys.WithAccessClaims(ctx, jwt.MapClaims{"sub": "user-1"})
		rec := httptest.NewRecorder()

		RequireVerified(okHandler)(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireGuest(t *testing.T) {
	t.Run("rejects authenticated requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "user-1"}))
		rec := httptest.NewRecorder()

		RequireGuest(okHandler)(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Already authenticated", errorBody(t, rec))
	})

	t.Run("passes anonymous requests through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		RequireGuest(okHandler)(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
