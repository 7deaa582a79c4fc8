package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/boilerkit/boilerkit/internal/ctxkeys"
	"github.com/boilerkit/boilerkit/internal/service"
)

func unauthorized(w http.ResponseWriter, message string) {
	errorJSON(w, http.StatusUnauthorized, message)
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Session checks the session cookie and adds the user to the request context
// when it is valid. It also keeps the short-lived access token fresh: when
// the access cookie is missing or no longer verifies, a new one with a fresh
// jti is minted off the still-valid session. Requests without a valid session
// continue unauthenticated; the Require* wrappers decide what that means per
// route.
func Session(authService *service.AuthService, userService *service.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(service.SessionCookieName)
			if err != nil {
				// No cookie, continue without auth
				next.ServeHTTP(w, r)
				return
			}

			userID, err := authService.VerifySessionToken(cookie.Value)
			if err != nil {
				// Invalid or expired session, clear cookies and continue
				authService.ClearAuthCookies(w)
				next.ServeHTTP(w, r)
				return
			}

			user, err := userService.ByID(userID)
			if err != nil {
				authService.ClearAuthCookies(w)
				next.ServeHTTP(w, r)
				return
			}

			// Security: the hash stays out of the request context
			user.PasswordHash = nil

			ctx := ctxkeys.WithUser(r.Context(), user)

			accessCookie, err := r.Cookie(service.AccessCookieName)
			if err == nil {
				claims, verifyErr := authService.VerifyAccessToken(accessCookie.Value)
				if verifyErr == nil {
					ctx = ctxkeys.WithAccessClaims(ctx, claims)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Access token missing or expired: regenerate it from the session
			accessToken, err := authService.GenerateAccessToken(user)
			if err == nil {
				authService.SetAccessCookie(w, accessToken)
				claims, verifyErr := authService.VerifyAccessToken(accessToken)
				if verifyErr == nil {
					ctx = ctxkeys.WithAccessClaims(ctx, claims)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth ensures the request carries a valid session.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := ctxkeys.User(r.Context())
		if user == nil {
			unauthorized(w, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	}
}

// RequireVerified ensures the request carries a valid session, a verified
// email, and a live access token, in that order of checks.
func RequireVerified(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := ctxkeys.User(r.Context())
		if user == nil {
			unauthorized(w, "Unauthorized")
			return
		}

		if !user.IsVerified() {
			errorJSON(w, http.StatusForbidden, "Account not verified")
			return
		}

		if ctxkeys.AccessClaims(r.Context()) == nil {
			unauthorized(w, "Missing access token")
			return
		}

		next.ServeHTTP(w, r)
	}
}

// RequireGuest ensures the user is not authenticated
func RequireGuest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := ctxkeys.User(r.Context())
		if user != nil {
			errorJSON(w, http.StatusForbidden, "Already authenticated")
			return
		}
		next.ServeHTTP(w, r)
	}
}
