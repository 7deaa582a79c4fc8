package ctxkeys

import (
	"context"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	UserKey         contextKey = "user"
	AccessClaimsKey contextKey = "access_claims"
)

func User(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// AccessClaims returns the verified access-token claims for the request, or
// nil when no valid access token was presented.
func AccessClaims(ctx context.Context) jwt.MapClaims {
	claims, _ := ctx.Value(AccessClaimsKey).(jwt.MapClaims)
	return claims
}

func WithAccessClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, AccessClaimsKey, claims)
}
