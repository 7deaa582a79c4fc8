package model

import (
	"time"
)

// TokenPrefixLength is the number of leading characters of a raw token stored
// in clear text for indexed lookup. The prefix is never sufficient for a
// match on its own; redemption always hash-compares the full raw value.
const TokenPrefixLength = 8

// VerificationToken is a pending email-verification action. Only the bcrypt
// hash of the raw secret is stored; the raw value goes out by email and is
// never persisted.
type VerificationToken struct {
	ID         string    `db:"id"`
	Email      string    `db:"email"`
	TokenHash  string    `db:"token_hash"`
	Prefix     string    `db:"prefix"`
	ExpiresAt  time.Time `db:"expires_at"`
	LastSentAt time.Time `db:"last_sent_at"`
	CreatedAt  time.Time `db:"created_at"`
}

func (t *VerificationToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// PasswordResetToken is a pending password-reset action, owned by exactly one
// user at a time. Redeeming it and rotating the password happen in the same
// transaction.
type PasswordResetToken struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	Prefix    string    `db:"prefix"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (t *PasswordResetToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}
