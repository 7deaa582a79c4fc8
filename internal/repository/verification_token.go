package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrTokenNotFound = errors.New("token not found")

type VerificationTokenRepository interface {
	Create(token *model.VerificationToken) error
	ByEmail(email string) (*model.VerificationToken, error)
	// LiveByPrefix returns non-expired tokens matching the clear-text prefix.
	// The prefix is a lookup optimization only; callers must hash-compare the
	// full raw token against every candidate.
	LiveByPrefix(prefix string) ([]model.VerificationToken, error)
	DeleteByEmail(email string) error
	// ConsumeAndVerifyEmail deletes the token and marks the user's email
	// verified in a single transaction. Returns ErrTokenNotFound if the token
	// was already consumed, so exactly one of two concurrent redemptions wins.
	ConsumeAndVerifyEmail(tokenID, userID, email string, verifiedAt time.Time) error
}

type verificationTokenRepository struct {
	db *sqlx.DB
}

func NewVerificationTokenRepository(db *sqlx.DB) VerificationTokenRepository {
	return &verificationTokenRepository{db: db}
}

func (r *verificationTokenRepository) Create(token *model.VerificationToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO verification_tokens (id, email, token_hash, prefix, expires_at, last_sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(query,
		token.ID,
		token.Email,
		token.TokenHash,
		token.Prefix,
		token.ExpiresAt,
		token.LastSentAt,
		token.CreatedAt,
	)
	return err
}

func (r *verificationTokenRepository) ByEmail(email string) (*model.VerificationToken, error) {
	var t model.VerificationToken
	query := `SELECT * FROM verification_tokens WHERE email = $1`

	err := r.db.Get(&t, query, email)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *verificationTokenRepository) LiveByPrefix(prefix string) ([]model.VerificationToken, error) {
	var tokens []model.VerificationToken
	query := `SELECT * FROM verification_tokens WHERE prefix = $1 AND expires_at > $2`

	err := r.db.Select(&tokens, query, prefix, time.Now())
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

func (r *verificationTokenRepository) DeleteByEmail(email string) error {
	query := `DELETE FROM verification_tokens WHERE email = $1`
	_, err := r.db.Exec(query, email)
	return err
}

func (r *verificationTokenRepository) ConsumeAndVerifyEmail(tokenID, userID, email string, verifiedAt time.Time) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM verification_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Lost the race: another redemption already consumed this token.
		return ErrTokenNotFound
	}

	_, err = tx.Exec(`UPDATE users SET email = $1, email_verified_at = $2, updated_at = $3 WHERE id = $4`,
		email, verifiedAt, verifiedAt, userID)
	if err != nil {
		return err
	}

	return tx.Commit()
}
