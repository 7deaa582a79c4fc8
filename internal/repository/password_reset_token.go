package repository

import (
	"database/sql"
	"time"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PasswordResetTokenRepository interface {
	Create(token *model.PasswordResetToken) error
	ByUserID(userID string) (*model.PasswordResetToken, error)
	// LiveByPrefix returns non-expired tokens matching the clear-text prefix.
	// Prefix equality is never sufficient for redemption.
	LiveByPrefix(prefix string) ([]model.PasswordResetToken, error)
	DeleteByUserID(userID string) error
	// ConsumeAndSetPassword deletes the token and rotates the user's password
	// hash in a single transaction, so a consumed token can never be replayed
	// and a crash cannot leave the token valid after the password changed.
	ConsumeAndSetPassword(tokenID, userID, passwordHash string) error
}

type passwordResetTokenRepository struct {
	db *sqlx.DB
}

func NewPasswordResetTokenRepository(db *sqlx.DB) PasswordResetTokenRepository {
	return &passwordResetTokenRepository{db: db}
}

func (r *passwordResetTokenRepository) Create(token *model.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Prefix,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

func (r *passwordResetTokenRepository) ByUserID(userID string) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	query := `SELECT * FROM password_reset_tokens WHERE user_id = $1`

	err := r.db.Get(&t, query, userID)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *passwordResetTokenRepository) LiveByPrefix(prefix string) ([]model.PasswordResetToken, error) {
	var tokens []model.PasswordResetToken
	query := `SELECT * FROM password_reset_tokens WHERE prefix = $1 AND expires_at > $2`

	err := r.db.Select(&tokens, query, prefix, time.Now())
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

func (r *passwordResetTokenRepository) DeleteByUserID(userID string) error {
	query := `DELETE FROM password_reset_tokens WHERE user_id = $1`
	_, err := r.db.Exec(query, userID)
	return err
}

func (r *passwordResetTokenRepository) ConsumeAndSetPassword(tokenID, userID, passwordHash string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM password_reset_tokens WHERE id = $1`, tokenID)
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

	_, err = tx.Exec(`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now(), userID)
	if err != nil {
		return err
	}

	return tx.Commit()
}
