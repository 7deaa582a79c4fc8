package model

import (
	"time"
)

type User struct {
	ID                string     `db:"id"`
	Name              string     `db:"name"`
	Email             string     `db:"email"`
	PasswordHash      *string    `db:"password_hash"` // Nullable for OAuth-only users
	Phone             *string    `db:"phone"`
	ProfilePictureKey *string    `db:"profile_picture_key"`
	EmailVerifiedAt   *time.Time `db:"email_verified_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// PublicUser is the only user shape handlers serialize. The password hash and
// phone number never cross this boundary.
type PublicUser struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	ProfilePictureKey *string    `json:"profile_picture_key,omitempty"`
	EmailVerifiedAt   *time.Time `json:"email_verified_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		ProfilePictureKey: u.ProfilePictureKey,
		EmailVerifiedAt:   u.EmailVerifiedAt,
		CreatedAt:         u.CreatedAt,
	}
}
