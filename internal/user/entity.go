// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

type User struct {
	ID                string     `db:"id"`
	Name              string     `db:"name"`
	Email             string     `db:"email"`
	PasswordHash      string     `db:"password_hash"`
	Role              string     `db:"role"`
	IsEmailVerified   bool       `db:"is_email_verified"`
	VerificationToken string     `db:"verification_token"`
	ResetTokenHash    *string    `db:"reset_token_hash"`
	ResetTokenExpiry  *time.Time `db:"reset_token_expiry"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// HasPendingVerification reports whether a verification token is outstanding.
func (u *User) HasPendingVerification() bool {
	return !u.IsEmailVerified && u.VerificationToken != ""
}

// ResetTokenValid reports whether the stored reset token may still be used at now.
func (u *User) ResetTokenValid(now time.Time) bool {
	return u.ResetTokenHash != nil &&
		u.ResetTokenExpiry != nil &&
		now.Before(*u.ResetTokenExpiry)
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
