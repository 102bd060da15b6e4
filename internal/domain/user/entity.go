package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account in the identity store (users table).
type User struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	IsBanned     bool      `db:"is_banned"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// IsActive returns true if user is not banned
func (u *User) IsActive() bool {
	return !u.IsBanned
}

// Summary is the id/name pair used by consistency reports.
type Summary struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// NormalizeEmail lower-cases and trims an address before it is stored or
// looked up; the unique index on users.email assumes this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
