package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooShort is returned for passwords under MinLength.
var ErrTooShort = errors.New("password is too short")

const (
	// MinLength matches the signup form's lower bound.
	MinLength = 6

	cost = 12
)

// Hash hashes password using bcrypt
func Hash(password string) (string, error) {
	return hashWithCost(password, cost)
}

func hashWithCost(password string, c int) (string, error) {
	if len(password) < MinLength {
		return "", ErrTooShort
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), c)
	return string(bytes), err
}

// Verify compares password with hash
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
