package auth

import (
	"errors"
	"fmt"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
)

func isEmailAlreadyExistsError(err error) bool {
	if errors.Is(err, ErrEmailAlreadyExists) || errors.Is(err, user.ErrEmailAlreadyExists) {
		return true
	}
	constraint, ok := database.UniqueViolation(err)
	return ok && constraint == "users_email_key"
}

func wrapRegisterError(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("register step %s: %w", step, err)
}
