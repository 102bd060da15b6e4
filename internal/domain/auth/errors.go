package auth

import "errors"

var (
	ErrEmailAlreadyExists   = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrUserBanned           = errors.New("account is banned")
	ErrUserNotFound         = errors.New("account not found")
)
