package balance

import "errors"

var (
	ErrBalanceNotFound = errors.New("balance record not found")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidAgentRef = errors.New("invalid agent reference")
	ErrNotAnAgent      = errors.New("target user is not an agent")
	ErrSelfAssignment  = errors.New("user cannot be assigned to itself")
	ErrNegativeCoins   = errors.New("coins cannot be negative")
	ErrSelfDeletion    = errors.New("admins cannot delete their own account")
)
