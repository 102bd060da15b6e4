package referral

import "errors"

var (
	ErrInvalidCode          = errors.New("invalid referral code")
	ErrCodeRequired         = errors.New("referral code is required")
	ErrSelfReferral         = errors.New("cannot use your own referral code")
	ErrAlreadyReferred      = errors.New("user has already used a referral code")
	ErrReferrerNotFound     = errors.New("referrer not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNoAgentsAvailable    = errors.New("no active agents found")
	ErrUserNotFound         = errors.New("user not found")
	ErrBulkAssignInProgress = errors.New("bulk assignment already running")
	ErrCodeSpaceExhausted   = errors.New("could not generate a unique referral code")
)
