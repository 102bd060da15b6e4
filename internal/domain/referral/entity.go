package referral

import (
	"time"

	"github.com/google/uuid"
)

// Status of a referral record. Only completed records exist today.
type Status string

const StatusCompleted Status = "completed"

const (
	// DefaultRewardAmount is credited on each completed referral.
	DefaultRewardAmount int64 = 100
	// DefaultWelcomeCoins is the opening balance of an organic signup.
	DefaultWelcomeCoins int64 = 1000
)

// Code prefixes. Agents promoted by a referral get AGENT codes.
const (
	PrefixUser  = "REF"
	PrefixAgent = "AGENT"
)

// Code is one row of referral_codes. A user owns at most one code.
type Code struct {
	UserID       uuid.UUID `db:"user_id" json:"userId"`
	ReferralCode string    `db:"referral_code" json:"referralCode"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Record is one row of referrals: proof that ReferredUserID joined through
// ReferrerUserID's code.
type Record struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ReferrerUserID uuid.UUID  `db:"referrer_user_id" json:"referrerUserId"`
	ReferredUserID uuid.UUID  `db:"referred_user_id" json:"referredUserId"`
	ReferralCode   string     `db:"referral_code" json:"referralCode"`
	Status         Status     `db:"status" json:"status"`
	RewardAmount   int64      `db:"reward_amount" json:"rewardAmount"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	CompletedAt    *time.Time `db:"completed_at" json:"completedAt"`
}

// AssignedUser is a user assigned to an agent, as listed in the back office.
type AssignedUser struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	RewardAmount int64     `db:"reward_amount" json:"rewardAmount"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
}

// IssuedCode is the result of GetOrCreateCode.
type IssuedCode struct {
	Code  Code `json:"code"`
	IsNew bool `json:"isNew"`
}

// ApplyResult is the result of ApplyCode.
type ApplyResult struct {
	ReferrerID       uuid.UUID `json:"referrerId"`
	ReferrerPromoted bool      `json:"referrerPromoted"`
	Message          string    `json:"message"`
}

// AutoAssignResult is the result of AutoAssign.
type AutoAssignResult struct {
	Assigned bool       `json:"assigned"`
	AgentID  *uuid.UUID `json:"agentId"`
	Message  string     `json:"message"`
}

// BulkAssignResult is the result of BulkAutoAssign.
type BulkAssignResult struct {
	UsersAssigned int    `json:"usersAssigned"`
	AgentCount    int    `json:"agentCount"`
	Repaired      int    `json:"repaired"`
	Message       string `json:"message"`
}

// AgentReferrals is the back-office view of one agent.
type AgentReferrals struct {
	ReferralCode *string        `json:"referralCode"`
	Users        []AssignedUser `json:"users"`
}
