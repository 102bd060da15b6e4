package referral

import (
	"time"

	"github.com/google/uuid"
)

// ApplyCodeRequest is the body of POST /referral/apply.
type ApplyCodeRequest struct {
	ReferralCode string `json:"referralCode" validate:"omitempty,refcode"`
}

type CodeResponse struct {
	ReferralCode string    `json:"referralCode"`
	CreatedAt    time.Time `json:"createdAt"`
	IsNew        bool      `json:"isNew,omitempty"`
}

type ApplyResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ReferrerPromoted bool   `json:"referrerPromoted"`
}

type AutoAssignResponse struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message"`
	AgentID  *uuid.UUID `json:"agentId,omitempty"`
	Assigned bool       `json:"assigned"`
}

type BulkAssignDetails struct {
	UsersAssigned int `json:"usersAssigned"`
	AgentCount    int `json:"agentCount"`
}

type BulkAssignResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Details *BulkAssignDetails `json:"details,omitempty"`
}

type AgentReferralItem struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	Status       string    `json:"status"`
	RewardAmount int64     `json:"rewardAmount"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type AgentReferralsResponse struct {
	ReferralCode *string             `json:"referralCode"`
	Referrals    []AgentReferralItem `json:"referrals"`
}

func agentReferralsResponse(in *AgentReferrals) AgentReferralsResponse {
	items := make([]AgentReferralItem, 0, len(in.Users))
	for _, u := range in.Users {
		items = append(items, AgentReferralItem{
			ID:           u.ID,
			Name:         u.Name,
			Email:        u.Email,
			CreatedAt:    u.CreatedAt,
			Status:       "active",
			RewardAmount: u.RewardAmount,
			JoinedAt:     u.JoinedAt,
		})
	}
	return AgentReferralsResponse{ReferralCode: in.ReferralCode, Referrals: items}
}
