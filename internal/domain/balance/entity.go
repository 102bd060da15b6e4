package balance

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the ledger role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// CanReceiveReferrals reports whether a referrer with this role keeps it
// when one of their codes is applied.
func (r Role) CanReceiveReferrals() bool {
	return r == RoleAgent || r == RoleAdmin
}

// Record is one row of user_balances.
type Record struct {
	UserID    uuid.UUID  `db:"user_id" json:"userId"`
	Coins     int64      `db:"coins" json:"coins"`
	Role      Role       `db:"role" json:"role"`
	AgentID   *uuid.UUID `db:"agent_id" json:"agentId"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// HasAgent reports whether the record is assigned to an agent.
func (r *Record) HasAgent() bool {
	return r.AgentID != nil && *r.AgentID != uuid.Nil
}

// Account is a user joined with its (possibly missing) balance row.
type Account struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	Role      *Role      `db:"role" json:"role"`
	Coins     *int64     `db:"coins" json:"coins"`
	AgentID   *uuid.UUID `db:"agent_id" json:"agentId"`
}

// NewAccount is an account opened by an administrator rather than through
// signup.
type NewAccount struct {
	Name     string
	Email    string
	Password string
	Role     Role
	Coins    int64
	AgentID  *uuid.UUID
}

// ParseAgentRef converts an agent reference received from a client into the
// ledger representation. Empty strings, "none" and "null" mean unassigned.
func ParseAgentRef(raw string) (*uuid.UUID, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "null":
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidAgentRef
	}
	if id == uuid.Nil {
		return nil, nil
	}
	return &id, nil
}
