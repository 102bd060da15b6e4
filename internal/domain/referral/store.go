package referral

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
)

// Store gives the engine transactional access to the ledger, the code
// registry and the referral ledger.
type Store interface {
	// InTx runs fn in a single transaction, rolled back if fn fails.
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// Queries are the statements the engine issues inside a transaction.
type Queries interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*balance.Record, error)
	GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (*balance.Record, error)
	// CreateBalance reports false if the user already had a row.
	CreateBalance(ctx context.Context, rec *balance.Record) (bool, error)
	// ListAgents holds a shared lock on every returned agent row.
	ListAgents(ctx context.Context) ([]balance.Record, error)
	ListUnassigned(ctx context.Context) ([]balance.Record, error)
	SetAgent(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID, now time.Time) error
	AssignAgentIfUnassigned(ctx context.Context, userID, agentID uuid.UUID, now time.Time) (bool, error)
	UpdateRole(ctx context.Context, userID uuid.UUID, role balance.Role, now time.Time) error
	CreateMissingBalances(ctx context.Context, coins int64, role balance.Role, now time.Time) ([]uuid.UUID, error)

	GetCodeByUser(ctx context.Context, userID uuid.UUID) (*Code, error)
	GetCodeByValue(ctx context.Context, code string) (*Code, error)
	// InsertCode reports false when the user or the code value is taken.
	InsertCode(ctx context.Context, code *Code) (bool, error)

	GetReferralByReferred(ctx context.Context, referredUserID uuid.UUID) (*Record, error)
	// InsertReferral returns ErrAlreadyReferred if the referred user has a record.
	InsertReferral(ctx context.Context, rec *Record) error
	ListAssignedUsers(ctx context.Context, agentID uuid.UUID) ([]AssignedUser, error)
}
