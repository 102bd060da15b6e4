package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
)

// PostgresStore is the Store backed by sqlx and lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newQueries(tx))
	})
}

type queries struct {
	db       sqlx.ExtContext
	balances *balance.Repository
}

func newQueries(db sqlx.ExtContext) *queries {
	return &queries{db: db, balances: balance.NewRepository(db)}
}

func (q *queries) GetBalance(ctx context.Context, userID uuid.UUID) (*balance.Record, error) {
	return q.balances.Get(ctx, userID)
}

func (q *queries) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (*balance.Record, error) {
	return q.balances.GetForUpdate(ctx, userID)
}

func (q *queries) CreateBalance(ctx context.Context, rec *balance.Record) (bool, error) {
	return q.balances.Create(ctx, rec)
}

func (q *queries) ListAgents(ctx context.Context) ([]balance.Record, error) {
	return q.balances.ListAgents(ctx)
}

func (q *queries) ListUnassigned(ctx context.Context) ([]balance.Record, error) {
	return q.balances.ListUnassigned(ctx)
}

func (q *queries) SetAgent(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID, now time.Time) error {
	return q.balances.SetAgent(ctx, userID, agentID, now)
}

func (q *queries) AssignAgentIfUnassigned(ctx context.Context, userID, agentID uuid.UUID, now time.Time) (bool, error) {
	return q.balances.AssignAgentIfUnassigned(ctx, userID, agentID, now)
}

func (q *queries) UpdateRole(ctx context.Context, userID uuid.UUID, role balance.Role, now time.Time) error {
	return q.balances.UpdateRole(ctx, userID, role, now)
}

func (q *queries) CreateMissingBalances(ctx context.Context, coins int64, role balance.Role, now time.Time) ([]uuid.UUID, error) {
	return q.balances.CreateMissing(ctx, coins, role, now)
}

const codeColumns = `user_id, referral_code, created_at`

func (q *queries) GetCodeByUser(ctx context.Context, userID uuid.UUID) (*Code, error) {
	return q.getCode(ctx, `SELECT `+codeColumns+` FROM referral_codes WHERE user_id = $1`, userID)
}

func (q *queries) GetCodeByValue(ctx context.Context, code string) (*Code, error) {
	return q.getCode(ctx, `SELECT `+codeColumns+` FROM referral_codes WHERE referral_code = $1`, code)
}

func (q *queries) getCode(ctx context.Context, query string, arg interface{}) (*Code, error) {
	var c Code
	err := sqlx.GetContext(ctx, q.db, &c, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get referral code: %w", err)
	}
	return &c, nil
}

func (q *queries) InsertCode(ctx context.Context, code *Code) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO referral_codes (user_id, referral_code, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, code.UserID, code.ReferralCode, code.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert referral code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert referral code: %w", err)
	}
	return n == 1, nil
}

const referralColumns = `id, referrer_user_id, referred_user_id, referral_code, status, reward_amount, created_at, completed_at`

func (q *queries) GetReferralByReferred(ctx context.Context, referredUserID uuid.UUID) (*Record, error) {
	var rec Record
	err := sqlx.GetContext(ctx, q.db, &rec,
		`SELECT `+referralColumns+` FROM referrals WHERE referred_user_id = $1`, referredUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return &rec, nil
}

func (q *queries) InsertReferral(ctx context.Context, rec *Record) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO referrals (`+referralColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (referred_user_id) DO NOTHING
	`, rec.ID, rec.ReferrerUserID, rec.ReferredUserID, rec.ReferralCode,
		string(rec.Status), rec.RewardAmount, rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		if constraint, ok := database.UniqueViolation(err); ok {
			return fmt.Errorf("insert referral (%s): %w", constraint, ErrAlreadyReferred)
		}
		return fmt.Errorf("insert referral: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	if n == 0 {
		return ErrAlreadyReferred
	}
	return nil
}

func (q *queries) ListAssignedUsers(ctx context.Context, agentID uuid.UUID) ([]AssignedUser, error) {
	var out []AssignedUser
	err := sqlx.SelectContext(ctx, q.db, &out, `
		SELECT u.id, u.name, u.email, u.created_at,
		       COALESCE(r.reward_amount, 0) AS reward_amount,
		       COALESCE(r.completed_at, b.updated_at) AS joined_at
		FROM user_balances b
		JOIN users u ON u.id = b.user_id
		LEFT JOIN referrals r ON r.referred_user_id = b.user_id AND r.referrer_user_id = b.agent_id
		WHERE b.agent_id = $1
		ORDER BY joined_at DESC, u.id
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list assigned users: %w", err)
	}
	return out, nil
}
