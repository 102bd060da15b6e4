package balance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
)

// Repository reads and writes user_balances. It is bound to either the pool
// or an open transaction, so callers decide the transactional scope.
type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

const recordColumns = `user_id, coins, role, agent_id, created_at, updated_at`

// Get returns the balance row for userID, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	return r.get(ctx, `SELECT `+recordColumns+` FROM user_balances WHERE user_id = $1`, userID)
}

// GetForUpdate is Get with a row lock; it must run inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*Record, error) {
	return r.get(ctx, `SELECT `+recordColumns+` FROM user_balances WHERE user_id = $1 FOR UPDATE`, userID)
}

// GetForShare is Get with a shared row lock. It keeps a concurrent role
// change from committing until the caller's transaction ends.
func (r *Repository) GetForShare(ctx context.Context, userID uuid.UUID) (*Record, error) {
	return r.get(ctx, `SELECT `+recordColumns+` FROM user_balances WHERE user_id = $1 FOR SHARE`, userID)
}

func (r *Repository) get(ctx context.Context, query string, userID uuid.UUID) (*Record, error) {
	var rec Record
	err := sqlx.GetContext(ctx, r.db, &rec, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &rec, nil
}

// Create inserts rec unless a row for the user already exists. It reports
// whether a row was inserted.
func (r *Repository) Create(ctx context.Context, rec *Record) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, coins, role, agent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
	`, rec.UserID, rec.Coins, string(rec.Role), rec.AgentID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create balance: %w", err)
	}
	return n == 1, nil
}

// ListAgents returns every agent row, oldest first, holding a shared lock on
// each until the transaction ends. ChangeRole locks the row FOR UPDATE, so a
// demotion waits for the caller to commit, and a caller that waited skips
// an agent demoted meanwhile.
func (r *Repository) ListAgents(ctx context.Context) ([]Record, error) {
	var out []Record
	err := sqlx.SelectContext(ctx, r.db, &out, `
		SELECT `+recordColumns+`
		FROM user_balances
		WHERE role = 'agent'
		ORDER BY created_at, user_id
		FOR SHARE
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return out, nil
}

// ListUnassigned returns plain users without an agent, oldest first.
func (r *Repository) ListUnassigned(ctx context.Context) ([]Record, error) {
	var out []Record
	err := sqlx.SelectContext(ctx, r.db, &out, `
		SELECT `+recordColumns+`
		FROM user_balances
		WHERE role = 'user' AND agent_id IS NULL
		ORDER BY created_at, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list unassigned balances: %w", err)
	}
	return out, nil
}

// SetAgent overwrites the agent of userID. A nil agentID clears it.
func (r *Repository) SetAgent(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_balances SET agent_id = $2, updated_at = $3 WHERE user_id = $1`,
		userID, agentID, now,
	)
	if err != nil {
		return fmt.Errorf("set agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// AssignAgentIfUnassigned sets the agent only while the row has none and
// agentID still holds the agent role. It reports whether it did.
func (r *Repository) AssignAgentIfUnassigned(ctx context.Context, userID, agentID uuid.UUID, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_balances SET agent_id = $2, updated_at = $3
		WHERE user_id = $1 AND agent_id IS NULL
		  AND EXISTS (SELECT 1 FROM user_balances a WHERE a.user_id = $2 AND a.role = 'agent')
	`, userID, agentID, now)
	if err != nil {
		return false, fmt.Errorf("assign agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign agent: %w", err)
	}
	return n == 1, nil
}

// UpdateRole changes the role of userID.
func (r *Repository) UpdateRole(ctx context.Context, userID uuid.UUID, role Role, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_balances SET role = $2, updated_at = $3 WHERE user_id = $1`,
		userID, string(role), now,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// ClearAgent unassigns every user currently assigned to agentID.
func (r *Repository) ClearAgent(ctx context.Context, agentID uuid.UUID, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_balances SET agent_id = NULL, updated_at = $2 WHERE agent_id = $1`,
		agentID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("clear agent: %w", err)
	}
	return res.RowsAffected()
}

// CreateMissing inserts a row for every user without one and returns the
// ids it created. Running it again right away creates nothing.
func (r *Repository) CreateMissing(ctx context.Context, coins int64, role Role, now time.Time) ([]uuid.UUID, error) {
	var created []uuid.UUID
	err := sqlx.SelectContext(ctx, r.db, &created, `
		INSERT INTO user_balances (user_id, coins, role, agent_id, created_at, updated_at)
		SELECT u.id, $1, $2, NULL, $3, $3
		FROM users u
		LEFT JOIN user_balances b ON b.user_id = u.id
		WHERE b.user_id IS NULL
		ORDER BY u.created_at, u.id
		ON CONFLICT (user_id) DO NOTHING
		RETURNING user_id
	`, coins, string(role), now)
	if err != nil {
		return nil, fmt.Errorf("create missing balances: %w", err)
	}
	return created, nil
}

// ListMissing returns users that have no balance row.
func (r *Repository) ListMissing(ctx context.Context) ([]user.Summary, error) {
	var out []user.Summary
	err := sqlx.SelectContext(ctx, r.db, &out, `
		SELECT u.id, u.name
		FROM users u
		LEFT JOIN user_balances b ON b.user_id = u.id
		WHERE b.user_id IS NULL
		ORDER BY u.created_at, u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list missing balances: %w", err)
	}
	return out, nil
}

// Count returns the number of balance rows.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM user_balances`); err != nil {
		return 0, fmt.Errorf("count balances: %w", err)
	}
	return n, nil
}

// ListAccounts returns users joined with their balance rows, newest first,
// optionally filtered by a name/email substring.
func (r *Repository) ListAccounts(ctx context.Context, search string, limit, offset int) ([]Account, int, error) {
	pattern := "%"
	if search != "" {
		pattern = "%" + search + "%"
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `
		SELECT COUNT(*) FROM users u WHERE u.name ILIKE $1 OR u.email ILIKE $1
	`, pattern); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	var out []Account
	err := sqlx.SelectContext(ctx, r.db, &out, `
		SELECT u.id, u.name, u.email, u.created_at, b.role, b.coins, b.agent_id
		FROM users u
		LEFT JOIN user_balances b ON b.user_id = u.id
		WHERE u.name ILIKE $1 OR u.email ILIKE $1
		ORDER BY u.created_at DESC, u.id
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return out, total, nil
}
