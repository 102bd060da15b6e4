package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
)

// Repository defines user data access interface
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// repository implements Repository
type repository struct {
	db sqlx.ExtContext
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// NewTxRepository binds the repository to an open transaction.
func NewTxRepository(tx *sqlx.Tx) Repository {
	return &repository{db: tx}
}

const userColumns = `id, name, email, password_hash, is_banned, created_at, updated_at`

// Create creates a new user
func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, is_banned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsBanned,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("user repository create: %w", err)
	}

	return nil
}

// GetByID returns user by ID, or nil when it does not exist
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("user repository get by id: %w", err)
	}
	return &user, nil
}

// GetByEmail returns user by email, or nil when it does not exist
func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("user repository get by email: %w", err)
	}
	return &user, nil
}

// UpdateName updates the display name
func (r *repository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("user repository update name: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user. Balance rows, codes and referrals go with it by
// cascade; users assigned to it lose their agent.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user repository delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the number of users
func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("user repository count: %w", err)
	}
	return n, nil
}
