package balance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/password"
)

// RepairCoins is the balance given to rows created by the repair pass.
const RepairCoins int64 = 0

// ConsistencyReport compares the identity store with the ledger.
type ConsistencyReport struct {
	UserCount    int            `json:"userCount"`
	BalanceCount int            `json:"balanceCount"`
	MissingCount int            `json:"missingCount"`
	MissingUsers []user.Summary `json:"missingUsers"`
}

// AgentHook runs inside the transaction that gives userID the agent role.
// An error rolls the whole change back.
type AgentHook func(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error

// Service implements the administrative operations on the ledger.
type Service struct {
	db      *sqlx.DB
	users   user.Repository
	onAgent []AgentHook
	now     func() time.Time
}

func NewService(db *sqlx.DB, users user.Repository) *Service {
	return &Service{db: db, users: users, now: time.Now}
}

// OnAgentGranted registers h to run whenever an account becomes an agent
// through this service.
func (s *Service) OnAgentGranted(h AgentHook) {
	s.onAgent = append(s.onAgent, h)
}

func (s *Service) grantAgent(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	for _, h := range s.onAgent {
		if err := h(ctx, tx, userID); err != nil {
			return err
		}
	}
	return nil
}

// Repair creates the rows missing for users that signed up while the
// signup hook failed.
func (s *Service) Repair(ctx context.Context) ([]uuid.UUID, error) {
	created, err := NewRepository(s.db).CreateMissing(ctx, RepairCoins, RoleUser, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		log.Info().Int("created", len(created)).Msg("balance rows repaired")
	}
	return created, nil
}

// ListAccounts repairs missing rows, then lists users with their ledger data.
func (s *Service) ListAccounts(ctx context.Context, search string, limit, offset int) ([]Account, int, error) {
	if _, err := s.Repair(ctx); err != nil {
		return nil, 0, err
	}
	return NewRepository(s.db).ListAccounts(ctx, search, limit, offset)
}

// Check reports users without a balance row without fixing them.
func (s *Service) Check(ctx context.Context) (*ConsistencyReport, error) {
	repo := NewRepository(s.db)

	userCount, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	balanceCount, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	missing, err := repo.ListMissing(ctx)
	if err != nil {
		return nil, err
	}
	if missing == nil {
		missing = []user.Summary{}
	}

	return &ConsistencyReport{
		UserCount:    userCount,
		BalanceCount: balanceCount,
		MissingCount: len(missing),
		MissingUsers: missing,
	}, nil
}

// ChangeRole sets the ledger role of userID. Demoting an agent unassigns its
// users so no row keeps pointing at a non-agent.
func (s *Service) ChangeRole(ctx context.Context, userID uuid.UUID, role Role) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}

	var cleared int64
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		now := s.now().UTC()

		rec, err := repo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrBalanceNotFound
		}
		if rec.Role == role {
			return nil
		}

		if rec.Role == RoleAgent {
			if cleared, err = repo.ClearAgent(ctx, userID, now); err != nil {
				return err
			}
		}
		if err := repo.UpdateRole(ctx, userID, role, now); err != nil {
			return err
		}
		if role == RoleAgent {
			return s.grantAgent(ctx, tx, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("role", string(role)).
		Int64("unassigned_users", cleared).
		Msg("ledger role changed")
	return nil
}

// AssignAgent points userID at agentID, or clears the assignment when
// agentID is nil.
func (s *Service) AssignAgent(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) error {
	if agentID != nil && *agentID == userID {
		return ErrSelfAssignment
	}

	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		rec, err := repo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrBalanceNotFound
		}

		if agentID != nil {
			agent, err := repo.GetForShare(ctx, *agentID)
			if err != nil {
				return err
			}
			if agent == nil || agent.Role != RoleAgent {
				return ErrNotAnAgent
			}
		}

		return repo.SetAgent(ctx, userID, agentID, s.now().UTC())
	})
}

// CreateAccount opens a user together with its ledger row. An agent gets its
// hooks run in the same transaction; a requested agent must hold that role.
func (s *Service) CreateAccount(ctx context.Context, in NewAccount) (*Account, error) {
	if !in.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if in.Coins < 0 {
		return nil, ErrNegativeCoins
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &user.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Email:        user.NormalizeEmail(in.Email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		if in.AgentID != nil {
			agent, err := repo.GetForShare(ctx, *in.AgentID)
			if err != nil {
				return err
			}
			if agent == nil || agent.Role != RoleAgent {
				return ErrNotAnAgent
			}
		}

		if err := user.NewTxRepository(tx).Create(ctx, u); err != nil {
			return err
		}
		if _, err := repo.Create(ctx, &Record{
			UserID:    u.ID,
			Coins:     in.Coins,
			Role:      in.Role,
			AgentID:   in.AgentID,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		if in.Role == RoleAgent {
			return s.grantAgent(ctx, tx, u.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", u.ID.String()).
		Str("role", string(in.Role)).
		Int64("coins", in.Coins).
		Msg("account created by admin")

	role, coins := in.Role, in.Coins
	return &Account{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		Role:      &role,
		Coins:     &coins,
		AgentID:   in.AgentID,
	}, nil
}

// DeleteAccount removes userID. Its ledger row, code and referrals are
// dropped by cascade and users assigned to it become unassigned.
func (s *Service) DeleteAccount(ctx context.Context, requesterID, userID uuid.UUID) error {
	if requesterID == userID {
		return ErrSelfDeletion
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	log.Info().
		Str("user_id", userID.String()).
		Str("deleted_by", requesterID.String()).
		Msg("account deleted by admin")
	return nil
}

// RoleOf returns the ledger role of userID.
func (s *Service) RoleOf(ctx context.Context, userID uuid.UUID) (Role, error) {
	rec, err := NewRepository(s.db).Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrBalanceNotFound
	}
	return rec.Role, nil
}
