package referral

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/lock"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/logger"
)

const (
	bulkAssignLockName  = "referral:bulk-auto-assign"
	defaultBulkLockTTL  = 30 * time.Second
	msgAppliedPromoted  = "Referral code applied! Your referrer has been promoted to agent and you have been assigned to them."
	msgApplied          = "Referral code applied successfully! You have been assigned to an agent."
	msgAssigned         = "Successfully assigned to an agent"
	msgAlreadyAssigned  = "User already assigned to an agent"
	msgNoAgents         = "No agents available"
	msgNobodyUnassigned = "No unassigned users found. Everyone already has an agent!"
	msgBulkAssignedFmt  = "Successfully assigned %d previously unassigned users to %d agents."
)

// Locker serializes work across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// Config tunes the engine.
type Config struct {
	WelcomeCoins int64
	RewardAmount int64
	BulkLockTTL  time.Duration
}

// Service is the referral and agent-assignment engine.
type Service struct {
	store   Store
	locker  Locker
	cfg     Config
	single  AgentSelector
	bulk    AgentSelector
	newCode CodeGenerator
	now     func() time.Time
}

func NewService(store Store, locker Locker, cfg Config) *Service {
	if cfg.BulkLockTTL <= 0 {
		cfg.BulkLockTTL = defaultBulkLockTTL
	}
	return &Service{
		store:   store,
		locker:  locker,
		cfg:     cfg,
		single:  RandomSelector{},
		bulk:    RoundRobinSelector{},
		newCode: GenerateCode,
		now:     time.Now,
	}
}

// GetOrCreateCode returns the caller's code, issuing a REF code on first use.
func (s *Service) GetOrCreateCode(ctx context.Context, userID uuid.UUID) (*IssuedCode, error) {
	var out *IssuedCode
	err := s.store.InTx(ctx, func(q Queries) error {
		existing, err := q.GetCodeByUser(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = &IssuedCode{Code: *existing}
			return nil
		}

		code, created, err := s.issueCode(ctx, q, userID, PrefixUser)
		if err != nil {
			return err
		}
		out = &IssuedCode{Code: *code, IsNew: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.IsNew {
		logger.FromContext(ctx).Info().
			Str("user_id", userID.String()).
			Str("referral_code", out.Code.ReferralCode).
			Msg("referral code issued")
	}
	return out, nil
}

// issueCode inserts a fresh code for userID. If a concurrent caller already
// issued one, that code is returned with created=false.
func (s *Service) issueCode(ctx context.Context, q Queries, userID uuid.UUID, prefix string) (*Code, bool, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		now := s.now().UTC()
		value, err := s.newCode(prefix, now)
		if err != nil {
			return nil, false, fmt.Errorf("generate referral code: %w", err)
		}

		code := &Code{UserID: userID, ReferralCode: value, CreatedAt: now}
		inserted, err := q.InsertCode(ctx, code)
		if err != nil {
			return nil, false, err
		}
		if inserted {
			return code, true, nil
		}

		existing, err := q.GetCodeByUser(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// value collided with another user's code
	}
	return nil, false, ErrCodeSpaceExhausted
}

// ensureAgentCode issues an AGENT code to a newly promoted user that has
// none. An existing code is kept.
func (s *Service) ensureAgentCode(ctx context.Context, q Queries, userID uuid.UUID) error {
	existing, err := q.GetCodeByUser(ctx, userID)
	if err != nil || existing != nil {
		return err
	}
	_, _, err = s.issueCode(ctx, q, userID, PrefixAgent)
	return err
}

// AgentCodeHook lets the admin ledger issue an AGENT code inside the same
// transaction that makes a user an agent.
func (s *Service) AgentCodeHook() balance.AgentHook {
	return func(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
		return s.ensureAgentCode(ctx, newQueries(tx), userID)
	}
}

// ApplyCode binds userID to the owner of code. The referrer is promoted to
// agent when needed and the caller is assigned to them, all in one
// transaction.
func (s *Service) ApplyCode(ctx context.Context, userID uuid.UUID, code string) (*ApplyResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrCodeRequired
	}

	var result ApplyResult
	err := s.store.InTx(ctx, func(q Queries) error {
		owner, err := q.GetCodeByValue(ctx, code)
		if err != nil {
			return err
		}
		if owner == nil {
			return ErrInvalidCode
		}
		if owner.UserID == userID {
			return ErrSelfReferral
		}

		now := s.now().UTC()
		if _, err := q.CreateBalance(ctx, s.newBalance(userID, s.cfg.WelcomeCoins, nil, now)); err != nil {
			return err
		}

		// Lock both rows in id order so crossed applications cannot deadlock.
		self, referrer, err := lockPair(ctx, q, userID, owner.UserID)
		if err != nil {
			return err
		}
		if self == nil {
			return ErrUserNotFound
		}

		prior, err := q.GetReferralByReferred(ctx, userID)
		if err != nil {
			return err
		}
		if prior != nil {
			return ErrAlreadyReferred
		}
		if referrer == nil {
			return ErrReferrerNotFound
		}
		result.ReferrerID = referrer.UserID

		if !referrer.Role.CanReceiveReferrals() {
			if err := q.UpdateRole(ctx, referrer.UserID, balance.RoleAgent, now); err != nil {
				return err
			}
			result.ReferrerPromoted = true

			if err := s.ensureAgentCode(ctx, q, referrer.UserID); err != nil {
				return err
			}
		}

		agentID := referrer.UserID
		if err := q.SetAgent(ctx, userID, &agentID, now); err != nil {
			return err
		}

		completedAt := now
		return q.InsertReferral(ctx, &Record{
			ID:             uuid.New(),
			ReferrerUserID: referrer.UserID,
			ReferredUserID: userID,
			ReferralCode:   owner.ReferralCode,
			Status:         StatusCompleted,
			RewardAmount:   s.cfg.RewardAmount,
			CreatedAt:      now,
			CompletedAt:    &completedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	result.Message = msgApplied
	if result.ReferrerPromoted {
		result.Message = msgAppliedPromoted
	}
	logger.FromContext(ctx).Info().
		Str("user_id", userID.String()).
		Str("referrer_id", result.ReferrerID.String()).
		Bool("referrer_promoted", result.ReferrerPromoted).
		Msg("referral code applied")
	return &result, nil
}

// AutoAssign gives userID a random agent unless it already has one.
func (s *Service) AutoAssign(ctx context.Context, userID uuid.UUID) (*AutoAssignResult, error) {
	var result AutoAssignResult
	err := s.store.InTx(ctx, func(q Queries) error {
		rec, err := q.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrUserNotFound
		}
		if rec.HasAgent() {
			result = AutoAssignResult{AgentID: rec.AgentID, Message: msgAlreadyAssigned}
			return nil
		}

		agents, err := q.ListAgents(ctx)
		if err != nil {
			return err
		}
		agents = withoutUser(agents, userID)
		if len(agents) == 0 {
			result = AutoAssignResult{Message: msgNoAgents}
			return nil
		}

		agent := s.single.Pick(agents, 0)
		ok, err := q.AssignAgentIfUnassigned(ctx, userID, agent.UserID, s.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			current, err := q.GetBalance(ctx, userID)
			if err != nil {
				return err
			}
			result = AutoAssignResult{Message: msgAlreadyAssigned}
			if current != nil {
				result.AgentID = current.AgentID
			}
			return nil
		}

		agentID := agent.UserID
		result = AutoAssignResult{Assigned: true, AgentID: &agentID, Message: msgAssigned}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// BulkAutoAssign repairs missing ledger rows, then spreads every unassigned
// plain user over the agents round-robin. Only admins may call it.
func (s *Service) BulkAutoAssign(ctx context.Context, adminID uuid.UUID) (*BulkAssignResult, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, bulkAssignLockName, s.cfg.BulkLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrBulkAssignInProgress
		}
		return nil, fmt.Errorf("acquire bulk assign lock: %w", err)
	}
	defer release()

	var result BulkAssignResult
	err = s.store.InTx(ctx, func(q Queries) error {
		agents, err := q.ListAgents(ctx)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			return ErrNoAgentsAvailable
		}
		result.AgentCount = len(agents)

		now := s.now().UTC()
		repaired, err := q.CreateMissingBalances(ctx, balance.RepairCoins, balance.RoleUser, now)
		if err != nil {
			return err
		}
		result.Repaired = len(repaired)

		unassigned, err := q.ListUnassigned(ctx)
		if err != nil {
			return err
		}
		if len(unassigned) == 0 {
			result.Message = msgNobodyUnassigned
			return nil
		}

		for i, u := range unassigned {
			agent := s.bulk.Pick(agents, i)
			ok, err := q.AssignAgentIfUnassigned(ctx, u.UserID, agent.UserID, now)
			if err != nil {
				return err
			}
			if ok {
				result.UsersAssigned++
			}
		}
		result.Message = fmt.Sprintf(msgBulkAssignedFmt, result.UsersAssigned, result.AgentCount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("admin_id", adminID.String()).
		Int("users_assigned", result.UsersAssigned).
		Int("agent_count", result.AgentCount).
		Int("repaired", result.Repaired).
		Msg("bulk agent assignment finished")
	return &result, nil
}

// RepairMissingBalances creates ledger rows for users that have none.
func (s *Service) RepairMissingBalances(ctx context.Context) ([]uuid.UUID, error) {
	var created []uuid.UUID
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		created, err = q.CreateMissingBalances(ctx, balance.RepairCoins, balance.RoleUser, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		logger.FromContext(ctx).Info().Int("created", len(created)).Msg("missing balances repaired")
	}
	return created, nil
}

// OnUserCreated opens the ledger row of a new signup with the welcome coins
// and a random agent. Failures are logged and never reach the signup.
func (s *Service) OnUserCreated(ctx context.Context, event user.CreatedEvent) {
	l := logger.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Str("user_id", event.UserID.String()).Msg("signup balance hook panicked")
		}
	}()

	err := s.store.InTx(ctx, func(q Queries) error {
		existing, err := q.GetBalance(ctx, event.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		agents, err := q.ListAgents(ctx)
		if err != nil {
			return err
		}
		var agentID *uuid.UUID
		if agents = withoutUser(agents, event.UserID); len(agents) > 0 {
			id := s.single.Pick(agents, 0).UserID
			agentID = &id
		}

		_, err = q.CreateBalance(ctx, s.newBalance(event.UserID, s.cfg.WelcomeCoins, agentID, s.now().UTC()))
		return err
	})
	if err != nil {
		l.Error().Err(err).Str("user_id", event.UserID.String()).Msg("failed to open balance for new user")
		return
	}
	l.Debug().Str("user_id", event.UserID.String()).Msg("balance opened for new user")
}

// AgentReferrals lists the users assigned to agentID and its code, if any.
func (s *Service) AgentReferrals(ctx context.Context, agentID uuid.UUID) (*AgentReferrals, error) {
	out := &AgentReferrals{}
	err := s.store.InTx(ctx, func(q Queries) error {
		code, err := q.GetCodeByUser(ctx, agentID)
		if err != nil {
			return err
		}
		if code != nil {
			value := code.ReferralCode
			out.ReferralCode = &value
		}
		out.Users, err = q.ListAssignedUsers(ctx, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Users == nil {
		out.Users = []AssignedUser{}
	}
	return out, nil
}

func (s *Service) requireAdmin(ctx context.Context, userID uuid.UUID) error {
	return s.store.InTx(ctx, func(q Queries) error {
		rec, err := q.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil || rec.Role != balance.RoleAdmin {
			return ErrUnauthorized
		}
		return nil
	})
}

func (s *Service) newBalance(userID uuid.UUID, coins int64, agentID *uuid.UUID, now time.Time) *balance.Record {
	return &balance.Record{
		UserID:    userID,
		Coins:     coins,
		Role:      balance.RoleUser,
		AgentID:   agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func lockPair(ctx context.Context, q Queries, selfID, referrerID uuid.UUID) (self, referrer *balance.Record, err error) {
	first, second := selfID, referrerID
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}

	a, err := q.GetBalanceForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := q.GetBalanceForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == selfID {
		return a, b, nil
	}
	return b, a, nil
}

func withoutUser(agents []balance.Record, userID uuid.UUID) []balance.Record {
	out := agents[:0:0]
	for _, a := range agents {
		if a.UserID != userID {
			out = append(out, a)
		}
	}
	return out
}
