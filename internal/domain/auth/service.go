package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/jwt"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/logger"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/password"
)

// RoleLookup resolves the ledger role placed in access tokens.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (balance.Role, error)
}

// Service handles authentication business logic
type Service struct {
	userRepo   user.Repository
	jwtService *jwt.Service
	redis      *redis.Client // nil if Redis disabled
	roles      RoleLookup
	listeners  []user.CreatedListener
	now        func() time.Time
}

// NewService creates auth service
func NewService(userRepo user.Repository, jwtService *jwt.Service, redis *redis.Client, roles RoleLookup) *Service {
	return &Service{
		userRepo:   userRepo,
		jwtService: jwtService,
		redis:      redis,
		roles:      roles,
		now:        time.Now,
	}
}

// Subscribe registers l to run after every successful signup.
func (s *Service) Subscribe(l user.CreatedListener) {
	s.listeners = append(s.listeners, l)
}

// Register creates new user account
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = user.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	// 1. Check if email exists
	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, wrapRegisterError("lookup", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyExists
	}

	// 2. Hash password
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, wrapRegisterError("hash", err)
	}

	// 3. Create user
	now := s.now().UTC()
	u := &user.User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if isEmailAlreadyExistsError(err) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, wrapRegisterError("create", err)
	}

	// 4. Notify subscribers; the account exists whatever they do
	s.publishCreated(ctx, user.CreatedEvent{UserID: u.ID, CreatedAt: now})

	// 5. Generate tokens
	return s.generateTokens(ctx, u)
}

func (s *Service) publishCreated(ctx context.Context, event user.CreatedEvent) {
	for _, l := range s.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.FromContext(ctx).Error().
						Interface("panic", r).
						Str("user_id", event.UserID.String()).
						Msg("user created listener panicked")
				}
			}()
			l.OnUserCreated(ctx, event)
		}()
	}
}

// Login authenticates user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = user.NormalizeEmail(req.Email)

	// 1. Find user
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil || u == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Verify password
	if !password.Verify(req.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// Check if banned
	if !u.IsActive() {
		return nil, ErrUserBanned
	}

	// 3. Generate tokens
	return s.generateTokens(ctx, u)
}

// Refresh issues new tokens for a valid refresh token. With Redis the old
// token must still be stored and is rotated out.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	// 1. Verify signature and expiry
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	// 2. Check the stored hash
	refreshHash := jwt.HashRefreshToken(refreshToken)
	if s.redis != nil {
		userID, err := s.getRefreshToken(ctx, refreshHash)
		if err != nil || userID != claims.UserID {
			return nil, ErrInvalidRefreshToken
		}
	}

	// 3. Get user
	u, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || u == nil {
		return nil, ErrUserNotFound
	}
	if !u.IsActive() {
		return nil, ErrUserBanned
	}

	// 4. Delete old refresh token (token rotation)
	_ = s.deleteRefreshToken(ctx, refreshHash)

	// 5. Generate new tokens
	return s.generateTokens(ctx, u)
}

// Logout invalidates refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil // Nothing to logout
	}
	return s.deleteRefreshToken(ctx, jwt.HashRefreshToken(refreshToken))
}

// GetCurrentUser returns current user by ID
func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u == nil {
		return nil, ErrUserNotFound
	}

	resp := NewUserResponse(u, s.roleOf(ctx, u.ID))
	return &resp, nil
}

// roleOf returns the ledger role, or user when the row is missing.
func (s *Service) roleOf(ctx context.Context, userID uuid.UUID) balance.Role {
	if s.roles == nil {
		return balance.RoleUser
	}
	role, err := s.roles.RoleOf(ctx, userID)
	if err != nil {
		if !errors.Is(err, balance.ErrBalanceNotFound) {
			logger.FromContext(ctx).Warn().Err(err).Str("user_id", userID.String()).Msg("role lookup failed")
		}
		return balance.RoleUser
	}
	return role
}

// generateTokens creates access and refresh tokens
func (s *Service) generateTokens(ctx context.Context, u *user.User) (*AuthResponse, error) {
	role := s.roleOf(ctx, u.ID)

	accessToken, err := s.jwtService.GenerateAccessToken(u.ID, string(role))
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, _, err := s.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	// Store hash(refresh) in Redis
	if err := s.storeRefreshToken(ctx, jwt.HashRefreshToken(refreshToken), u.ID); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{
		User: NewUserResponse(u, role),
		Tokens: TokensResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(s.jwtService.GetAccessTTL().Seconds()),
			TokenType:    "Bearer",
		},
	}, nil
}

// Redis helpers (handle nil redis gracefully)
func (s *Service) storeRefreshToken(ctx context.Context, token string, userID uuid.UUID) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Set(ctx, "refresh:"+token, userID.String(), s.jwtService.GetRefreshTTL()).Err()
}

func (s *Service) getRefreshToken(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.redis.Get(ctx, "refresh:"+token).Result()
	if err != nil {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	return uuid.Parse(val)
}

func (s *Service) deleteRefreshToken(ctx context.Context, token string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, "refresh:"+token).Err()
}
