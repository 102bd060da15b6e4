package balance

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/middleware"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/errorhandler"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/password"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/response"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/validator"
)

// AdminService is the part of Service used by the admin handler.
type AdminService interface {
	ListAccounts(ctx context.Context, search string, limit, offset int) ([]Account, int, error)
	Check(ctx context.Context) (*ConsistencyReport, error)
	ChangeRole(ctx context.Context, userID uuid.UUID, role Role) error
	AssignAgent(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) error
	CreateAccount(ctx context.Context, in NewAccount) (*Account, error)
	DeleteAccount(ctx context.Context, requesterID, userID uuid.UUID) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type Handler struct {
	svc AdminService
}

func NewHandler(svc AdminService) *Handler {
	return &Handler{svc: svc}
}

// ListUsers handles GET /admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseIntDefault(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	accounts, total, err := h.svc.ListAccounts(r.Context(), strings.TrimSpace(q.Get("search")), limit, offset)
	if err != nil {
		errorhandler.InternalError(r.Context(), w, "balance.ListUsers", err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}

	response.WithMeta(w, accounts, response.NewMeta(total, limit, offset, len(accounts)))
}

// Check handles GET /admin/balances/check
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Check(r.Context())
	if err != nil {
		errorhandler.InternalError(r.Context(), w, "balance.Check", err)
		return
	}
	response.OK(w, report)
}

// ChangeRole handles PUT /admin/users/{id}/role
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	if err := h.svc.ChangeRole(r.Context(), userID, Role(req.Role)); err != nil {
		h.writeError(w, r, "balance.ChangeRole", err)
		return
	}
	response.OK(w, map[string]interface{}{
		"message": "User updated successfully",
		"role":    req.Role,
	})
}

// AssignAgent handles PUT /admin/users/{id}/agent
func (h *Handler) AssignAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req AssignAgentRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	var raw string
	if req.AgentID != nil {
		raw = *req.AgentID
	}
	agentID, err := ParseAgentRef(raw)
	if err != nil {
		response.ValidationError(w, map[string]string{"agentId": "Invalid agent id"})
		return
	}

	if err := h.svc.AssignAgent(r.Context(), userID, agentID); err != nil {
		h.writeError(w, r, "balance.AssignAgent", err)
		return
	}
	response.OK(w, map[string]interface{}{
		"message": "Agent assignment updated",
		"agentId": agentID,
	})
}

// CreateUser handles POST /admin/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	in := NewAccount{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     RoleUser,
		Coins:    defaultInitialCoins,
	}
	if req.Role != "" {
		in.Role = Role(req.Role)
	}
	if req.InitialCoins != nil {
		in.Coins = *req.InitialCoins
	}
	if req.AgentID != nil {
		agentID, err := ParseAgentRef(*req.AgentID)
		if err != nil {
			response.ValidationError(w, map[string]string{"agentId": "Invalid agent id"})
			return
		}
		in.AgentID = agentID
	}

	account, err := h.svc.CreateAccount(r.Context(), in)
	if err != nil {
		h.writeError(w, r, "balance.CreateUser", err)
		return
	}
	response.Created(w, account)
}

// DeleteUser handles DELETE /admin/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), middleware.GetUserID(r.Context()), userID); err != nil {
		h.writeError(w, r, "balance.DeleteUser", err)
		return
	}
	response.OK(w, map[string]string{"message": "User deleted successfully"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		response.NotFound(w, "User balance not found")
	case errors.Is(err, ErrInvalidRole):
		response.BadRequest(w, "Invalid role")
	case errors.Is(err, ErrNotAnAgent):
		response.BadRequest(w, "Selected user is not an agent")
	case errors.Is(err, ErrSelfAssignment):
		response.BadRequest(w, "User cannot be their own agent")
	case errors.Is(err, ErrSelfDeletion):
		response.BadRequest(w, "You cannot delete your own account")
	case errors.Is(err, ErrNegativeCoins):
		response.BadRequest(w, "Initial coins cannot be negative")
	case errors.Is(err, password.ErrTooShort):
		response.BadRequest(w, "Password is too short")
	case errors.Is(err, user.ErrEmailAlreadyExists):
		response.Conflict(w, "User with this email already exists")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, "User not found")
	default:
		errorhandler.InternalError(r.Context(), w, op, err)
	}
}

// Routes returns a router with the admin ledger endpoints behind
// authMiddleware and adminOnly.
func (h *Handler) Routes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminOnly)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes adds the admin ledger endpoints to r. The caller guards r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Delete("/users/{id}", h.DeleteUser)
	r.Put("/users/{id}/role", h.ChangeRole)
	r.Put("/users/{id}/agent", h.AssignAgent)
	r.Get("/balances/check", h.Check)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
