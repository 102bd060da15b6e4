package referral

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/middleware"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/errorhandler"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/response"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/validator"
)

// Engine is the part of Service used over HTTP.
type Engine interface {
	GetOrCreateCode(ctx context.Context, userID uuid.UUID) (*IssuedCode, error)
	ApplyCode(ctx context.Context, userID uuid.UUID, code string) (*ApplyResult, error)
	AutoAssign(ctx context.Context, userID uuid.UUID) (*AutoAssignResult, error)
	BulkAutoAssign(ctx context.Context, adminID uuid.UUID) (*BulkAssignResult, error)
	AgentReferrals(ctx context.Context, agentID uuid.UUID) (*AgentReferrals, error)
}

// Handler serves the referral endpoints. Bodies are flat camelCase JSON,
// without the response envelope, for existing clients.
type Handler struct {
	svc Engine
}

func NewHandler(svc Engine) *Handler {
	return &Handler{svc: svc}
}

// GetCode handles GET /referral-code
func (h *Handler) GetCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	issued, err := h.svc.GetOrCreateCode(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "referral.GetCode", err)
		return
	}
	response.Raw(w, http.StatusOK, CodeResponse{
		ReferralCode: issued.Code.ReferralCode,
		CreatedAt:    issued.Code.CreatedAt,
		IsNew:        issued.IsNew,
	})
}

// Apply handles POST /referral/apply
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req ApplyCodeRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.RawError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ReferralCode = NormalizeCode(req.ReferralCode)
	if req.ReferralCode == "" {
		response.RawError(w, http.StatusBadRequest, "Referral code is required")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.RawError(w, http.StatusBadRequest, "Invalid referral code")
		return
	}

	result, err := h.svc.ApplyCode(r.Context(), userID, req.ReferralCode)
	if err != nil {
		h.writeError(w, r, "referral.Apply", err)
		return
	}
	response.Raw(w, http.StatusOK, ApplyResponse{
		Success:          true,
		Message:          result.Message,
		ReferrerPromoted: result.ReferrerPromoted,
	})
}

// AutoAssign handles POST /user/auto-assign-agent
func (h *Handler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.svc.AutoAssign(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "referral.AutoAssign", err)
		return
	}
	response.Raw(w, http.StatusOK, AutoAssignResponse{
		Success:  true,
		Message:  result.Message,
		AgentID:  result.AgentID,
		Assigned: result.Assigned,
	})
}

// BulkAutoAssign handles POST /admin/users/auto-assign-bulk
func (h *Handler) BulkAutoAssign(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.svc.BulkAutoAssign(r.Context(), adminID)
	if err != nil {
		if errors.Is(err, ErrNoAgentsAvailable) {
			response.Raw(w, http.StatusBadRequest, BulkAssignResponse{
				Message: "No active agents found to assign users to.",
			})
			return
		}
		h.writeError(w, r, "referral.BulkAutoAssign", err)
		return
	}
	response.Raw(w, http.StatusOK, BulkAssignResponse{
		Success: true,
		Message: result.Message,
		Details: &BulkAssignDetails{
			UsersAssigned: result.UsersAssigned,
			AgentCount:    result.AgentCount,
		},
	})
}

// AgentReferrals handles GET /admin/agents/referrals?agentId=
func (h *Handler) AgentReferrals(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("agentId")
	if raw == "" {
		response.RawError(w, http.StatusBadRequest, "Agent ID is required")
		return
	}
	agentID, err := uuid.Parse(raw)
	if err != nil {
		response.RawError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	out, err := h.svc.AgentReferrals(r.Context(), agentID)
	if err != nil {
		h.writeError(w, r, "referral.AgentReferrals", err)
		return
	}
	response.Raw(w, http.StatusOK, agentReferralsResponse(out))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrCodeRequired):
		response.RawError(w, http.StatusBadRequest, "Referral code is required")
	case errors.Is(err, ErrInvalidCode):
		response.RawError(w, http.StatusBadRequest, "Invalid referral code")
	case errors.Is(err, ErrSelfReferral):
		response.RawError(w, http.StatusBadRequest, "Cannot use your own referral code")
	case errors.Is(err, ErrAlreadyReferred):
		response.RawError(w, http.StatusBadRequest, "You have already used a referral code")
	case errors.Is(err, ErrReferrerNotFound):
		response.RawError(w, http.StatusNotFound, "Referrer not found")
	case errors.Is(err, ErrUserNotFound):
		response.RawError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrUnauthorized):
		response.RawError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, ErrBulkAssignInProgress):
		response.RawError(w, http.StatusConflict, "Bulk assignment is already running")
	default:
		errorhandler.HandleRawError(r.Context(), w, http.StatusInternalServerError,
			"Internal server error", fmt.Errorf("%s: %w", op, err))
	}
}

// RegisterRoutes adds the endpoints every signed-in user can call.
// r must already run the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/referral-code", h.GetCode)
	r.Post("/referral/apply", h.Apply)
	r.Post("/user/auto-assign-agent", h.AutoAssign)
}

// RegisterAdminRoutes adds the back-office endpoints relative to /admin.
// Bulk assignment checks the admin role itself and answers 401 on refusal;
// adminOnly guards the rest.
func (h *Handler) RegisterAdminRoutes(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Post("/users/auto-assign-bulk", h.BulkAutoAssign)
	r.With(adminOnly).Get("/agents/referrals", h.AgentReferrals)
}

func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.RawError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}
