package balance

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/middleware"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/errorhandler"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/response"
)

// RoleLookup resolves the current ledger role of a user.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (Role, error)
}

// RequireRole admits the request only if the caller's ledger role is one of
// roles. It reads the ledger on every request because roles change without
// new tokens being issued.
func RequireRole(lookup RoleLookup, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := middleware.GetUserID(r.Context())
			if userID == uuid.Nil {
				response.Unauthorized(w, "unauthorized")
				return
			}

			role, err := lookup.RoleOf(r.Context(), userID)
			if err != nil {
				if errors.Is(err, ErrBalanceNotFound) {
					response.Forbidden(w, "Insufficient permissions")
					return
				}
				errorhandler.InternalError(r.Context(), w, "balance.RequireRole", err)
				return
			}

			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "Insufficient permissions")
		})
	}
}
