package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the session endpoints. Register, login and refresh are
// public; logout and me need a valid access token.
func (h *Handler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)

	r.With(requireAuth).Post("/logout", h.Logout)
	r.With(requireAuth).Get("/me", h.Me)

	return r
}
