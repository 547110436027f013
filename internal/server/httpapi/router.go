package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// router wires the two surfaces: the JSON API (no refresh gate, the client
// retries through /api/refresh-token itself) and the server-rendered pages,
// where the gate restores an expired access cookie before the page loads.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withCurrentUser)

		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/refresh-token", s.handleRefreshToken)
		r.Get("/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin(false))
			r.Post("/admin/ping", s.handleAdminPing)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.refreshGate)
		r.Use(s.withCurrentUser)

		r.Get("/", s.handleHomePage)

		r.Group(func(r chi.Router) {
			r.Use(redirectIfAuthorized)
			r.Get("/login", s.handleLoginPage)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin(true))
			r.Get("/admin", s.handleAdminPage)
		})
	})

	return r
}
