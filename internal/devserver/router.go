// Package devserver is a small in-memory backend for driving the client end
// to end during development. It speaks the same JSON envelope as the
// production API and serves plain HTTP on a local address.
package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

// NewRouter returns the HTTP handler for svc.
//
// Routes:
//
//	POST   /auth/register
//	POST   /auth/login
//	POST   /auth/verify
//	POST   /auth/logout       (bearer)
//	GET    /users/me          (bearer)
//	PUT    /users/me          (bearer)
//	DELETE /users/me          (bearer)
//	POST   /users/me/avatar   (bearer, multipart)
//	GET    /avatars/{userID}
//	GET    /recipes           (bearer)
//	POST   /recipes/generate  (bearer)
func NewRouter(svc *Service, logger logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(requestLogging(logger))
	r.Use(chiMiddleware.AllowContentType("application/json", "multipart/form-data"))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/verify", h.verify)
		r.With(authenticate(svc)).Post("/logout", h.logout)
	})

	r.Get("/avatars/{userID}", h.avatar)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(svc))

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", h.me)
			r.Put("/", h.updateMe)
			r.Delete("/", h.deleteMe)
			r.Post("/avatar", h.uploadAvatar)
		})

		r.Get("/recipes", h.recipes)
		r.Post("/recipes/generate", h.generate)
	})

	return r
}
