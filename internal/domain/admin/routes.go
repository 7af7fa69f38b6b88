package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawtrait/pawtrait-api/internal/middleware"
)

// Handler groups the admin handlers
type Handler struct {
	users   *UserHandler
	credits *CreditHandler
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	return &Handler{
		users:   NewUserHandler(service),
		credits: NewCreditHandler(service),
	}
}

// Routes returns admin router. Every route requires an admin token.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())

	// User management
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.users.List)
		r.Put("/{id}/subscription", h.users.UpdateSubscription)

		r.Route("/{id}/credits", func(r chi.Router) {
			r.Get("/", h.credits.GetUserCredits)
			r.Post("/", h.credits.Adjust)
			r.Get("/history", h.credits.History)
		})
	})

	r.Post("/credits/bulk", h.credits.Bulk)

	return r
}
