package subscription

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/middleware"
	"github.com/pawtrait/pawtrait-api/internal/pkg/response"
)

// Handler handles subscription HTTP requests. Paid plans are bought through
// the payments endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates subscription handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListPlans handles GET /subscriptions/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.service.Plans()
	items := make([]PlanResponse, len(plans))
	for i, p := range plans {
		items[i] = PlanResponseFromCatalog(p)
	}
	response.OK(w, items)
}

// GetCurrent handles GET /subscriptions/current
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	current, err := h.service.Current(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, current)
}

// ActivateFree handles POST /subscriptions/free
func (h *Handler) ActivateFree(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	activation, err := h.service.ActivateFree(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, activation)
}

// Cancel handles POST /subscriptions/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	current, err := h.service.Cancel(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, current)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPlanNotFound):
		response.NotFound(w, "Plan not found")
	case errors.Is(err, ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrCannotCancelFree), errors.Is(err, ErrNoActiveSubscription):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrPaymentRequired):
		response.Error(w, http.StatusPaymentRequired, "PAYMENT_REQUIRED", err.Error())
	case errors.Is(err, credit.ErrStoreUnavailable), errors.Is(err, credit.ErrAccountNotFound):
		credit.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("subscription request failed")
		response.InternalError(w)
	}
}

// Routes returns subscription router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/plans", h.ListPlans)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/current", h.GetCurrent)
		r.Post("/free", h.ActivateFree)
		r.Post("/cancel", h.Cancel)
	})

	return r
}
