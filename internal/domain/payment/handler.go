package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/subscription"
	"github.com/pawtrait/pawtrait-api/internal/middleware"
	"github.com/pawtrait/pawtrait-api/internal/pkg/response"
	"github.com/pawtrait/pawtrait-api/internal/pkg/validator"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListPackages handles GET /payments/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.Packages())
}

// CreateOrder handles POST /payments/orders
// @Summary Start a PayPal checkout
// @Description Creates a PayPal order for a credit package or a paid plan and returns the approve URL.
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateOrderRequest true "What to buy"
// @Success 201 {object} response.Response{data=CheckoutResponse}
// @Failure 400 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /payments/orders [post]
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.CreateOrder(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, out)
}

// Capture handles POST /payments/orders/{orderID}/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	out, err := h.service.Capture(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, out)
}

// List handles GET /payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page := credit.PageFromQuery(r)
	items, err := h.service.ListByUser(r.Context(), userID, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.WithMeta(w, items, response.Meta{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(items),
		HasNext: len(items) == page.Limit,
	})
}

// Webhook handles POST /webhooks/paypal. Non-2xx answers make PayPal redeliver.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "invalid body")
		return
	}

	if err := h.service.HandleWebhook(r.Context(), r.Header, body); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		response.NotFound(w, "Payment not found")
	case errors.Is(err, ErrUnknownItem):
		response.BadRequest(w, "Unknown item")
	case errors.Is(err, ErrFreePlan):
		response.BadRequest(w, "The free plan is activated without payment")
	case errors.Is(err, ErrInvalidSignature):
		response.Unauthorized(w, "invalid signature")
	case errors.Is(err, ErrPaymentNotCompleted):
		response.Error(w, http.StatusPaymentRequired, "PAYMENT_NOT_COMPLETED", err.Error())
	case errors.Is(err, ErrProviderUnavailable):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("paypal call failed")
		response.BadGateway(w, "Payment provider unavailable")
	case errors.Is(err, subscription.ErrPlanNotFound):
		response.BadRequest(w, "Unknown plan")
	case errors.Is(err, credit.ErrStoreUnavailable), errors.Is(err, credit.ErrAccountNotFound):
		credit.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("payment request failed")
		response.InternalError(w)
	}
}

// Routes returns payment router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/packages", h.ListPackages)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Post("/orders", h.CreateOrder)
		r.Post("/orders/{orderID}/capture", h.Capture)
	})

	return r
}
