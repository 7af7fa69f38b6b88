package generation

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/middleware"
	"github.com/pawtrait/pawtrait-api/internal/pkg/response"
	"github.com/pawtrait/pawtrait-api/internal/pkg/validator"
)

// Handler handles generation HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates generation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// StyleResponse is a style without its prompt template
type StyleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListStyles handles GET /generations/styles
func (h *Handler) ListStyles(w http.ResponseWriter, r *http.Request) {
	styles := h.service.Styles()
	out := make([]StyleResponse, len(styles))
	for i, s := range styles {
		out[i] = StyleResponse{ID: s.ID, Name: s.Name}
	}
	response.OK(w, out)
}

// Create handles POST /generations
// @Summary Generate a pet portrait
// @Description Charges one credit, renders the portrait and refunds the credit if rendering fails. Send the same request_id to retry safely.
// @Tags Generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Portrait parameters"
// @Success 201 {object} response.Response{data=Response}
// @Failure 402 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 500 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /generations [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, out)
}

// Get handles GET /generations/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid generation ID")
		return
	}

	out, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, out)
}

// List handles GET /generations
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page := credit.PageFromQuery(r)
	items, err := h.service.List(r.Context(), userID, page)
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

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		response.PaymentRequired(w, "Not enough credits")
	case errors.Is(err, ErrRefundFailed):
		response.Error(w, http.StatusInternalServerError, "REFUND_FAILED", ErrRefundFailed.Error())
	case errors.Is(err, ErrGenerationFailed):
		response.BadGateway(w, ErrGenerationFailed.Error())
	case errors.Is(err, ErrGenerationNotFound):
		response.NotFound(w, "Generation not found")
	case errors.Is(err, ErrGenerationAlreadyFailed), errors.Is(err, ErrGenerationInProgress):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrUnknownStyle):
		response.BadRequest(w, "Unknown style")
	case errors.Is(err, credit.ErrStoreUnavailable), errors.Is(err, credit.ErrAccountNotFound),
		errors.Is(err, credit.ErrIdempotencyConflict):
		credit.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("generation request failed")
		response.InternalError(w)
	}
}

// Routes returns generation router. limit wraps POST only.
func (h *Handler) Routes(authMiddleware, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/styles", h.ListStyles)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.With(limit).Post("/", h.Create)
	})

	return r
}
