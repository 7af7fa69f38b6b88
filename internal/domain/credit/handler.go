package credit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pawtrait/pawtrait-api/internal/middleware"
	"github.com/pawtrait/pawtrait-api/internal/pkg/response"
)

// Handler serves the caller's own balance and history
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /credits
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"credits": balance})
}

// History handles GET /credits/history?limit=&offset=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page := PageFromQuery(r)
	records, err := h.svc.History(r.Context(), userID, page)
	if err != nil {
		WriteError(w, err)
		return
	}

	page = page.Normalize()
	response.WithMeta(w, records, response.Meta{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(records),
		HasNext: len(records) == page.Limit,
	})
}

// PageFromQuery reads limit/offset query parameters
func PageFromQuery(r *http.Request) Pagination {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return Pagination{Limit: limit, Offset: offset}.Normalize()
}

// WriteError maps ledger errors onto HTTP responses
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		response.NotFound(w, "account not found")
	case errors.Is(err, ErrInsufficientBalance):
		response.PaymentRequired(w, "not enough credits")
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidKind):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrIdempotencyConflict):
		response.Conflict(w, "idempotency key already used for a different operation")
	case errors.Is(err, ErrStoreUnavailable):
		response.ServiceUnavailable(w, "credit store unavailable, retry the same request")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.Balance)
	r.Get("/history", h.History)
	return r
}
