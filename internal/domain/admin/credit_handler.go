package admin

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

// CreditHandler handles admin credit operations
type CreditHandler struct {
	service *Service
}

// NewCreditHandler creates a new credit handler
func NewCreditHandler(service *Service) *CreditHandler {
	return &CreditHandler{service: service}
}

// GetUserCredits handles GET /admin/users/{id}/credits
func (h *CreditHandler) GetUserCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// History handles GET /admin/users/{id}/credits/history
func (h *CreditHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	page := credit.PageFromQuery(r)
	records, err := h.service.History(r.Context(), userID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.WithMeta(w, records, response.Meta{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(records),
		HasNext: len(records) == page.Limit,
	})
}

// Adjust handles POST /admin/users/{id}/credits
// @Summary Adjust a user's credits
// @Description Applies one add, subtract or set operation to the user's balance
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body CreditAdjustRequest true "Operation"
// @Success 200 {object} response.Response{data=credit.Result}
// @Failure 402 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /admin/users/{id}/credits [post]
func (h *CreditHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req CreditAdjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	res, err := h.service.AdjustCredits(r.Context(), middleware.GetUserID(r.Context()), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := res.Err(); err != nil {
		credit.WriteError(w, err)
		return
	}
	response.OK(w, res)
}

// Bulk handles POST /admin/credits/bulk
func (h *CreditHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkCreditRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.BulkAdjust(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, out)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrUnknownPlan), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrNoUsers), errors.Is(err, ErrTooManyUsers), errors.Is(err, ErrNegativeSetValue):
		response.BadRequest(w, err.Error())
	case errors.Is(err, credit.ErrAccountNotFound), errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidKind), errors.Is(err, credit.ErrStoreUnavailable):
		credit.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("admin request failed")
		response.InternalError(w)
	}
}
