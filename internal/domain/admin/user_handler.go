package admin

import (
	"net/http"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/middleware"
	"github.com/pawtrait/pawtrait-api/internal/pkg/response"
	"github.com/pawtrait/pawtrait-api/internal/pkg/validator"
)

// UserHandler handles admin user management endpoints
type UserHandler struct {
	service *Service
}

// NewUserHandler creates user handler for admin
func NewUserHandler(service *Service) *UserHandler {
	return &UserHandler{service: service}
}

// List handles GET /admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page := credit.PageFromQuery(r)
	users, total, err := h.service.ListUsers(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.WithMeta(w, users, response.Meta{
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(users),
		HasNext: page.Offset+len(users) < total,
	})
}

// UpdateSubscription handles PUT /admin/users/{id}/subscription
// @Summary Override a user's subscription
// @Description Writes plan and status, then optionally sets the balance and adds the plan credits, in that order
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body SubscriptionOverrideRequest true "Override"
// @Success 200 {object} response.Response{data=SubscriptionOverrideResponse}
// @Router /admin/users/{id}/subscription [put]
func (h *UserHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req SubscriptionOverrideRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.OverrideSubscription(r.Context(), middleware.GetUserID(r.Context()), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, out)
}
