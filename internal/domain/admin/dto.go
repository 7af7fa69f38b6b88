package admin

import (
	"time"

	"github.com/google/uuid"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
)

// MaxBulkUsers caps POST /admin/credits/bulk
const MaxBulkUsers = 500

// CreditAdjustRequest for POST /admin/users/{id}/credits
type CreditAdjustRequest struct {
	Action string `json:"action" validate:"required,ledger_kind"`
	Amount int64  `json:"amount" validate:"min=0,max=1000000"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// BulkCreditRequest for POST /admin/credits/bulk
type BulkCreditRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" validate:"required,min=1"`
	Action  string      `json:"action" validate:"required,ledger_kind"`
	Amount  int64       `json:"amount" validate:"min=0,max=1000000"`
	Reason  string      `json:"reason" validate:"required,min=3,max=500"`
}

// BulkOutcome is the result for one user of a bulk request
type BulkOutcome struct {
	UserID          uuid.UUID     `json:"user_id"`
	Applied         bool          `json:"applied"`
	NewBalance      int64         `json:"new_balance"`
	RejectionReason credit.Reason `json:"rejection_reason,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// BulkResponse summarises a bulk request
type BulkResponse struct {
	Applied  int           `json:"applied"`
	Failed   int           `json:"failed"`
	Outcomes []BulkOutcome `json:"outcomes"`
}

// SubscriptionOverrideRequest for PUT /admin/users/{id}/subscription
type SubscriptionOverrideRequest struct {
	Plan           string `json:"plan" validate:"required"`
	Status         string `json:"status" validate:"required,sub_status"`
	SetCredits     *int64 `json:"set_credits"`
	AddPlanCredits bool   `json:"add_plan_credits"`
}

// SubscriptionOverrideResponse reports what the override did
type SubscriptionOverrideResponse struct {
	UserID    uuid.UUID               `json:"user_id"`
	Plan      string                  `json:"plan"`
	Status    user.SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
	Credits   int64                   `json:"credits"`
	Ledger    []credit.Result         `json:"ledger"`
}

// UserSummary represents a user in the admin list
type UserSummary struct {
	ID                    uuid.UUID               `json:"id"`
	Email                 string                  `json:"email"`
	Role                  user.Role               `json:"role"`
	Credits               int64                   `json:"credits"`
	SubscriptionPlan      string                  `json:"subscription_plan"`
	SubscriptionStatus    user.SubscriptionStatus `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time              `json:"subscription_expires_at,omitempty"`
	CreatedAt             string                  `json:"created_at"`
}

// UserSummaryFromEntity converts entity to response. Credits are filled
// from the ledger by the caller.
func UserSummaryFromEntity(u *user.User) UserSummary {
	s := UserSummary{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               u.Role,
		SubscriptionPlan:   u.SubscriptionPlan,
		SubscriptionStatus: u.SubscriptionStatus,
		CreatedAt:          u.CreatedAt.Format(time.RFC3339),
	}
	if u.SubscriptionExpiresAt.Valid {
		t := u.SubscriptionExpiresAt.Time
		s.SubscriptionExpiresAt = &t
	}
	return s
}
