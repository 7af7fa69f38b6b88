package subscription

import (
	"time"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
)

// PlanResponse represents plan in API
type PlanResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceMonthly   string `json:"price_monthly"`
	Currency       string `json:"currency"`
	MonthlyCredits int64  `json:"monthly_credits"`
	Free           bool   `json:"free"`
}

// PlanResponseFromCatalog converts catalog plan to response
func PlanResponseFromCatalog(p catalog.Plan) PlanResponse {
	return PlanResponse{
		ID:             p.ID,
		Name:           p.Name,
		PriceMonthly:   p.PriceMonthly.StringFixed(2),
		Currency:       p.Currency,
		MonthlyCredits: p.MonthlyCredits,
		Free:           p.Free(),
	}
}

// CurrentResponse is the caller's subscription state
type CurrentResponse struct {
	Plan           string                  `json:"plan"`
	Status         user.SubscriptionStatus `json:"status"`
	ExpiresAt      *time.Time              `json:"expires_at,omitempty"`
	Active         bool                    `json:"active"`
	MonthlyCredits int64                   `json:"monthly_credits"`
	Credits        int64                   `json:"credits"`
}

// Activation is the outcome of one plan activation
type Activation struct {
	CurrentResponse
	// Granted is false when the plan credits were already issued for this key
	Granted bool `json:"granted"`
}
