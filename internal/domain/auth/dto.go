package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/pawtrait/pawtrait-api/internal/domain/user"
	"github.com/pawtrait/pawtrait-api/internal/pkg/jwt"
)

// RegisterRequest for POST /auth/register
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest for POST /auth/refresh and /auth/logout
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse returned after register, login and refresh
type AuthResponse struct {
	User   UserResponse  `json:"user"`
	Tokens jwt.TokenPair `json:"tokens"`
}

// UserResponse represents user in API response
type UserResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	Role                  string     `json:"role"`
	Credits               int64      `json:"credits"`
	SubscriptionPlan      string     `json:"subscription_plan"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             string     `json:"created_at"`
}

// NewUserResponse builds the public view; credits come from the ledger
func NewUserResponse(u *user.User, credits int64) UserResponse {
	resp := UserResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               string(u.Role),
		Credits:            credits,
		SubscriptionPlan:   u.SubscriptionPlan,
		SubscriptionStatus: string(u.SubscriptionStatus),
		CreatedAt:          u.CreatedAt.Format(time.RFC3339),
	}
	if u.SubscriptionExpiresAt.Valid {
		t := u.SubscriptionExpiresAt.Time
		resp.SubscriptionExpiresAt = &t
	}
	return resp
}
