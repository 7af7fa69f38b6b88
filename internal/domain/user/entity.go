package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the system
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// SubscriptionStatus mirrors users.subscription_status
type SubscriptionStatus string

const (
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// ValidSubscriptionStatus reports whether s is a known status
func ValidSubscriptionStatus(s SubscriptionStatus) bool {
	switch s {
	case SubscriptionInactive, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

// User is a row of the users table. Credits is read-only here: only the
// credit ledger writes it.
type User struct {
	ID                    uuid.UUID          `db:"id"`
	Email                 string             `db:"email"`
	PasswordHash          string             `db:"password_hash"`
	Role                  Role               `db:"role"`
	Credits               int64              `db:"credits"`
	SubscriptionPlan      string             `db:"subscription_plan"`
	SubscriptionStatus    SubscriptionStatus `db:"subscription_status"`
	SubscriptionExpiresAt sql.NullTime       `db:"subscription_expires_at"`
	CreatedAt             time.Time          `db:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at"`
}

// IsAdmin returns true if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SubscriptionActive reports whether a paid or free plan is currently in force
func (u *User) SubscriptionActive(now time.Time) bool {
	if u.SubscriptionStatus != SubscriptionActive {
		return false
	}
	return !u.SubscriptionExpiresAt.Valid || u.SubscriptionExpiresAt.Time.After(now)
}

// Subscription is the descriptive plan state written by the subscription module
type Subscription struct {
	Plan      string
	Status    SubscriptionStatus
	ExpiresAt *time.Time
}
