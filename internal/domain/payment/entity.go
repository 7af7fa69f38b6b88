package payment

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents payment status
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Purpose is what the buyer pays for
type Purpose string

const (
	PurposeCredits      Purpose = "credits"
	PurposeSubscription Purpose = "subscription"
)

// Payment is one PayPal checkout, keyed by the PayPal order id
type Payment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	ProviderOrderID string          `db:"provider_order_id" json:"order_id"`
	Purpose         Purpose         `db:"purpose" json:"purpose"`
	ItemID          string          `db:"item_id" json:"item_id"`
	Credits         int64           `db:"credits" json:"credits"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	Status          Status          `db:"status" json:"status"`
	CapturedAt      sql.NullTime    `db:"captured_at" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// LedgerKey is the idempotency key that makes fulfilment happen once
func (p *Payment) LedgerKey() string {
	return "paypal:" + p.ProviderOrderID
}
