package generation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status of a generation
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusRefundFailed Status = "refund_failed"
)

// Cost is the price of one portrait in credits
const Cost int64 = 1

// Generation is one portrait request. Its id is the client's request id.
type Generation struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	Style          string         `db:"style" json:"style"`
	PetName        string         `db:"pet_name" json:"pet_name"`
	SourceImageURL string         `db:"source_image_url" json:"source_image_url"`
	Prompt         string         `db:"prompt" json:"-"`
	Status         Status         `db:"status" json:"status"`
	Attempt        sql.NullString `db:"attempt" json:"-"`
	ResultURL      sql.NullString `db:"result_url" json:"-"`
	ErrorMessage   sql.NullString `db:"error_message" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// DebitKey is the ledger key of the charge
func (g *Generation) DebitKey() string {
	return "generation:" + g.ID.String()
}

// RefundKey is the ledger key of the refund
func (g *Generation) RefundKey() string {
	return g.DebitKey() + ":refund"
}

// Response is the API view of a generation
type Response struct {
	ID        uuid.UUID `json:"id"`
	Style     string    `json:"style"`
	PetName   string    `json:"pet_name"`
	Status    Status    `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Credits   *int64    `json:"credits,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToResponse converts the record to its API view
func (g *Generation) ToResponse() Response {
	return Response{
		ID:        g.ID,
		Style:     g.Style,
		PetName:   g.PetName,
		Status:    g.Status,
		ResultURL: g.ResultURL.String,
		Error:     g.ErrorMessage.String,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}
