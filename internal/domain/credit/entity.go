package credit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the mutation a ledger operation performs.
type Kind string

const (
	KindAdd      Kind = "add"
	KindSubtract Kind = "subtract"
	KindSet      Kind = "set"
)

// ParseKind maps admin/CLI input onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAdd, KindSubtract, KindSet:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

// Reason explains why Apply did not change stored state.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonAlreadyApplied      Reason = "already_applied"
)

// Source tags who asked for an operation. Audit only.
type Source string

const (
	SourceSignup       Source = "signup"
	SourceGeneration   Source = "generation"
	SourceRefund       Source = "generation_refund"
	SourceSubscription Source = "subscription"
	SourcePurchase     Source = "purchase"
	SourceAdmin        Source = "admin"
	SourceCLI          Source = "cli"
)

// Operation is a single request to mutate one account's balance.
type Operation struct {
	AccountID      uuid.UUID
	Kind           Kind
	Amount         int64
	IdempotencyKey string
	Source         Source
	Description    string
	RequestedAt    time.Time
}

// Validate rejects operations that can never be applied.
func (op Operation) Validate() error {
	if op.AccountID == uuid.Nil {
		return ErrAccountNotFound
	}
	switch op.Kind {
	case KindAdd, KindSubtract:
		if op.Amount <= 0 {
			return ErrInvalidAmount
		}
	case KindSet:
		if op.Amount < 0 {
			return ErrInvalidAmount
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// Result is what the ledger reports back for an Apply call.
type Result struct {
	NewBalance      int64     `json:"new_balance"`
	Applied         bool      `json:"applied"`
	RejectionReason Reason    `json:"rejection_reason,omitempty"`
	OperationID     uuid.UUID `json:"operation_id"`
}

// Replayed reports whether the result comes from an earlier application.
func (r Result) Replayed() bool {
	return r.RejectionReason == ReasonAlreadyApplied
}

// Err converts a rejection into an error. Replays are not errors.
func (r Result) Err() error {
	if r.RejectionReason == ReasonInsufficientBalance {
		return ErrInsufficientBalance
	}
	return nil
}

// OperationRecord is a row of the operation log.
type OperationRecord struct {
	ID              uuid.UUID `db:"id" json:"id"`
	AccountID       uuid.UUID `db:"account_id" json:"account_id"`
	Kind            Kind      `db:"kind" json:"kind"`
	Amount          int64     `db:"amount" json:"amount"`
	IdempotencyKey  *string   `db:"idempotency_key" json:"idempotency_key,omitempty"`
	BalanceAfter    int64     `db:"balance_after" json:"balance_after"`
	Applied         bool      `db:"applied" json:"applied"`
	RejectionReason Reason    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Source          Source    `db:"source" json:"source"`
	Description     string    `db:"description" json:"description"`
	RequestedAt     time.Time `db:"requested_at" json:"requested_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

func newRecord(op Operation, balance int64, applied bool, reason Reason) OperationRecord {
	rec := OperationRecord{
		ID:              uuid.New(),
		AccountID:       op.AccountID,
		Kind:            op.Kind,
		Amount:          op.Amount,
		BalanceAfter:    balance,
		Applied:         applied,
		RejectionReason: reason,
		Source:          op.Source,
		Description:     op.Description,
		RequestedAt:     op.RequestedAt.UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if op.IdempotencyKey != "" {
		key := op.IdempotencyKey
		rec.IdempotencyKey = &key
	}
	return rec
}

func (rec OperationRecord) result() Result {
	return Result{
		NewBalance:      rec.BalanceAfter,
		Applied:         rec.Applied,
		RejectionReason: rec.RejectionReason,
		OperationID:     rec.ID,
	}
}

// replay answers a retried operation from the record of its first application.
// A key reused for a different mutation is a caller bug, not a replay.
func replay(prior OperationRecord, op Operation) (Result, error) {
	if prior.Kind != op.Kind || prior.Amount != op.Amount {
		return Result{}, ErrIdempotencyConflict
	}
	return Result{
		NewBalance:      prior.BalanceAfter,
		Applied:         false,
		RejectionReason: ReasonAlreadyApplied,
		OperationID:     prior.ID,
	}, nil
}

// Pagination controls history listing.
type Pagination struct {
	Limit  int
	Offset int
}

// Normalize applies the default page size and the 100 row cap
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
