package credit

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable backend of the ledger. Each Apply must be one atomic
// unit: idempotency lookup, balance mutation and operation log insert commit
// together or not at all.
type Store interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	Apply(ctx context.Context, op Operation) (Result, error)
	History(ctx context.Context, accountID uuid.UUID, page Pagination) ([]OperationRecord, error)
	Lookup(ctx context.Context, accountID uuid.UUID, key string) (OperationRecord, bool, error)
	OpenAccount(ctx context.Context, accountID uuid.UUID) error
}
