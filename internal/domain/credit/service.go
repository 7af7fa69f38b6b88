package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the only writer of account balances.
type Service interface {
	// GetBalance returns the stored balance or ErrAccountNotFound
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)

	// Apply validates and applies one operation.
	// A rejected subtract is reported in Result, not as an error.
	Apply(ctx context.Context, op Operation) (Result, error)

	// History returns the newest operations first, rejected ones included
	History(ctx context.Context, accountID uuid.UUID, page Pagination) ([]OperationRecord, error)

	// Lookup returns the applied operation recorded under key, if any
	Lookup(ctx context.Context, accountID uuid.UUID, key string) (OperationRecord, bool, error)

	// OpenAccount makes sure the account exists with a zero balance
	OpenAccount(ctx context.Context, accountID uuid.UUID) error
}

type service struct {
	store Store
	now   func() time.Time
}

// NewService creates the ledger over a durable store
func NewService(store Store) Service {
	return &service{store: store, now: time.Now}
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, ErrAccountNotFound
	}
	return s.store.Balance(ctx, accountID)
}

func (s *service) Apply(ctx context.Context, op Operation) (Result, error) {
	if err := op.Validate(); err != nil {
		observe(op.Kind, outcomeError)
		return Result{}, err
	}
	if op.RequestedAt.IsZero() {
		op.RequestedAt = s.now()
	}

	res, err := s.store.Apply(ctx, op)
	if err != nil {
		observe(op.Kind, outcomeError)
		event := log.Error()
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrIdempotencyConflict) {
			event = log.Warn()
		}
		event.Err(err).
			Str("account_id", op.AccountID.String()).
			Str("kind", string(op.Kind)).
			Int64("amount", op.Amount).
			Str("idempotency_key", op.IdempotencyKey).
			Msg("credit operation failed")
		return Result{}, err
	}

	switch {
	case res.Applied:
		observe(op.Kind, outcomeApplied)
		log.Info().
			Str("account_id", op.AccountID.String()).
			Str("kind", string(op.Kind)).
			Int64("amount", op.Amount).
			Int64("balance", res.NewBalance).
			Str("source", string(op.Source)).
			Str("idempotency_key", op.IdempotencyKey).
			Msg("credit operation applied")
	case res.Replayed():
		observe(op.Kind, outcomeReplayed)
		log.Info().
			Str("account_id", op.AccountID.String()).
			Str("idempotency_key", op.IdempotencyKey).
			Msg("credit operation already applied")
	default:
		observe(op.Kind, outcomeInsufficient)
		log.Warn().
			Str("account_id", op.AccountID.String()).
			Int64("amount", op.Amount).
			Int64("balance", res.NewBalance).
			Str("source", string(op.Source)).
			Msg("credit operation rejected: insufficient balance")
	}

	return res, nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, page Pagination) ([]OperationRecord, error) {
	if accountID == uuid.Nil {
		return nil, ErrAccountNotFound
	}
	return s.store.History(ctx, accountID, page.Normalize())
}

func (s *service) Lookup(ctx context.Context, accountID uuid.UUID, key string) (OperationRecord, bool, error) {
	if key == "" {
		return OperationRecord{}, false, nil
	}
	return s.store.Lookup(ctx, accountID, key)
}

func (s *service) OpenAccount(ctx context.Context, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return ErrAccountNotFound
	}
	return s.store.OpenAccount(ctx, accountID)
}
