package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// errKeyTaken means a concurrent writer committed the same idempotency key first.
var errKeyTaken = errors.New("idempotency key taken")

// SQLStore keeps balances in users.credits and the operation log in
// credit_operations. It works on Postgres and SQLite.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func unavailable(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, step, err)
}

func (s *SQLStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := s.db.GetContext(ctx2, &balance, s.db.Rebind(`SELECT credits FROM users WHERE id = ?`), accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, unavailable("get balance", err)
	}

	return balance, nil
}

func (s *SQLStore) OpenAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.Balance(ctx, accountID)
	return err
}

func (s *SQLStore) Apply(ctx context.Context, op Operation) (Result, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.apply(ctx2, op)
	if !errors.Is(err, errKeyTaken) {
		return res, err
	}

	// The transaction above is rolled back; the winner's record is visible now.
	prior, found, err := s.findApplied(ctx2, s.db, op)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, unavailable("reload idempotency record", errKeyTaken)
	}
	return replay(prior, op)
}

func (s *SQLStore) apply(ctx context.Context, op Operation) (Result, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return Result{}, unavailable("begin tx", err)
	}
	defer tx.Rollback()

	if op.IdempotencyKey != "" {
		prior, found, err := s.findApplied(ctx, tx, op)
		if err != nil {
			return Result{}, err
		}
		if found {
			return replay(prior, op)
		}
	}

	balance, applied, err := s.mutate(ctx, tx, op)
	if err != nil {
		return Result{}, err
	}

	reason := ReasonNone
	if !applied {
		// The guard may have waited on a writer holding the same key.
		if op.IdempotencyKey != "" {
			prior, found, err := s.findApplied(ctx, tx, op)
			if err != nil {
				return Result{}, err
			}
			if found {
				return replay(prior, op)
			}
		}
		reason = ReasonInsufficientBalance
	}

	rec := newRecord(op, balance, applied, reason)
	if err := s.insertOperation(ctx, tx, rec); err != nil {
		if database.IsUniqueViolation(err) {
			return Result{}, errKeyTaken
		}
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		if database.IsUniqueViolation(err) {
			return Result{}, errKeyTaken
		}
		return Result{}, unavailable("commit tx", err)
	}

	return rec.result(), nil
}

// mutate runs the single conditional statement for op and returns the new
// balance. applied is false only when a subtract guard rejected the change.
func (s *SQLStore) mutate(ctx context.Context, tx *sqlx.Tx, op Operation) (int64, bool, error) {
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	switch op.Kind {
	case KindAdd:
		query = `UPDATE users SET credits = credits + ?, updated_at = ? WHERE id = ? RETURNING credits`
		args = []interface{}{op.Amount, now, op.AccountID}
	case KindSubtract:
		query = `UPDATE users SET credits = credits - ?, updated_at = ? WHERE id = ? AND credits >= ? RETURNING credits`
		args = []interface{}{op.Amount, now, op.AccountID, op.Amount}
	case KindSet:
		query = `UPDATE users SET credits = ?, updated_at = ? WHERE id = ? RETURNING credits`
		args = []interface{}{op.Amount, now, op.AccountID}
	default:
		return 0, false, ErrInvalidKind
	}

	var balance int64
	err := tx.GetContext(ctx, &balance, tx.Rebind(query), args...)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, unavailable("update balance", err)
	}

	// Nothing matched: either no such account or the balance guard failed.
	err = tx.GetContext(ctx, &balance, tx.Rebind(`SELECT credits FROM users WHERE id = ?`), op.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrAccountNotFound
		}
		return 0, false, unavailable("read balance", err)
	}

	return balance, false, nil
}

func (s *SQLStore) Lookup(ctx context.Context, accountID uuid.UUID, key string) (OperationRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.findApplied(ctx, s.db, Operation{AccountID: accountID, IdempotencyKey: key})
}

func (s *SQLStore) findApplied(ctx context.Context, q sqlx.QueryerContext, op Operation) (OperationRecord, bool, error) {
	var rec OperationRecord
	err := sqlx.GetContext(ctx, q, &rec, s.db.Rebind(`
		SELECT `+operationColumns+`
		FROM credit_operations
		WHERE account_id = ? AND idempotency_key = ? AND applied
	`), op.AccountID, op.IdempotencyKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OperationRecord{}, false, nil
		}
		return OperationRecord{}, false, unavailable("lookup idempotency key", err)
	}
	return rec, true, nil
}

const operationColumns = `id, account_id, kind, amount, idempotency_key, balance_after, applied,
		rejection_reason, source, description, requested_at, created_at`

func (s *SQLStore) insertOperation(ctx context.Context, tx *sqlx.Tx, rec OperationRecord) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO credit_operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		rec.ID, rec.AccountID, string(rec.Kind), rec.Amount, nullString(rec.IdempotencyKey), rec.BalanceAfter, rec.Applied,
		string(rec.RejectionReason), string(rec.Source), rec.Description, rec.RequestedAt, rec.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return err
		}
		return unavailable("insert operation", err)
	}
	return nil
}

func (s *SQLStore) History(ctx context.Context, accountID uuid.UUID, page Pagination) ([]OperationRecord, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	page = page.Normalize()

	records := make([]OperationRecord, 0, page.Limit)
	err := s.db.SelectContext(ctx2, &records, s.db.Rebind(`
		SELECT `+operationColumns+`
		FROM credit_operations
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`), accountID, page.Limit, page.Offset)
	if err != nil {
		return nil, unavailable("list operations", err)
	}

	return records, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
