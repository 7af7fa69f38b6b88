package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines payment data access
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, error)
	// MarkCompleted reports whether this call moved the payment to completed
	MarkCompleted(ctx context.Context, orderID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, orderID string) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates payment repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `id, user_id, provider_order_id, purpose, item_id, credits, amount, currency, status,
	captured_at, created_at, updated_at`

func (r *repository) Create(ctx context.Context, p *Payment) error {
	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payments (id, user_id, provider_order_id, purpose, item_id, credits, amount, currency, status, created_at, updated_at)
		VALUES (:id, :user_id, :provider_order_id, :purpose, :item_id, :credits, :amount, :currency, :status, :created_at, :updated_at)
	`, p)
	if err != nil {
		return fmt.Errorf("payment repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+paymentColumns+` FROM payments WHERE provider_order_id = ?`), orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository get: %w", err)
	}
	return &p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, error) {
	payments := []*Payment{}
	err := r.db.SelectContext(ctx, &payments, r.db.Rebind(`
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payment repository list: %w", err)
	}
	return payments, nil
}

func (r *repository) MarkCompleted(ctx context.Context, orderID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE payments
		SET status = ?, captured_at = ?, updated_at = ?
		WHERE provider_order_id = ? AND status <> ?
	`), StatusCompleted, at.UTC(), time.Now().UTC(), orderID, StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("payment repository complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment repository complete: %w", err)
	}
	return n > 0, nil
}

func (r *repository) MarkFailed(ctx context.Context, orderID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE payments SET status = ?, updated_at = ?
		WHERE provider_order_id = ? AND status = ?
	`), StatusFailed, time.Now().UTC(), orderID, StatusPending)
	if err != nil {
		return fmt.Errorf("payment repository fail: %w", err)
	}
	return nil
}
