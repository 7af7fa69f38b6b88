package generation

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

// Repository defines generation data access
type Repository interface {
	Create(ctx context.Context, g *Generation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Generation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Generation, error)
	Claim(ctx context.Context, g *Generation, attempt string) (bool, error)
	Release(ctx context.Context, id uuid.UUID, attempt string) error
	Finish(ctx context.Context, id uuid.UUID, attempt string, status Status, resultURL, errMsg string) error
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	Delete(ctx context.Context, id uuid.UUID, attempt string) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates generation repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const generationColumns = `id, user_id, style, pet_name, source_image_url, prompt, status, attempt, result_url,
	error_message, created_at, updated_at`

func (r *repository) Create(ctx context.Context, g *Generation) error {
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Status == "" {
		g.Status = StatusPending
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO generations (id, user_id, style, pet_name, source_image_url, prompt, status, attempt, created_at, updated_at)
		VALUES (:id, :user_id, :style, :pet_name, :source_image_url, :prompt, :status, :attempt, :created_at, :updated_at)
	`, g)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errDuplicate
		}
		return fmt.Errorf("generation repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Generation, error) {
	var g Generation
	err := r.db.GetContext(ctx, &g, r.db.Rebind(`SELECT `+generationColumns+` FROM generations WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGenerationNotFound
		}
		return nil, fmt.Errorf("generation repository get: %w", err)
	}
	return &g, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Generation, error) {
	items := []*Generation{}
	err := r.db.SelectContext(ctx, &items, r.db.Rebind(`
		SELECT `+generationColumns+`
		FROM generations
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("generation repository list: %w", err)
	}
	return items, nil
}

// Claim hands g to a new attempt. It succeeds only while the row still has
// the status and attempt g was read with.
func (r *repository) Claim(ctx context.Context, g *Generation, attempt string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE generations
		SET status = ?, attempt = ?, updated_at = ?
		WHERE id = ? AND status = ? AND COALESCE(attempt, '') = ?
	`), StatusRunning, attempt, time.Now().UTC(), g.ID, g.Status, g.Attempt.String)
	if err != nil {
		return false, fmt.Errorf("generation repository claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("generation repository claim rows affected: %w", err)
	}
	return n == 1, nil
}

// Release puts a running generation back to pending
func (r *repository) Release(ctx context.Context, id uuid.UUID, attempt string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE generations
		SET status = ?, attempt = NULL, updated_at = ?
		WHERE id = ? AND status = ? AND attempt = ?
	`), StatusPending, time.Now().UTC(), id, StatusRunning, attempt)
	if err != nil {
		return fmt.Errorf("generation repository release: %w", err)
	}
	return requireClaim(res)
}

// Finish moves a running generation to a final status. Only the attempt
// holding the claim may finish it.
func (r *repository) Finish(ctx context.Context, id uuid.UUID, attempt string, status Status, resultURL, errMsg string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE generations
		SET status = ?, result_url = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ? AND attempt = ?
	`), status, nullString(resultURL), nullString(errMsg), time.Now().UTC(), id, StatusRunning, attempt)
	if err != nil {
		return fmt.Errorf("generation repository finish: %w", err)
	}
	return requireClaim(res)
}

// SetStatus moves a finished generation between failed and refund_failed
func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE generations SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`), to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("generation repository set status: %w", err)
	}
	return requireClaim(res)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID, attempt string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM generations WHERE id = ? AND status = ? AND attempt = ?`),
		id, StatusRunning, attempt)
	if err != nil {
		return fmt.Errorf("generation repository delete: %w", err)
	}
	return requireClaim(res)
}

func requireClaim(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("generation repository rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotClaimed
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
