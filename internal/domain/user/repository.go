package user

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

// Repository defines user data access. It never writes credits.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	Count(ctx context.Context) (int, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, sub Subscription) error
	UpdateRole(ctx context.Context, id uuid.UUID, role Role) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const userColumns = `id, email, password_hash, role, credits, subscription_plan, subscription_status,
	subscription_expires_at, created_at, updated_at`

// Create inserts the user with a zero balance
func (r *repository) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.SubscriptionPlan == "" {
		user.SubscriptionPlan = "free"
	}
	if user.SubscriptionStatus == "" {
		user.SubscriptionStatus = SubscriptionInactive
	}
	user.Credits = 0
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (id, email, password_hash, role, credits, subscription_plan, subscription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
	`),
		user.ID, user.Email, user.PasswordHash, string(user.Role),
		user.SubscriptionPlan, string(user.SubscriptionStatus), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("user repository create: %w", err)
	}

	return nil
}

// GetByID returns user by ID
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail returns user by normalized email
func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *repository) getOne(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository get: %w", err)
	}
	return &u, nil
}

// List returns users newest first
func (r *repository) List(ctx context.Context, limit, offset int) ([]User, error) {
	users := make([]User, 0, limit)
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(`
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("user repository list: %w", err)
	}
	return users, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("user repository count: %w", err)
	}
	return n, nil
}

// UpdateSubscription writes the descriptive plan fields
func (r *repository) UpdateSubscription(ctx context.Context, id uuid.UUID, sub Subscription) error {
	var expires sql.NullTime
	if sub.ExpiresAt != nil {
		expires = sql.NullTime{Time: sub.ExpiresAt.UTC(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users
		SET subscription_plan = ?, subscription_status = ?, subscription_expires_at = ?, updated_at = ?
		WHERE id = ?
	`), sub.Plan, string(sub.Status), expires, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("user repository update subscription: %w", err)
	}
	return requireOneRow(res)
}

func (r *repository) UpdateRole(ctx context.Context, id uuid.UUID, role Role) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`),
		string(role), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("user repository update role: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
