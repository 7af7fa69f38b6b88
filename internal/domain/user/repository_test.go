package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/domain/user"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database/dbtest"
)

func TestRepositoryCreateAndGet(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := user.NewRepository(db.DB)
	ctx := context.Background()

	u := &user.User{Email: "cat@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, u))
	require.NotEqual(t, uuid.Nil, u.ID)

	got, err := repo.GetByEmail(ctx, "cat@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, user.RoleUser, got.Role)
	require.Equal(t, int64(0), got.Credits)
	require.Equal(t, "free", got.SubscriptionPlan)
	require.Equal(t, user.SubscriptionInactive, got.SubscriptionStatus)
	require.False(t, got.SubscriptionExpiresAt.Valid)

	err = repo.Create(ctx, &user.User{Email: "cat@example.com", PasswordHash: "other"})
	require.ErrorIs(t, err, user.ErrEmailAlreadyExists)

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestRepositoryUpdateSubscription(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := user.NewRepository(db.DB)
	ctx := context.Background()

	u := &user.User{Email: "dog@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, u))

	expires := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateSubscription(ctx, u.ID, user.Subscription{
		Plan:      "premium",
		Status:    user.SubscriptionActive,
		ExpiresAt: &expires,
	}))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "premium", got.SubscriptionPlan)
	require.True(t, got.SubscriptionExpiresAt.Valid)
	require.True(t, got.SubscriptionExpiresAt.Time.Equal(expires))
	require.True(t, got.SubscriptionActive(time.Now()))

	err = repo.UpdateSubscription(ctx, uuid.New(), user.Subscription{Plan: "basic", Status: user.SubscriptionActive})
	require.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestRepositoryListAndRole(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := user.NewRepository(db.DB)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, repo.Create(ctx, &user.User{Email: email, PasswordHash: "hash"}))
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	page, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	require.NoError(t, repo.UpdateRole(ctx, page[0].ID, user.RoleAdmin))
	got, err := repo.GetByID(ctx, page[0].ID)
	require.NoError(t, err)
	require.True(t, got.IsAdmin())
}
