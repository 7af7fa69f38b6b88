package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidatePair(t *testing.T) {
	svc := NewService("secret", 15*time.Minute, 24*time.Hour)
	userID := uuid.New()

	pair, err := svc.IssuePair(userID, "admin")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "admin", claims.Role)

	refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, userID, refresh.UserID)

	// token types are not interchangeable
	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAndForeignTokens(t *testing.T) {
	svc := NewService("secret", time.Minute, time.Hour)
	pair, err := svc.IssuePair(uuid.New(), "user")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrExpiredToken)

	other := NewService("another-secret", time.Minute, time.Hour)
	_, err = other.ValidateRefreshToken(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}
