package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	Cost = bcrypt.MinCost

	h, err := Hash("correct horse")
	require.NoError(t, err)
	require.True(t, Verify("correct horse", h))
	require.False(t, Verify("wrong horse", h))

	_, err = Hash(strings.Repeat("a", 73))
	require.ErrorIs(t, err, ErrTooLong)
}
