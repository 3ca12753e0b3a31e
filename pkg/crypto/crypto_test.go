package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("pw123456", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, "pw123456", hash)

	require.True(t, VerifyPassword(hash, "pw123456"))
	require.False(t, VerifyPassword(hash, "pw1234567"))
	require.False(t, VerifyPassword("not-a-hash", "pw123456"))
}

func TestHashPasswordClampsCost(t *testing.T) {
	hash, err := HashPassword("secret", 999)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, DefaultHashCost, cost)
}
