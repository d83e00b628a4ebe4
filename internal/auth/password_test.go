package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	testCases := []struct {
		name     string
		password string
	}{
		{name: "plain", password: "stagelights42"},
		{name: "empty", password: ""},
		{name: "symbols", password: "b@ll3t!#%&*()_+"},
		{name: "unicode", password: "ténor-ñ-ü"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := HashPassword(tc.password)
			require.NoError(t, err)
			require.NotEmpty(t, hash)
			assert.NotEqual(t, tc.password, hash)

			assert.True(t, CheckPasswordHash(tc.password, hash))
			assert.False(t, CheckPasswordHash(tc.password+"x", hash))
		})
	}
}

func TestHashPasswordSalts(t *testing.T) {
	a, err := HashPassword("same-password")
	require.NoError(t, err)
	b, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCheckPasswordHashInvalidHash(t *testing.T) {
	assert.False(t, CheckPasswordHash("anything", "not$a$bcrypt$hash"))
	assert.False(t, CheckPasswordHash("anything", ""))
}
