package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher()

	hash, err := hasher.Hash("Password123")
	require.NoError(t, err)
	assert.NotEqual(t, "Password123", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)

	ok, err := hasher.Verify("Password123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("password123", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptHasherSaltsEachHash(t *testing.T) {
	hasher := NewBcryptHasher()

	first, err := hasher.Hash("Password123")
	require.NoError(t, err)
	second, err := hasher.Hash("Password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBcryptHasherMalformedHash(t *testing.T) {
	hasher := NewBcryptHasher()

	ok, err := hasher.Verify("Password123", "not-a-bcrypt-hash")
	assert.Error(t, err)
	assert.False(t, ok)
}
