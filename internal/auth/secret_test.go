package auth

import (
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateSecret(t *testing.T) {
	s := NewSecrets(bcrypt.MinCost)
	a, err := s.GenerateSecret()
	require.NoError(t, err)
	b, err := s.GenerateSecret()
	require.NoError(t, err)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 16)
	assert.NotEqual(t, a, b)
}

func TestHashAndVerify(t *testing.T) {
	s := NewSecrets(bcrypt.MinCost)
	h1, err := s.Hash("code")
	require.NoError(t, err)
	h2, err := s.Hash("code")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "each hash is freshly salted")
	assert.True(t, s.Verify("code", h1))
	assert.True(t, s.Verify("code", h2))
	assert.False(t, s.Verify("other", h1))
	assert.False(t, s.Verify("", h1))
	assert.False(t, s.Verify("code", "not-a-hash"))
}

func TestNewSecrets_CostFallback(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewSecrets(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewSecrets(99).cost)
	assert.Equal(t, 12, NewSecrets(12).cost)
}

func TestDisplayName(t *testing.T) {
	s := NewSecrets(bcrypt.MinCost)
	name, err := s.DisplayName()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^User [0-9a-f]{16}$`), name)
}
