package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	p := NewPasswordServiceWithCost(4)

	hash, err := p.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, p.Verify(hash, "hunter22"))
	assert.Error(t, p.Verify(hash, "wrong"))
}

func TestHashesAreSalted(t *testing.T) {
	p := NewPasswordServiceWithCost(4)
	a, err := p.Hash("hunter22")
	require.NoError(t, err)
	b, err := p.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOverlongPasswordRejected(t *testing.T) {
	p := NewPasswordServiceWithCost(4)
	_, err := p.Hash(strings.Repeat("x", 73))
	assert.Error(t, err)
}
