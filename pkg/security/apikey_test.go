package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	v := NewBcryptVerifier(4)

	hash, err := v.Hash("svc-key-123")
	require.NoError(t, err)
	assert.NotEqual(t, "svc-key-123", hash)

	assert.NoError(t, v.Verify(hash, "svc-key-123"))
	assert.Error(t, v.Verify(hash, "svc-key-124"))
}

func TestVerifyBadHash(t *testing.T) {
	v := NewBcryptVerifier(4)
	assert.Error(t, v.Verify("not-a-bcrypt-hash", "anything"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "abd"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
}
