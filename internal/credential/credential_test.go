package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("s3cret"), hash, "hash must not be the plaintext")

	assert.True(t, h.Verify(hash, "s3cret"))
	assert.False(t, h.Verify(hash, "S3cret"))
	assert.False(t, h.Verify(hash, ""))
}

func TestVerifyEmptyHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	assert.False(t, h.Verify(nil, ""))
	assert.False(t, h.Verify([]byte("plaintext"), "plaintext"))
}

func TestNewHasher_CostOutOfRange(t *testing.T) {
	h := NewHasher(0)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	h = NewHasher(99)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)
}

func TestCheck(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("pw")
	require.NoError(t, err)

	assert.NoError(t, Check(hash))
	assert.Error(t, Check([]byte("not-a-hash")))
	assert.Error(t, Check(nil))
}

func TestBurnDoesNotPanic(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	h.Burn("anything")
}

func TestHash_TooLong(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	hash, err := h.Hash(strings.Repeat("x", MaxPasswordBytes))
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, strings.Repeat("x", MaxPasswordBytes)))
}
