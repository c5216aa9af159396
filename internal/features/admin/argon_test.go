package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyArgon2id(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	assert.True(t, verifyArgon2id("s3cret", hash))
	assert.False(t, verifyArgon2id("S3cret", hash))
	assert.False(t, verifyArgon2id("", hash))
}

func TestVerifyArgon2id_MalformedHash(t *testing.T) {
	for _, h := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	} {
		assert.False(t, verifyArgon2id("pw", h), h)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a, b := generateSecureToken(), generateSecureToken()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 44)
}
