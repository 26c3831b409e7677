package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	a := New("test-secret")

	token, err := a.GenerateJWT("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := a.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestValidateJWTWrongSecret(t *testing.T) {
	token, err := New("secret-one").GenerateJWT("alice")
	require.NoError(t, err)

	_, err = New("secret-two").ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateJWTGarbage(t *testing.T) {
	_, err := New("test-secret").ValidateJWT("not.a.token")
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
