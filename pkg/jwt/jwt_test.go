package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/bazaar/pkg/errcode"
)

func TestGenerateAndValidate(t *testing.T) {
	token, err := GenerateToken("u1", 5, "secret", 1)
	require.NoError(t, err)

	claims, err := ValidateToken(token, "secret", "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserId)
	assert.Equal(t, 5, claims.PlatformId)

	// any user is accepted on re-authentication
	claims, err = ValidateToken(token, "secret", "", 5)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserId)
}

func TestValidateRejects(t *testing.T) {
	token, err := GenerateToken("u1", 5, "secret", 1)
	require.NoError(t, err)

	_, err = ValidateToken(token, "other", "u1", 5)
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)

	_, err = ValidateToken(token, "secret", "u2", 5)
	assert.ErrorIs(t, err, errcode.ErrTokenMismatch)

	_, err = ValidateToken(token, "secret", "u1", 1)
	assert.ErrorIs(t, err, errcode.ErrTokenMismatch)

	_, err = ParseToken("not-a-token", "secret")
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken("u1", 5, "secret", -1)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)
}
